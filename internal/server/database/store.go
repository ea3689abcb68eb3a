package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrShareNotFound     = errors.New("share not found")
	ErrShareExpired      = errors.New("share has expired")
	ErrShareLimitReached = errors.New("share download limit reached")
)

// RecordStore is the capability contract for share records. Implementations
// must make Consume a single linearizable unit per record: the deliverability
// check, the counter increment, and any deleted-flag transition happen
// atomically with respect to concurrent Consume and MarkDeleted calls on the
// same id. Backed by postgres row locks or an in-memory mutex.
type RecordStore interface {
	// Create inserts a new record. The caller persists the blob first; a
	// record must never become visible before its blob.
	Create(ctx context.Context, share *Share) error

	// GetByID returns the record, deleted or not, or ErrShareNotFound.
	GetByID(ctx context.Context, id string) (*Share, error)

	// Consume atomically evaluates deliverability at the given instant and,
	// in one of three outcomes:
	//   - expired: flags the record deleted, returns ErrShareExpired;
	//   - exhausted: flags the record deleted, returns ErrShareLimitReached;
	//   - deliverable: increments the download counter, stamps
	//     last_accessed_at, and returns the updated record.
	// Absent or already-deleted records return ErrShareNotFound.
	Consume(ctx context.Context, id string, now time.Time) (*Share, error)

	// MarkDeleted flips the deleted flag and stamps deleted_at. Records are
	// flagged, never erased, so audit timestamps survive. Returns whether
	// this call changed anything; repeat calls and unknown ids return false
	// without error.
	MarkDeleted(ctx context.Context, id string, now time.Time) (bool, error)

	// GetSweepable returns non-deleted records that are expired or have
	// exhausted their download allowance as of the given instant.
	GetSweepable(ctx context.Context, now time.Time) ([]*Share, error)

	// GetStats returns aggregate counters. Read-only.
	GetStats(ctx context.Context) (*Stats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
