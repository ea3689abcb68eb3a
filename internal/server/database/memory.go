package database

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory RecordStore. A single mutex serializes every
// read-modify-write, which satisfies the per-record linearizability the
// contract demands. Used when no DATABASE_URL is configured, and by tests.
type Memory struct {
	mu     sync.Mutex
	shares map[string]*Share
}

var _ RecordStore = (*Memory)(nil)

// NewMemory creates an empty in-memory RecordStore.
func NewMemory() *Memory {
	return &Memory{shares: make(map[string]*Share)}
}

// Create inserts a new share record.
func (m *Memory) Create(ctx context.Context, share *Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *share
	m.shares[share.ID] = &cp
	return nil
}

// GetByID retrieves a share by its ID, whether deleted or not.
func (m *Memory) GetByID(ctx context.Context, id string) (*Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	share, ok := m.shares[id]
	if !ok {
		return nil, ErrShareNotFound
	}
	cp := *share
	return &cp, nil
}

// Consume performs the atomic deliverability check and counter increment
// under the store mutex.
func (m *Memory) Consume(ctx context.Context, id string, now time.Time) (*Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	share, ok := m.shares[id]
	if !ok || share.Deleted {
		return nil, ErrShareNotFound
	}

	if !now.Before(share.ExpiresAt) {
		share.Deleted = true
		share.DeletedAt = &now
		return nil, ErrShareExpired
	}

	if share.DownloadCount >= share.MaxDownloads {
		share.Deleted = true
		share.DeletedAt = &now
		return nil, ErrShareLimitReached
	}

	share.DownloadCount++
	share.LastAccessedAt = &now
	cp := *share
	return &cp, nil
}

// MarkDeleted flags a share as deleted. Idempotent.
func (m *Memory) MarkDeleted(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	share, ok := m.shares[id]
	if !ok || share.Deleted {
		return false, nil
	}
	share.Deleted = true
	share.DeletedAt = &now
	return true, nil
}

// GetSweepable returns live shares that are past expiry or out of downloads.
func (m *Memory) GetSweepable(ctx context.Context, now time.Time) ([]*Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Share
	for _, share := range m.shares {
		if share.Deleted {
			continue
		}
		if !now.Before(share.ExpiresAt) || share.DownloadCount >= share.MaxDownloads {
			cp := *share
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetStats returns aggregate server statistics.
func (m *Memory) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{}
	for _, share := range m.shares {
		stats.TotalShares++
		if share.Deleted {
			stats.DeletedShares++
		} else {
			stats.ActiveShares++
			stats.ActiveBytes += share.ByteSize
		}
		if stats.LastUploadAt == nil || share.CreatedAt.After(*stats.LastUploadAt) {
			t := share.CreatedAt
			stats.LastUploadAt = &t
		}
	}
	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}
