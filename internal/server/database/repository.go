package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const shareColumns = `id, blob_ref, display_name, byte_size, mime_hint, checksum,
	   max_downloads, download_count, expires_at, deleted, deleted_at,
	   last_accessed_at, created_at`

// Repository is the postgres-backed RecordStore. Per-record linearizability
// of Consume comes from a SELECT ... FOR UPDATE row lock inside a single
// transaction.
type Repository struct {
	db *DB
}

var _ RecordStore = (*Repository)(nil)

// NewRepository creates a postgres RecordStore over an open pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new share record.
func (r *Repository) Create(ctx context.Context, share *Share) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO shares (
			id, blob_ref, display_name, byte_size, mime_hint, checksum,
			max_downloads, download_count, expires_at, deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		share.ID,
		share.BlobRef,
		share.DisplayName,
		share.ByteSize,
		share.MimeHint,
		share.Checksum,
		share.MaxDownloads,
		share.DownloadCount,
		share.ExpiresAt,
		share.Deleted,
		share.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

// GetByID retrieves a share by its ID, whether deleted or not.
func (r *Repository) GetByID(ctx context.Context, id string) (*Share, error) {
	row := r.db.Pool.QueryRow(ctx,
		"SELECT "+shareColumns+" FROM shares WHERE id = $1", id)

	share, err := scanShare(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return share, nil
}

// Consume performs the atomic deliverability check and counter increment.
// The row lock serializes racing downloads so that exactly max_downloads of
// them ever succeed.
func (r *Repository) Consume(ctx context.Context, id string, now time.Time) (*Share, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin consume transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		"SELECT "+shareColumns+" FROM shares WHERE id = $1 AND deleted = FALSE FOR UPDATE", id)

	share, err := scanShare(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to lock share: %w", err)
	}

	if !now.Before(share.ExpiresAt) {
		if err := r.flagDeleted(ctx, tx, id, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit expiry transition: %w", err)
		}
		return nil, ErrShareExpired
	}

	if share.DownloadCount >= share.MaxDownloads {
		if err := r.flagDeleted(ctx, tx, id, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit limit transition: %w", err)
		}
		return nil, ErrShareLimitReached
	}

	_, err = tx.Exec(ctx, `
		UPDATE shares SET download_count = download_count + 1, last_accessed_at = $2
		WHERE id = $1
	`, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to increment download count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit consume: %w", err)
	}

	share.DownloadCount++
	share.LastAccessedAt = &now
	return share, nil
}

// MarkDeleted flags a share as deleted. Idempotent; reports whether this
// call made the transition.
func (r *Repository) MarkDeleted(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE shares SET deleted = TRUE, deleted_at = $2
		WHERE id = $1 AND deleted = FALSE
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark share deleted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSweepable returns live shares that are past expiry or out of downloads.
func (r *Repository) GetSweepable(ctx context.Context, now time.Time) ([]*Share, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+shareColumns+`
		FROM shares
		WHERE deleted = FALSE AND (expires_at <= $1 OR download_count >= max_downloads)
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweepable shares: %w", err)
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweepable share: %w", err)
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE deleted = FALSE),
			COUNT(*) FILTER (WHERE deleted = TRUE),
			COUNT(*),
			COALESCE(SUM(byte_size) FILTER (WHERE deleted = FALSE), 0),
			MAX(created_at)
		FROM shares
	`).Scan(
		&stats.ActiveShares,
		&stats.DeletedShares,
		&stats.TotalShares,
		&stats.ActiveBytes,
		&stats.LastUploadAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the database connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close shuts down the underlying pool.
func (r *Repository) Close() {
	r.db.Close()
}

func (r *Repository) flagDeleted(ctx context.Context, tx pgx.Tx, id string, now time.Time) error {
	_, err := tx.Exec(ctx,
		"UPDATE shares SET deleted = TRUE, deleted_at = $2 WHERE id = $1", id, now)
	if err != nil {
		return fmt.Errorf("failed to flag share deleted: %w", err)
	}
	return nil
}

func scanShare(row pgx.Row) (*Share, error) {
	share := &Share{}
	err := row.Scan(
		&share.ID,
		&share.BlobRef,
		&share.DisplayName,
		&share.ByteSize,
		&share.MimeHint,
		&share.Checksum,
		&share.MaxDownloads,
		&share.DownloadCount,
		&share.ExpiresAt,
		&share.Deleted,
		&share.DeletedAt,
		&share.LastAccessedAt,
		&share.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return share, nil
}
