package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"sealdrop/internal/server/config"
	"sealdrop/internal/server/database"
	"sealdrop/internal/server/storage"

	"github.com/google/uuid"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound     = errors.New("share not found")
	ErrExpired      = errors.New("share has expired")
	ErrLimitReached = errors.New("share download limit reached")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrEmptyUpload  = errors.New("upload contains no data")
)

// CreateRequest carries an incoming envelope and its requested limits.
// Data is ciphertext from the server's point of view; the server stores it
// without inspecting a single byte.
type CreateRequest struct {
	DisplayName  string
	MimeHint     string
	Data         io.Reader
	MaxDownloads int // clamped to the configured range, 0 means default
	ExpiryHours  int // clamped to the configured range, 0 means default
}

// CreateResult is the receipt echoed back to the uploader.
type CreateResult struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	ByteSize     int64     `json:"byte_size"`
	Checksum     string    `json:"checksum"`
	MaxDownloads int       `json:"max_downloads"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FetchResult hands a consumed download back to the transport layer.
// Blob remains readable even when the fetch was the share's last one and the
// stored bytes have already been purged.
type FetchResult struct {
	Blob        io.ReadCloser
	DisplayName string
	MimeHint    string
	ByteSize    int64
	Remaining   int
}

// ShareInfo is the non-sensitive metadata view of a share.
type ShareInfo struct {
	ID                 string    `json:"id"`
	DisplayName        string    `json:"display_name"`
	ByteSize           int64     `json:"byte_size"`
	MimeHint           string    `json:"mime_hint"`
	Checksum           string    `json:"checksum"`
	RemainingDownloads int       `json:"remaining_downloads"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// Ledger owns the share lifecycle: it maps identifiers to ciphertext blobs
// and enforces the download-count and expiry limits. A share is deliverable
// iff it is not deleted, not expired, and under its download limit; the
// first transition out of that state purges the blob and is terminal.
type Ledger struct {
	records database.RecordStore
	blobs   storage.BlobStore
	cfg     *config.Config

	// now is swapped out by tests to drive expiry without wall-clock waits.
	now func() time.Time
}

// NewLedger creates a share ledger.
func NewLedger(records database.RecordStore, blobs storage.BlobStore, cfg *config.Config) *Ledger {
	return &Ledger{
		records: records,
		blobs:   blobs,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Create persists an envelope and its lifecycle limits, returning a fresh
// identifier. The blob write completes before the record becomes visible;
// if the record insert fails the blob is rolled back so no orphan remains.
func (l *Ledger) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	id := uuid.NewString()

	// Cap the write one byte past the limit so oversized uploads are
	// detected without buffering them whole.
	size, checksum, err := l.blobs.Save(id, io.LimitReader(req.Data, l.cfg.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	if size > l.cfg.MaxFileSize {
		l.discardBlob(id)
		return nil, ErrFileTooLarge
	}
	if size == 0 {
		l.discardBlob(id)
		return nil, ErrEmptyUpload
	}

	now := l.now().UTC()
	share := &database.Share{
		ID:            id,
		BlobRef:       id,
		DisplayName:   sanitizeDisplayName(req.DisplayName),
		ByteSize:      size,
		MimeHint:      mimeHintOrDefault(req.MimeHint),
		Checksum:      checksum,
		MaxDownloads:  l.cfg.ClampDownloads(req.MaxDownloads),
		DownloadCount: 0,
		ExpiresAt:     now.Add(l.cfg.ClampExpiry(req.ExpiryHours)),
		CreatedAt:     now,
	}

	if err := l.records.Create(ctx, share); err != nil {
		l.discardBlob(id)
		return nil, fmt.Errorf("failed to create share record: %w", err)
	}

	slog.Info("share created",
		"id", id,
		"display_name", share.DisplayName,
		"byte_size", size,
		"max_downloads", share.MaxDownloads,
		"expires_at", share.ExpiresAt,
	)

	return &CreateResult{
		ID:           id,
		DisplayName:  share.DisplayName,
		ByteSize:     size,
		Checksum:     checksum,
		MaxDownloads: share.MaxDownloads,
		ExpiresAt:    share.ExpiresAt,
	}, nil
}

// Fetch consumes one unit of a share's download allowance and returns the
// blob. When two fetches race for the last unit, the record store's atomic
// consume guarantees exactly one wins; the loser sees ErrLimitReached.
// The blob is opened before the consume, so a fetch that wins a unit can
// always deliver its bytes even when a racing fetch exhausts the share and
// purges the blob mid-flight. A fetch that exhausts the allowance purges
// the share before returning, so no later fetch can observe it as active;
// the returned handle keeps serving the in-flight response.
func (l *Ledger) Fetch(ctx context.Context, id string) (*FetchResult, error) {
	share, err := l.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrShareNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if share.Deleted {
		return nil, deletedOutcome(share)
	}
	blobRef := share.BlobRef

	blob, _, err := l.blobs.Open(blobRef)
	if err != nil {
		// A record whose blob is gone is unusable; purge it instead of
		// retrying, since blob loss is not transient in this lifecycle.
		// A lapsed share still reports why it is gone.
		if !l.now().UTC().Before(share.ExpiresAt) {
			l.purge(ctx, id, blobRef)
			return nil, ErrExpired
		}
		slog.Warn("share blob missing, purging record", "id", id, "error", err)
		l.purge(ctx, id, blobRef)
		return nil, ErrNotFound
	}

	share, err = l.records.Consume(ctx, id, l.now().UTC())
	if err != nil {
		blob.Close()
		switch {
		case errors.Is(err, database.ErrShareNotFound):
			return nil, ErrNotFound
		case errors.Is(err, database.ErrShareExpired):
			l.discardBlob(blobRef)
			return nil, ErrExpired
		case errors.Is(err, database.ErrShareLimitReached):
			l.discardBlob(blobRef)
			return nil, ErrLimitReached
		default:
			return nil, err
		}
	}

	if share.DownloadCount >= share.MaxDownloads {
		// Last allowed download: the share self-destructs now, before this
		// call returns. The open handle outlives the unlinked blob.
		l.purge(ctx, id, blobRef)
		slog.Info("share exhausted and purged", "id", id, "downloads", share.DownloadCount)
	}

	return &FetchResult{
		Blob:        blob,
		DisplayName: share.DisplayName,
		MimeHint:    share.MimeHint,
		ByteSize:    share.ByteSize,
		Remaining:   share.RemainingDownloads(),
	}, nil
}

// Info returns share metadata without consuming a download. Expired and
// exhausted shares answer with the same distinguishable outcomes a fetch
// would, but Info never mutates the record; the sweep reclaims it.
func (l *Ledger) Info(ctx context.Context, id string) (*ShareInfo, error) {
	share, err := l.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrShareNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if share.Deleted {
		return nil, deletedOutcome(share)
	}
	if !l.now().UTC().Before(share.ExpiresAt) {
		return nil, ErrExpired
	}
	if share.DownloadCount >= share.MaxDownloads {
		return nil, ErrLimitReached
	}

	return &ShareInfo{
		ID:                 share.ID,
		DisplayName:        share.DisplayName,
		ByteSize:           share.ByteSize,
		MimeHint:           share.MimeHint,
		Checksum:           share.Checksum,
		RemainingDownloads: share.RemainingDownloads(),
		ExpiresAt:          share.ExpiresAt,
		CreatedAt:          share.CreatedAt,
	}, nil
}

// Delete forces the terminal transition. Idempotent: the first call purges
// and reports true, later calls and unknown ids report false.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	share, err := l.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrShareNotFound) {
			return false, nil
		}
		return false, err
	}

	changed, err := l.records.MarkDeleted(ctx, id, l.now().UTC())
	if err != nil {
		return false, err
	}

	// Purge the blob even when the flag was already set, covering a crash
	// between flagging and purging.
	l.discardBlob(share.BlobRef)

	if changed {
		slog.Info("share deleted", "id", id, "display_name", share.DisplayName)
	}
	return changed, nil
}

// Stats returns aggregate ledger statistics.
func (l *Ledger) Stats(ctx context.Context) (*database.Stats, error) {
	return l.records.GetStats(ctx)
}

// SweepOnce purges every share that is expired or out of downloads and
// returns how many it actually transitioned. Safe to race with fetches and
// manual deletes: MarkDeleted is idempotent, and shares already flagged by
// someone else are not counted.
func (l *Ledger) SweepOnce(ctx context.Context) (int, error) {
	now := l.now().UTC()

	stale, err := l.records.GetSweepable(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list sweepable shares: %w", err)
	}

	swept := 0
	for _, share := range stale {
		changed, err := l.records.MarkDeleted(ctx, share.ID, now)
		if err != nil {
			slog.Error("failed to sweep share", "id", share.ID, "error", err)
			continue
		}
		l.discardBlob(share.BlobRef)
		if changed {
			swept++
			slog.Info("swept stale share",
				"id", share.ID,
				"expired_at", share.ExpiresAt,
				"downloads", share.DownloadCount,
			)
		}
	}
	return swept, nil
}

// deletedOutcome picks the error for a record already in the terminal state.
// Records are flagged rather than erased, so a share that went out through
// its download limit keeps answering ErrLimitReached instead of collapsing
// into a generic not-found. Manual burns and swept expiries report ErrNotFound.
func deletedOutcome(share *database.Share) error {
	if share.DownloadCount >= share.MaxDownloads {
		return ErrLimitReached
	}
	return ErrNotFound
}

// purge flags the record deleted and removes its blob, best effort.
func (l *Ledger) purge(ctx context.Context, id, blobRef string) {
	if _, err := l.records.MarkDeleted(ctx, id, l.now().UTC()); err != nil {
		slog.Error("failed to mark share deleted", "id", id, "error", err)
	}
	l.discardBlob(blobRef)
}

func (l *Ledger) discardBlob(ref string) {
	if err := l.blobs.Delete(ref); err != nil {
		slog.Error("failed to delete blob", "ref", ref, "error", err)
	}
}

// sanitizeDisplayName strips directory components and limits length. The
// name is display metadata only; it never influences storage paths.
func sanitizeDisplayName(name string) string {
	// Normalize Windows-style backslashes before calling filepath.Base,
	// which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "unnamed_file"
	}

	return name
}

func mimeHintOrDefault(mime string) string {
	if mime == "" {
		return "application/octet-stream"
	}
	if len(mime) > 100 {
		mime = mime[:100]
	}
	return mime
}
