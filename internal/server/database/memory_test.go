package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestShare(id string, maxDownloads int, expiresAt time.Time) *Share {
	return &Share{
		ID:           id,
		BlobRef:      id,
		DisplayName:  "doc.pdf",
		ByteSize:     128,
		MimeHint:     "application/octet-stream",
		Checksum:     "abc",
		MaxDownloads: maxDownloads,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemory_Consume(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("unknown id", func(t *testing.T) {
		m := NewMemory()
		if _, err := m.Consume(ctx, "nope", now); !errors.Is(err, ErrShareNotFound) {
			t.Errorf("expected ErrShareNotFound, got %v", err)
		}
	})

	t.Run("increments and stamps access time", func(t *testing.T) {
		m := NewMemory()
		m.Create(ctx, newTestShare("s1", 3, now.Add(time.Hour)))

		share, err := m.Consume(ctx, "s1", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if share.DownloadCount != 1 {
			t.Errorf("expected count 1, got %d", share.DownloadCount)
		}
		if share.LastAccessedAt == nil || !share.LastAccessedAt.Equal(now) {
			t.Error("last accessed not stamped")
		}
	})

	t.Run("expired share transitions to deleted", func(t *testing.T) {
		m := NewMemory()
		m.Create(ctx, newTestShare("s1", 3, now.Add(-time.Minute)))

		if _, err := m.Consume(ctx, "s1", now); !errors.Is(err, ErrShareExpired) {
			t.Fatalf("expected ErrShareExpired, got %v", err)
		}

		// Terminal: later consumes see it as gone, not expired again.
		if _, err := m.Consume(ctx, "s1", now); !errors.Is(err, ErrShareNotFound) {
			t.Errorf("expected ErrShareNotFound after transition, got %v", err)
		}
	})

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		m := NewMemory()
		m.Create(ctx, newTestShare("s1", 3, now))

		if _, err := m.Consume(ctx, "s1", now); !errors.Is(err, ErrShareExpired) {
			t.Errorf("expected ErrShareExpired at the boundary, got %v", err)
		}
	})

	t.Run("exhausted share transitions to deleted", func(t *testing.T) {
		m := NewMemory()
		m.Create(ctx, newTestShare("s1", 2, now.Add(time.Hour)))

		for i := 0; i < 2; i++ {
			if _, err := m.Consume(ctx, "s1", now); err != nil {
				t.Fatalf("consume %d failed: %v", i+1, err)
			}
		}

		if _, err := m.Consume(ctx, "s1", now); !errors.Is(err, ErrShareLimitReached) {
			t.Fatalf("expected ErrShareLimitReached, got %v", err)
		}
		if _, err := m.Consume(ctx, "s1", now); !errors.Is(err, ErrShareNotFound) {
			t.Errorf("expected ErrShareNotFound after transition, got %v", err)
		}
	})
}

func TestMemory_MarkDeleted(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("idempotent", func(t *testing.T) {
		m := NewMemory()
		m.Create(ctx, newTestShare("s1", 1, now.Add(time.Hour)))

		first, err := m.MarkDeleted(ctx, "s1", now)
		if err != nil || !first {
			t.Fatalf("first call: got (%v, %v), want (true, nil)", first, err)
		}
		second, err := m.MarkDeleted(ctx, "s1", now)
		if err != nil || second {
			t.Errorf("second call: got (%v, %v), want (false, nil)", second, err)
		}
	})

	t.Run("unknown id is not an error", func(t *testing.T) {
		m := NewMemory()
		changed, err := m.MarkDeleted(ctx, "ghost", now)
		if err != nil || changed {
			t.Errorf("got (%v, %v), want (false, nil)", changed, err)
		}
	})
}

func TestMemory_GetSweepable(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	m := NewMemory()
	m.Create(ctx, newTestShare("live", 3, now.Add(time.Hour)))
	m.Create(ctx, newTestShare("expired", 3, now.Add(-time.Hour)))

	exhausted := newTestShare("exhausted", 1, now.Add(time.Hour))
	exhausted.DownloadCount = 1
	m.Create(ctx, exhausted)

	gone := newTestShare("gone", 1, now.Add(-time.Hour))
	gone.Deleted = true
	m.Create(ctx, gone)

	sweepable, err := m.GetSweepable(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := make(map[string]bool)
	for _, s := range sweepable {
		ids[s.ID] = true
	}
	if len(ids) != 2 || !ids["expired"] || !ids["exhausted"] {
		t.Errorf("expected {expired, exhausted}, got %v", ids)
	}
}

func TestMemory_GetStats(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	m := NewMemory()

	t.Run("empty store", func(t *testing.T) {
		stats, err := m.GetStats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.TotalShares != 0 || stats.LastUploadAt != nil {
			t.Errorf("got %+v", stats)
		}
	})

	t.Run("counts active and deleted separately", func(t *testing.T) {
		a := newTestShare("a", 1, now.Add(time.Hour))
		a.ByteSize = 100
		m.Create(ctx, a)

		b := newTestShare("b", 1, now.Add(time.Hour))
		b.ByteSize = 50
		b.Deleted = true
		m.Create(ctx, b)

		stats, err := m.GetStats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.ActiveShares != 1 || stats.DeletedShares != 1 || stats.TotalShares != 2 {
			t.Errorf("counts: got %+v", stats)
		}
		if stats.ActiveBytes != 100 {
			t.Errorf("active bytes: got %d, want 100 (deleted shares excluded)", stats.ActiveBytes)
		}
		if stats.LastUploadAt == nil {
			t.Error("expected last upload time")
		}
	})
}

func TestShare_Deliverable(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name  string
		setup func(*Share)
		want  bool
	}{
		{"fresh share", func(s *Share) {}, true},
		{"deleted", func(s *Share) { s.Deleted = true }, false},
		{"expired", func(s *Share) { s.ExpiresAt = now.Add(-time.Second) }, false},
		{"exhausted", func(s *Share) { s.DownloadCount = s.MaxDownloads }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestShare("s", 2, now.Add(time.Hour))
			tt.setup(s)
			if got := s.Deliverable(now); got != tt.want {
				t.Errorf("Deliverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
