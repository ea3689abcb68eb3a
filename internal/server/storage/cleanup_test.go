package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSweeper) SweepOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, s.err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweepService(t *testing.T) {
	t.Run("runs a pass immediately and then on the interval", func(t *testing.T) {
		sweeper := &countingSweeper{}
		ss := NewSweepService(sweeper, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		ss.Start(ctx)

		deadline := time.After(2 * time.Second)
		for sweeper.count() < 3 {
			select {
			case <-deadline:
				t.Fatalf("expected at least 3 sweep passes, got %d", sweeper.count())
			case <-time.After(5 * time.Millisecond):
			}
		}

		cancel()
		ss.Wait()
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		sweeper := &countingSweeper{}
		ss := NewSweepService(sweeper, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		ss.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() {
			ss.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Wait did not return after cancellation")
		}
	})

	t.Run("keeps ticking after a failed pass", func(t *testing.T) {
		sweeper := &countingSweeper{err: errors.New("store unavailable")}
		ss := NewSweepService(sweeper, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		ss.Start(ctx)

		deadline := time.After(2 * time.Second)
		for sweeper.count() < 2 {
			select {
			case <-deadline:
				t.Fatalf("expected passes to continue after errors, got %d", sweeper.count())
			case <-time.After(5 * time.Millisecond):
			}
		}

		cancel()
		ss.Wait()
	})
}
