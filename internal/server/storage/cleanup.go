package storage

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs one sweep pass over the record store, purging shares that
// are expired or out of downloads, and reports how many it transitioned.
type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// SweepService drives a Sweeper on a periodic timer. A single goroutine
// runs the passes, so two passes never overlap even when one outlasts the
// interval.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
}

// NewSweepService creates a new periodic sweep service.
func NewSweepService(sweeper Sweeper, interval time.Duration) *SweepService {
	return &SweepService{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. One pass runs
// immediately so shares that lapsed while the process was down are recovered
// right after boot.
func (ss *SweepService) Start(ctx context.Context) {
	slog.Info("sweep service started", "interval", ss.interval)

	go func() {
		ticker := time.NewTicker(ss.interval)
		defer ticker.Stop()

		ss.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				ss.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("sweep service stopping")
				close(ss.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweep service has fully stopped.
func (ss *SweepService) Wait() {
	<-ss.done
}

func (ss *SweepService) runSweep(ctx context.Context) {
	swept, err := ss.sweeper.SweepOnce(ctx)
	if err != nil {
		slog.Error("sweep pass failed", "error", err)
		return
	}
	if swept > 0 {
		slog.Info("sweep pass complete", "swept", swept)
	}
}
