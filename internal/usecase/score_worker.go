package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

const minScoreWorkerInterval = time.Minute

// ScoreWorker periodically runs a score catch-up pass in the background.
// Failed passes are logged and retried on the next tick.
type ScoreWorker struct {
	interval time.Duration
	run      func(ctx context.Context) error
	logger   *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

func NewScoreWorker(interval time.Duration, run func(ctx context.Context) error, logger *logging.Logger) *ScoreWorker {
	if interval < minScoreWorkerInterval {
		interval = minScoreWorkerInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ScoreWorker{
		interval: interval,
		run:      run,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker loop. The first pass runs one interval after
// start, not immediately, so a fresh deploy right after a manual sync does
// not double-hit the scores API.
func (w *ScoreWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop(ctx)
	})
}

func (w *ScoreWorker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "score worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "score worker stopping", "reason", ctx.Err().Error())
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.run(ctx); err != nil {
				w.logger.ErrorContext(ctx, "score catch-up pass failed", "error", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to finish. Safe to call
// more than once, and safe before Start.
func (w *ScoreWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if !w.started.Load() {
		return
	}
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
	}
}
