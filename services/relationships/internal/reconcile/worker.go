package reconcile

import (
	"context"
	"time"
)

// Worker runs the sweep on a fixed interval until its context ends.
type Worker struct {
	Sweeper  *Sweeper
	Interval time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	w.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if _, err := w.Sweeper.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.Sweeper.logger().ErrorContext(ctx, "reconcile sweep failed", "module", "reconcile", "error", err)
	}
}
