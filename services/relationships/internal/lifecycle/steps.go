package lifecycle

import (
	"context"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

// step is one intent of a lifecycle operation. Critical steps abort the operation on
// failure; best-effort steps are logged and skipped.
type step struct {
	name     string
	critical bool
	run      func(ctx context.Context) error
}

func critical(name string, run func(ctx context.Context) error) step {
	return step{name: name, critical: true, run: run}
}

func bestEffort(name string, run func(ctx context.Context) error) step {
	return step{name: name, run: run}
}

// runSteps executes steps in order. There is no rollback: a critical failure leaves the
// steps already run applied and is repaired by the reconciliation sweep.
func (c *core) runSteps(ctx context.Context, op string, steps ...step) error {
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil {
			continue
		}
		if s.critical {
			c.Logger.ErrorContext(ctx, "lifecycle step failed",
				"module", "lifecycle",
				"operation", op,
				"step", s.name,
				"outcome", "abort",
				"error", err,
			)
			return domain.AsUnexpected(op, err)
		}
		bestEffortFailures.WithLabelValues(op, s.name).Inc()
		c.Logger.WarnContext(ctx, "best-effort step failed",
			"module", "lifecycle",
			"operation", op,
			"step", s.name,
			"outcome", "swallowed",
			"error", err,
		)
	}
	return nil
}
