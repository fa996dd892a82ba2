package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/plannerhq/plansearch/pkg/observability"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery, timeout enforcement and error logging. Use this
// instead of a bare `go func()` for fire-and-forget background work.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic in %s: %v\n%s", taskName, r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Errorf("Background task %s failed", taskName)
		}
	}()
}

// SafeGoNoError is SafeGo for functions that do not return errors
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, logger, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Loop runs fn on an interval until the context is cancelled, with
// panic recovery around each tick. The first run waits one interval.
func Loop(ctx context.Context, interval time.Duration, taskName string, logger *observability.Logger, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Errorf("Panic in %s: %v\n%s", taskName, r, debug.Stack())
						}
					}()
					fn(ctx)
				}()
			}
		}
	}()
}
