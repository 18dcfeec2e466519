package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WithTimeout bounds fn, typically a corpus rebuild, to timeout. fn gets a
// context that is cancelled at the deadline and must stop without side
// effects once it sees that; WithTimeout itself returns at the deadline
// without waiting. When the abandoned fn eventually returns, its outcome is
// logged so a late finish is visible. A non-positive timeout runs fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		cancel()
		return err
	case <-timeoutCtx.Done():
	}

	start := time.Now()
	go func() {
		defer cancel()
		err := <-done
		slog.Default().With("component", "timeout", "operation", name).Warn("abandoned operation returned",
			"late_by", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
	}()
	if ctx.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	}
	return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
}
