package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when fn does not finish within the deadline.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn with a derived deadline. It returns as soon as the
// deadline passes even if fn ignores its context; fn keeps running in the
// background in that case. A non-positive timeout runs fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
