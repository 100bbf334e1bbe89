package pipeline

import (
	"context"
	"time"
)

// advise runs call under a per-attempt deadline, retrying up to retries
// times. The call runs in its own goroutine and reports through a buffered
// channel, so an abandoned attempt can finish later without blocking or
// touching compiler state.
func advise[T any](ctx context.Context, timeout time.Duration, retries int, call func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		v, err := adviseOnce(ctx, timeout, call)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}

func adviseOnce[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		v   T
		err error
	}
	done := make(chan answer, 1)
	go func() {
		v, err := call(ctx)
		done <- answer{v: v, err: err}
	}()

	select {
	case a := <-done:
		return a.v, a.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
