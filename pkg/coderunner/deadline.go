package coderunner

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError is returned when an operation outlives its deadline.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Execution timed out after %dms", e.Limit.Milliseconds())
}

// WithDeadline runs op and waits at most timeout for it. When the deadline
// passes or ctx is cancelled first, kill is invoked so the work stops even if
// op never checks its context, and the call returns immediately without
// waiting for op to unwind. A timeout of zero or less disables the deadline.
func WithDeadline[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error), kill func()) (T, error) {
	type result struct {
		value T
		err   error
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		value, err := op(opCtx)
		done <- result{value: value, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-expired:
		if kill != nil {
			kill()
		}
		return zero, &TimeoutError{Limit: timeout}
	case <-ctx.Done():
		if kill != nil {
			kill()
		}
		return zero, ctx.Err()
	}
}
