package safe

import (
	"context"
	"time"

	"LinkHub/tools/errs"
)

type outcome[T any] struct {
	val T
	err error
}

// Await runs fn and races it against d. When the deadline (or ctx) wins it
// returns ErrProviderTimeout and abandons fn: its result is discarded once it
// eventually finishes. fn receives a context that is cancelled at the deadline.
// A non-positive d means no deadline beyond ctx.
func Await[T any](ctx context.Context, d time.Duration, what string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if d > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: errs.ErrPanicIn(what, r)}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, errs.ErrProviderTimeout.WrapMsg(what+" timed out", "after", d)
	}
}
