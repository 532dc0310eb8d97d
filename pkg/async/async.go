package async

import (
	"context"
	"time"
)

// Future holds the eventual result of a function started with Go.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Go runs fn in its own goroutine and returns immediately. If ctx is already
// done, fn is not called and the future resolves with ctx.Err().
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the function returns.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout returns ErrTimeout if the function has not returned within
// timeout. The goroutine keeps running; pass it a context with the same
// deadline so it can stop too.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done is closed once the function has returned.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// WaitAll awaits every future and returns the results in order together with
// the per-future errors at the same indexes.
func WaitAll[U any](futures ...*Future[U]) ([]U, []error) {
	results := make([]U, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		results[i], errs[i] = f.Await()
	}
	return results, errs
}
