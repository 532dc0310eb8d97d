// Package async runs functions in goroutines and lets callers wait for their
// results with an optional timeout.
//
//	f := async.Go(ctx, func(ctx context.Context) (struct{}, error) {
//	    return struct{}{}, deliverer.Deliver(ctx, clientID, n)
//	})
//	if _, err := f.AwaitWithTimeout(5 * time.Second); errors.Is(err, async.ErrTimeout) {
//	    // the callback is still running; count it as failed
//	}
package async
