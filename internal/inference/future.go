package inference

import (
	"context"
	"time"
)

// Future is the handle an async caller awaits for the outcome of one
// enqueue_inference call (spec §4.1). It is single-use: Wait consumes the
// underlying reply channel.
type Future struct {
	resultCh chan InferenceResult
	token    *cancelToken
	deadline time.Time
}

// Wait blocks until the owner goroutine replies, ctx is cancelled, or the
// request's own deadline elapses — whichever comes first. Cancelling ctx
// trips the cancel token so the owner skips a call that hasn't started yet,
// but per spec §4.1 a call already in flight runs to completion; Wait still
// returns promptly with ResultCancelled in that case.
func (f *Future) Wait(ctx context.Context) (InferenceResult, error) {
	select {
	case result := <-f.resultCh:
		return result, nil
	case <-ctx.Done():
		f.token.trip()
		// The owner always replies to every message it dequeues, so this
		// never blocks forever — it just waits out whatever the owner was
		// already doing when cancellation arrived.
		result := <-f.resultCh
		return result, ctx.Err()
	}
}

// Cancel trips the cancellation flag without waiting for a reply. Safe to
// call multiple times and safe to call after Wait has already returned.
func (f *Future) Cancel() {
	f.token.trip()
}
