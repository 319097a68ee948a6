package worker

import "context"

// ctxCancelToken adapts a context.Context to CancelToken, letting the
// pipeline cancel a dispatched step the same way it cancels everything
// else downstream of a task cancellation.
type ctxCancelToken struct {
	ctx context.Context
}

// NewCancelToken returns a CancelToken bound to ctx's cancellation.
func NewCancelToken(ctx context.Context) CancelToken {
	return ctxCancelToken{ctx: ctx}
}

func (t ctxCancelToken) Done() <-chan struct{} { return t.ctx.Done() }
