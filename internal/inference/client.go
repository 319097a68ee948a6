package inference

import (
	"context"

	"github.com/taskcouncil/engine/internal/ids"
)

// Client is the cheap, copyable handle judges and workers hold onto; it
// carries no native state of its own, only a reference to the shared
// Runtime (spec §4.1: "callers interact with models only through opaque
// tokens").
type Client struct {
	rt *Runtime
}

// NewClient wraps rt for use by pipeline/council/worker code that should
// not see Runtime's supervisor-only methods.
func NewClient(rt *Runtime) Client {
	return Client{rt: rt}
}

func (c Client) LoadModel(ctx context.Context, desc ModelDescriptor) (ids.ModelRef, error) {
	return c.rt.LoadModel(ctx, desc)
}

func (c Client) UnloadModel(ctx context.Context, ref ids.ModelRef) error {
	return c.rt.UnloadModel(ctx, ref)
}

func (c Client) EnqueueInference(ctx context.Context, req InferenceRequest) (*Future, error) {
	return c.rt.EnqueueInference(ctx, req)
}

// Invoke is the common synchronous-from-the-caller's-perspective
// convenience built on EnqueueInference + Future.Wait, used by callers
// (council judges, workers) that don't need to overlap multiple in-flight
// requests against the same client.
func (c Client) Invoke(ctx context.Context, req InferenceRequest) (InferenceResult, error) {
	future, err := c.rt.EnqueueInference(ctx, req)
	if err != nil {
		return InferenceResult{}, err
	}
	return future.Wait(ctx)
}

func (c Client) IsLoaded(ref ids.ModelRef) bool {
	return c.rt.Registry().Loaded(ref)
}
