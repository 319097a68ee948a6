package inference

import "context"

// NativeHandle is an opaque per-backend handle returned by Backend.Load.
// It is never stored in any value handed to another goroutine; only the
// ModelRef that indexes it crosses that boundary (spec §9).
type NativeHandle any

// Backend implements one model-serving family (spec §4.1). A Backend is
// stateless across calls — whatever state a loaded model needs lives in
// the NativeHandle, which the runtime keeps in a thread-local table on
// the owning goroutine.
type Backend interface {
	Tag() BackendTag

	// Exclusive reports whether handles from this backend must be pinned
	// to a dedicated, OS-thread-locked goroutine (true for on-device
	// native handles) or may share a single owner goroutine serving many
	// models (false for local HTTP / remote API backends, whose clients
	// are already goroutine-safe — spec §4.1).
	Exclusive() bool

	// Load validates and opens a model from its descriptor. Called on the
	// owner goroutine that will hold the resulting handle.
	Load(ctx context.Context, desc ModelDescriptor) (NativeHandle, error)

	// Invoke runs one inference call against a previously loaded handle.
	// Called on the owner goroutine; may block the goroutine for the
	// full duration of the call (spec §4.1 step 3).
	Invoke(ctx context.Context, handle NativeHandle, req InferenceRequest) (InferenceResult, error)

	// Unload releases any resources held by handle.
	Unload(handle NativeHandle)
}
