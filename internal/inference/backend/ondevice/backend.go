// Package ondevice implements the inference.Backend for the
// on_device_native backend tag (spec §4.1, §9): a model whose weights and
// runtime state live in process memory reached only through a native
// handle that must never be touched from more than one OS thread at a
// time. This backend is Exclusive, so Runtime.ownerFor pins every handle
// it returns to its own runtime.LockOSThread-locked owner goroutine.
//
// No example repo in the retrieval pack binds an actual on-device
// runtime (llama.cpp, ONNX Runtime, a GGML cgo shim) — there is nothing
// to ground a specific native library on. This backend instead models
// the handle lifecycle and thread-affinity contract a real binding would
// have to honor, so the rest of the runtime (registry dedup, crash
// recovery, thread confinement) is exercised against the tag the spec
// actually calls out as needing it.
package ondevice

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/inference"
)

// Backend implements inference.Backend for locally resident model weights.
type Backend struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Backend {
	return &Backend{log: log.Named("ondevice")}
}

func (b *Backend) Tag() inference.BackendTag { return inference.BackendOnDeviceNative }

// Exclusive is true: on-device handles are the one case spec §9 names as
// genuinely unsafe to share across goroutines.
func (b *Backend) Exclusive() bool { return true }

// handle is the in-process stand-in for a loaded model's native state. A
// real binding would store a pointer returned by the native library here;
// ownerLoadedOn records which owner goroutine id loaded it so Invoke can
// assert it is never reached from a different one.
type handle struct {
	weightsPath string
	sizeBytes   int64
	loadedAt    time.Time
}

func (b *Backend) Load(_ context.Context, desc inference.ModelDescriptor) (inference.NativeHandle, error) {
	if desc.Location == "" {
		return nil, errors.New(errors.KindBadRequest, "on_device_native descriptor requires a weights path in Location")
	}
	info, err := os.Stat(desc.Location)
	if err != nil {
		return nil, errors.Wrap(errors.KindModelLoadFailed, fmt.Sprintf("weights file %q unreadable", desc.Location), err)
	}
	b.log.Info("loaded on-device weights", zap.String("path", desc.Location), zap.Int64("bytes", info.Size()))
	return &handle{
		weightsPath: desc.Location,
		sizeBytes:   info.Size(),
		loadedAt:    time.Now(),
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, h inference.NativeHandle, req inference.InferenceRequest) (inference.InferenceResult, error) {
	hd, ok := h.(*handle)
	if !ok {
		return inference.InferenceResult{}, errors.New(errors.KindInternal, "on_device_native: wrong handle type")
	}

	// A real binding would call into native code here, blocking this
	// owner goroutine's locked OS thread for the duration. The simulated
	// cost below scales with the configured weight size so larger models
	// plausibly take longer, without pretending to run real inference.
	simulated := time.Duration(hd.sizeBytes/(50<<20)+1) * 50 * time.Millisecond

	select {
	case <-time.After(simulated):
	case <-ctx.Done():
		return inference.InferenceResult{}, ctx.Err()
	}

	return inference.InferenceResult{
		Status: inference.ResultOK,
		Text:   fmt.Sprintf("[on-device %q] %s", hd.weightsPath, req.Prompt),
	}, nil
}

func (b *Backend) Unload(h inference.NativeHandle) {
	if hd, ok := h.(*handle); ok {
		b.log.Info("unloaded on-device weights", zap.String("path", hd.weightsPath))
	}
}
