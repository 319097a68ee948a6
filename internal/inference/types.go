// Package inference implements the thread-confined model inference layer
// (spec §4.1): a cheap, copyable, cross-goroutine InferenceClient handle
// backed by a Registry that pins non-thread-safe native model handles to
// dedicated owner goroutines, coordinated by channel message passing.
//
// "Thread" in this spec maps to a goroutine locked to its OS thread via
// runtime.LockOSThread for the on-device native backend (the only backend
// whose handles are genuinely unsafe to move), and to a plain goroutine
// for the local HTTP and remote API backends, which may share a single
// owner across many loaded models (spec §4.1, "Backends").
package inference

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/taskcouncil/engine/internal/ids"
)

// BackendTag names one of the three backend families spec §4.1 requires
// at minimum.
type BackendTag string

const (
	BackendOnDeviceNative BackendTag = "on_device_native"
	BackendLocalHTTP      BackendTag = "local_http"
	BackendRemoteAPI      BackendTag = "remote_api"
)

// ModelDescriptor names a backend and a backend-specific location
// (spec §6). It must be hashable so identical descriptors resolve to the
// same loaded ModelRef.
type ModelDescriptor struct {
	Backend  BackendTag
	Location string            // path, URL, or remote model identifier
	Config   map[string]string // backend-specific auth/config, e.g. api_key_env
}

// Hash returns a canonical FNV-1a digest over (backend, location, sorted
// config keys/values), used by the registry's load-dedup path
// (SPEC_FULL §E.2).
func (d ModelDescriptor) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00", d.Backend, d.Location)
	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\x00", k, d.Config[k])
	}
	return h.Sum64()
}

// InferenceRequest is the payload a judge or worker sends for a single
// inference call.
type InferenceRequest struct {
	Model       ids.ModelRef
	Prompt      string
	SystemText  string
	MaxTokens   int
	Temperature float64
}

// ResultStatus distinguishes a successful completion from the terminal
// failure kinds spec §4.1 names for enqueue_inference.
type ResultStatus string

const (
	ResultOK        ResultStatus = "ok"
	ResultCancelled ResultStatus = "cancelled"
	ResultTimeout   ResultStatus = "timeout"
	ResultNotFound  ResultStatus = "model_not_found"
	ResultCrashed   ResultStatus = "backend_crashed"
	ResultOverload  ResultStatus = "overloaded"
)

// InferenceResult is what an InferenceClient future resolves to.
type InferenceResult struct {
	Status  ResultStatus
	Text    string
	Elapsed time.Duration
}
