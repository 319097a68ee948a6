// Package worker implements the worker pool (spec §4.4): capability
// matching, atomic load accounting, heartbeat-based health tracking, and
// dispatch of a step descriptor to the best-matched Worker.
package worker

import (
	"context"
	"time"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// StepDescriptor is the read-only payload handed to a worker for one
// dispatch (spec §4.4: "(step_descriptor, context, ModelRef,
// cancel_token) -> future<StepResult>"). TaskID and RiskTier travel
// alongside the step itself so a Worker can scope and gate its side
// effects to the task that owns this step, rather than operating against
// one shared, task-agnostic surface.
type StepDescriptor struct {
	Step     model.ExecutionStep
	Context  map[string]string // the task's read-only accumulated context
	Model    ids.ModelRef
	TaskID   ids.TaskId
	RiskTier model.RiskTier
}

// StepResult is what a worker call resolves to.
type StepResult struct {
	Artifacts []model.StepArtifact
	Failed    bool
	Reason    string
}

// CancelToken is the cooperative cancellation signal a dispatched call
// observes; workers must stop promptly once Done is closed, discarding
// any partial result (spec §5, "Cancellation is cooperative").
type CancelToken interface {
	Done() <-chan struct{}
}

// Worker is a stateless handler capability-matched against a step's
// TaskType. Any state a worker needs across calls lives in the task
// context or external storage (spec §4.4, "Workers are stateless across
// calls").
type Worker interface {
	ID() string
	Capabilities() []model.TaskType
	Run(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error)
}

// HandlerFunc adapts a plain function to the Worker interface for
// workers with no meaningful per-instance state beyond their
// capabilities.
type HandlerFunc func(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error)

// FuncWorker is a Worker built from a HandlerFunc plus a fixed id/
// capability set.
type FuncWorker struct {
	WorkerID  string
	Caps      []model.TaskType
	Handler   HandlerFunc
}

func (f *FuncWorker) ID() string                    { return f.WorkerID }
func (f *FuncWorker) Capabilities() []model.TaskType { return f.Caps }
func (f *FuncWorker) Run(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
	return f.Handler(ctx, desc, token)
}

// defaultHeartbeatTimeout is spec §4.4's "absent heartbeat for
// heartbeat_timeout (default 30s) marks it unhealthy".
const defaultHeartbeatTimeout = 30 * time.Second
