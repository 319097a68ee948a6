package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/model"
	"github.com/taskcouncil/engine/internal/toolregistry"
)

// ToolWorker is the pool's production Worker implementation: it resolves
// a step's TaskType to a registered tool name and invokes it through the
// tool registry, the way the teacher's agent.ToolNodeImpl resolves and
// executes a tool call — but driven by a step's TaskType instead of a
// model-issued decision, since a worker here is a stateless capability
// rather than a turn in a conversation loop.
//
// One ToolWorker instance handles exactly one TaskType; callers register
// as many as the deployment has tools for, so the pool's capability
// matching in Select does the routing.
type ToolWorker struct {
	id       string
	taskType model.TaskType
	toolName string
	tools    *toolregistry.Registry
	log      *zap.Logger
}

// NewToolWorker builds a Worker that dispatches every step tagged
// taskType to the tool named toolName.
func NewToolWorker(id string, taskType model.TaskType, toolName string, tools *toolregistry.Registry, log *zap.Logger) *ToolWorker {
	return &ToolWorker{
		id:       id,
		taskType: taskType,
		toolName: toolName,
		tools:    tools,
		log:      log.With(zap.String("tool_worker", id)),
	}
}

func (w *ToolWorker) ID() string                    { return w.id }
func (w *ToolWorker) Capabilities() []model.TaskType { return []model.TaskType{w.taskType} }

// Run builds the tool's arguments from the step description and the
// task's accumulated context, invokes it, and folds the result into a
// StepResult. A tool-level error becomes a failed (not erroring)
// StepResult so the pipeline's own failure-policy handling decides what
// happens next, matching ToolNodeImpl.Exec's "don't propagate as error;
// record the failure" convention.
func (w *ToolWorker) Run(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
	args, err := json.Marshal(toolArguments{
		Step:     string(desc.Step.ID),
		Prompt:   desc.Step.Description,
		Context:  desc.Context,
		TaskID:   desc.TaskID.String(),
		RiskTier: int(desc.RiskTier),
		// path/command/content follow the convention that an upstream step
		// publishes them into the task's shared context via WritesContext;
		// a tool that needs one of these and doesn't find it reports its own
		// "missing argument" error, same as if the field were never sent.
		Path:    desc.Context["path"],
		Command: desc.Context["command"],
		Content: desc.Context["content"],
	})
	if err != nil {
		return StepResult{Failed: true, Reason: fmt.Sprintf("marshal tool arguments: %v", err)}, nil
	}

	select {
	case <-token.Done():
		return StepResult{Failed: true, Reason: "cancelled before dispatch"}, nil
	default:
	}

	result, err := w.tools.Invoke(ctx, w.toolName, args)
	if err != nil {
		w.log.Warn("tool invoke failed", zap.String("tool", w.toolName), zap.Error(err))
		return StepResult{Failed: true, Reason: err.Error()}, nil
	}
	if result.Error != "" {
		return StepResult{Failed: true, Reason: result.Error}, nil
	}

	return StepResult{
		Artifacts: []model.StepArtifact{{
			StepID:  desc.Step.ID,
			Kind:    "tool_output",
			Payload: result.Output,
		}},
	}, nil
}

// toolArguments is the fixed JSON shape every ToolWorker sends — a tool
// registered for pipeline use picks out whichever fields it needs (path,
// command, content, task_id, risk_tier, ...) and ignores the rest.
type toolArguments struct {
	Step     string            `json:"step"`
	Prompt   string            `json:"prompt"`
	Context  map[string]string `json:"context"`
	TaskID   string            `json:"task_id,omitempty"`
	RiskTier int               `json:"risk_tier,omitempty"`
	Path     string            `json:"path,omitempty"`
	Command  string            `json:"command,omitempty"`
	Content  string            `json:"content,omitempty"`
}
