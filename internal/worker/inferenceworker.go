package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/inference"
	"github.com/taskcouncil/engine/internal/model"
)

// InferenceWorker is the Worker that actually runs a step by invoking a
// model through inference.Client, the way the teacher's think/answer
// nodes call the LLM client for a single completion — generalized here
// from "produce the agent's next reply" to "produce one step's
// artifact". One InferenceWorker instance handles exactly one TaskType.
type InferenceWorker struct {
	id       string
	taskType model.TaskType
	client   inference.Client
	log      *zap.Logger
}

func NewInferenceWorker(id string, taskType model.TaskType, client inference.Client, log *zap.Logger) *InferenceWorker {
	return &InferenceWorker{id: id, taskType: taskType, client: client, log: log.With(zap.String("inference_worker", id))}
}

func (w *InferenceWorker) ID() string                    { return w.id }
func (w *InferenceWorker) Capabilities() []model.TaskType { return []model.TaskType{w.taskType} }

func (w *InferenceWorker) Run(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
	select {
	case <-token.Done():
		return StepResult{Failed: true, Reason: "cancelled before dispatch"}, nil
	default:
	}

	result, err := w.client.Invoke(ctx, inference.InferenceRequest{
		Model:      desc.Model,
		SystemText: "You are completing one step of a larger plan. Respond with the step's finished output only.",
		Prompt:     buildStepPrompt(desc),
	})
	if err != nil {
		return StepResult{Failed: true, Reason: err.Error()}, nil
	}
	if result.Status != inference.ResultOK {
		return StepResult{Failed: true, Reason: "inference status: " + string(result.Status)}, nil
	}

	return StepResult{
		Artifacts: []model.StepArtifact{{StepID: desc.Step.ID, Kind: "model_output", Payload: result.Text}},
	}, nil
}

func buildStepPrompt(desc StepDescriptor) string {
	var b strings.Builder
	b.WriteString(desc.Step.Description)
	if len(desc.Context) > 0 {
		b.WriteString("\n\nAccumulated context:\n")
		for k, v := range desc.Context {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}
