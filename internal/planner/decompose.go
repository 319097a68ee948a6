package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/inference"
	"github.com/taskcouncil/engine/internal/model"
)

// maxDecompositionRetries is spec §4.3 Phase 3's "retries decomposition
// up to 2 times" before transitioning to Failed{PlanningFailed}.
const maxDecompositionRetries = 2

// Decomposer turns a complex task into a draft set of steps. The
// standard implementation asks a model via a restricted prompt (spec
// §4.3: "the decomposition algorithm is allowed to be a judge"); its
// output must still pass Validate before the plan is accepted.
type Decomposer interface {
	Decompose(ctx context.Context, task model.Task) ([]model.ExecutionStep, error)
}

// LLMDecomposer is the standard Decomposer: one inference call that asks
// for a JSON array of step descriptors, grounded on the same
// prompt-then-parse shape council.LLMJudge uses for verdicts.
type LLMDecomposer struct {
	client inference.Client
	model  ids.ModelRef
	log    *zap.Logger
}

func NewLLMDecomposer(client inference.Client, modelRef ids.ModelRef, log *zap.Logger) *LLMDecomposer {
	return &LLMDecomposer{client: client, model: modelRef, log: log.Named("planner.decompose")}
}

type stepDraft struct {
	ID                string   `json:"id"`
	Description       string   `json:"description"`
	TaskType          string   `json:"task_type"`
	Complexity        string   `json:"complexity"`
	Predecessors      []string `json:"predecessors"`
	EstimatedSeconds  float64  `json:"estimated_seconds"`
	WritesContext     []string `json:"writes_context"`
}

func (d *LLMDecomposer) Decompose(ctx context.Context, task model.Task) ([]model.ExecutionStep, error) {
	prompt := decompositionPrompt(task)
	result, err := d.client.Invoke(ctx, inference.InferenceRequest{
		Model:      d.model,
		SystemText: "You decompose a task description into an ordered list of execution steps. Respond with only a JSON array.",
		Prompt:     prompt,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindPlanningFailed, "decomposition inference call failed", err)
	}
	if result.Status != inference.ResultOK {
		return nil, errors.Newf(errors.KindPlanningFailed, "decomposition inference returned status %q", result.Status)
	}

	var drafts []stepDraft
	if err := json.Unmarshal([]byte(extractJSONArray(result.Text)), &drafts); err != nil {
		return nil, errors.Wrap(errors.KindPlanningFailed, "decomposition output did not parse as JSON", err)
	}
	if len(drafts) == 0 {
		return nil, errors.New(errors.KindPlanningFailed, "decomposition produced no steps")
	}

	steps := make([]model.ExecutionStep, 0, len(drafts))
	for _, dft := range drafts {
		preds := make([]ids.StepID, 0, len(dft.Predecessors))
		for _, p := range dft.Predecessors {
			preds = append(preds, ids.StepID(p))
		}
		steps = append(steps, model.ExecutionStep{
			ID:                ids.StepID(dft.ID),
			Description:       dft.Description,
			TaskType:          model.TaskType(dft.TaskType),
			Complexity:        complexityOrDefault(dft.Complexity),
			Predecessors:      preds,
			EstimatedDuration: time.Duration(dft.EstimatedSeconds * float64(time.Second)),
			WritesContext:     dft.WritesContext,
		})
	}
	return steps, nil
}

func complexityOrDefault(raw string) model.Complexity {
	switch model.Complexity(raw) {
	case model.ComplexitySimple, model.ComplexityComplex, model.ComplexityHighThroughput:
		return model.Complexity(raw)
	default:
		return model.ComplexitySimple
	}
}

func decompositionPrompt(task model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	fmt.Fprintf(&b, "Requirements: %s\n", strings.Join(task.Requirements, ", "))
	b.WriteString("Respond with a JSON array of objects: ")
	b.WriteString(`{"id": string, "description": string, "task_type": string, "complexity": "simple|complex|high_throughput", "predecessors": [string], "estimated_seconds": number, "writes_context": [string]}`)
	return b.String()
}

func extractJSONArray(text string) string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return "[]"
	}
	return text[start : end+1]
}

// DecomposeWithRetry runs d up to maxDecompositionRetries+1 times,
// validating each attempt's raw steps (after model/resource assignment)
// against Validate, and returns the first attempt that validates (spec
// §4.3 Phase 3: "If validation fails, the pipeline retries decomposition
// up to 2 times; further failures transition to Failed{PlanningFailed}").
func DecomposeWithRetry(ctx context.Context, d Decomposer, task model.Task, finish func([]model.ExecutionStep) (*model.ExecutionPlan, error)) (*model.ExecutionPlan, error) {
	var lastErr error
	for attempt := 0; attempt <= maxDecompositionRetries; attempt++ {
		steps, err := d.Decompose(ctx, task)
		if err != nil {
			lastErr = err
			continue
		}
		plan, err := finish(steps)
		if err != nil {
			lastErr = err
			continue
		}
		return plan, nil
	}
	return nil, errors.Wrap(errors.KindPlanningFailed, "decomposition did not produce a valid plan after retries", lastErr)
}
