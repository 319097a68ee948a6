package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/model"
)

// Planner assembles an ExecutionPlan for a task (spec §4.3 Phase 3):
// model selection, resource allocation, optional council-assisted step
// decomposition, and critical-path computation, finishing with
// Validate before the plan is handed back to the pipeline.
type Planner struct {
	models     *ModelTable
	resources  ResourceTable
	decomposer Decomposer
	log        *zap.Logger
}

func New(models *ModelTable, resources ResourceTable, decomposer Decomposer, log *zap.Logger) *Planner {
	if resources == nil {
		resources = DefaultResourceTable()
	}
	return &Planner{models: models, resources: resources, decomposer: decomposer, log: log.Named("planner")}
}

// Plan builds a complete ExecutionPlan for task. If task.RiskTier or its
// requirements call for decomposition (task.Complex, see isComplex), it
// delegates to the configured Decomposer with bounded retry; otherwise it
// builds a single-step plan directly from the task description.
func (p *Planner) Plan(ctx context.Context, task model.Task) (*model.ExecutionPlan, error) {
	finish := func(steps []model.ExecutionStep) (*model.ExecutionPlan, error) {
		return p.finishPlan(steps)
	}

	if p.decomposer != nil && isComplex(task) {
		return DecomposeWithRetry(ctx, p.decomposer, task, finish)
	}
	return finish([]model.ExecutionStep{singleStep(task)})
}

// isComplex decides whether task warrants multi-step decomposition. A
// task is treated as complex once it carries more than one requirement
// or is tagged critical risk — both signal work a single worker call is
// unlikely to complete faithfully.
func isComplex(task model.Task) bool {
	return len(task.Requirements) > 1 || task.RiskTier == model.RiskCritical
}

func singleStep(task model.Task) model.ExecutionStep {
	return model.ExecutionStep{
		ID:          "step-1",
		Description: task.Description,
		TaskType:    model.TaskType("general"),
		Complexity:  model.ComplexitySimple,
	}
}

// finishPlan fills in each step's model assignment, resource grant, and
// failure policy default, then computes critical path and parallel
// groups and validates the whole plan.
func (p *Planner) finishPlan(steps []model.ExecutionStep) (*model.ExecutionPlan, error) {
	finished := make([]model.ExecutionStep, len(steps))
	for i, s := range steps {
		if p.models != nil {
			if ref, ok := p.models.Select(s.TaskType, requirementsOf(s)); ok {
				s.Model = ref
			}
		}
		s.Resources = p.resources.Allocate(s.Complexity)
		if s.Timeout == 0 {
			s.Timeout = s.Resources.Timeout
		}
		if s.FailurePolicy.Kind == "" {
			s.FailurePolicy = model.StepFailurePolicy{Kind: model.FailureFailStep}
		}
		finished[i] = s
	}

	plan := &model.ExecutionPlan{Steps: finished}
	path, duration := CriticalPath(finished)
	plan.CriticalPath = path
	plan.EstimatedDuration = duration
	plan.ParallelGroups = ParallelGroups(finished)

	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// requirementsOf extracts the requirement tags a step's model-selection
// lookup should consider. Steps produced by decomposition don't carry
// their own requirements list, so this degenerates to the task-type
// string itself, letting a ModelTable register a wildcard per type.
func requirementsOf(s model.ExecutionStep) []string {
	return []string{string(s.TaskType)}
}
