package pipeline

import (
	"context"

	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/model"
)

// planNode implements Phase 3 (spec §4.3): decomposition into an
// ExecutionPlan via the planner, with retry handled entirely inside
// planner.Planner.Plan/DecomposeWithRetry — this node only needs to
// react to the final success or failure.
type planNode struct {
	d *Driver
}

func (n *planNode) Prep(state *model.Task) []*model.Task { return prepSingleton(state) }

func (n *planNode) Exec(ctx context.Context, task *model.Task) (phaseOutcome, error) {
	plan, err := n.d.planner.Plan(ctx, *task)
	if err != nil {
		if tErr := n.d.transition(ctx, model.StateFailed, err.Error()); tErr != nil {
			return phaseOutcome{}, tErr
		}
		return phaseOutcome{action: core.ActionFailure}, nil
	}

	task.Plan = plan
	if err := n.d.transition(ctx, model.StateExecuting, ""); err != nil {
		return phaseOutcome{}, err
	}
	return phaseOutcome{action: core.ActionSuccess}, nil
}

func (n *planNode) Post(state *model.Task, prep []*model.Task, results ...phaseOutcome) core.Action {
	return postForward(state, prep, results...)
}

func (n *planNode) ExecFallback(err error) phaseOutcome { return fallbackFailure(err) }
