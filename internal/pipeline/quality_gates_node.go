package pipeline

import (
	"context"
	"strings"

	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/gates"
	"github.com/taskcouncil/engine/internal/model"
)

// qualityGatesNode implements the QualityGates state in spec §3's
// diagram: a checkpoint after all steps have completed that looks at
// the aggregate gate results executeNode already collected and decides
// whether the task may proceed to council final review at all, or must
// fail outright because a manual-review gate is still unresolved and
// nothing overrode it (manual-review gates never self-resolve — see
// internal/gates's manual-review evaluator).
type qualityGatesNode struct {
	d *Driver
}

func (n *qualityGatesNode) Prep(state *model.Task) []*model.Task { return prepSingleton(state) }

func (n *qualityGatesNode) Exec(ctx context.Context, task *model.Task) (phaseOutcome, error) {
	if outcome, done := n.checkInbox(ctx, task); done {
		return outcome, nil
	}

	var pendingManualReview []string
	if task.Result != nil {
		for i, g := range task.Result.FinalGates {
			// An override arriving after the owning step already ran is
			// reconciled here, matched on gate id alone — by the time a
			// gate reaches this checkpoint its originating step id is no
			// longer tracked on the result, only in OverrideApprovals'
			// composite key, so any override naming this gate id applies.
			for key, decision := range task.OverrideApprovals {
				if strings.HasSuffix(key, "/"+g.GateID) {
					g = gates.ApplyOverride(g, decision)
					task.Result.FinalGates[i] = g
					break
				}
			}
			if g.Kind == model.GateManualReview && g.Status == model.GateWarn {
				pendingManualReview = append(pendingManualReview, g.GateID)
			}
		}
	}

	if len(pendingManualReview) > 0 {
		if err := n.d.transition(ctx, model.StateFailed, "manual review gates awaiting operator override: "+strings.Join(pendingManualReview, ", ")); err != nil {
			return phaseOutcome{}, err
		}
		return phaseOutcome{action: core.ActionFailure}, nil
	}

	if err := n.d.transition(ctx, model.StateCouncilFinalReview, ""); err != nil {
		return phaseOutcome{}, err
	}
	return phaseOutcome{action: core.ActionSuccess}, nil
}

// checkInbox mirrors executeNode's inbox check: a Cancel arriving right
// after the last step completed should still be honored before the
// task is handed to final review.
func (n *qualityGatesNode) checkInbox(ctx context.Context, task *model.Task) (phaseOutcome, bool) {
	cmds := n.d.inbox.Drain()
	_, cancel := n.d.applyQueuedCommands(task, cmds)
	if cancel {
		if err := n.d.transition(ctx, model.StateCancelled, "cancelled before final review"); err != nil {
			return phaseOutcome{}, true
		}
		return phaseOutcome{action: actionCancelled}, true
	}
	return phaseOutcome{}, false
}

func (n *qualityGatesNode) Post(state *model.Task, prep []*model.Task, results ...phaseOutcome) core.Action {
	return postForward(state, prep, results...)
}

func (n *qualityGatesNode) ExecFallback(err error) phaseOutcome { return fallbackFailure(err) }
