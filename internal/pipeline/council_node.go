package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/council"
	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/model"
)

// councilNode implements both council stages spec §3's state diagram
// names — CouncilPreReview (Phase 2) and CouncilFinalReview (Phase 5) —
// since both share the same Deliberate/verdict-dispatch shape and
// differ only in which states they transition between and whether a
// draft TaskResult is attached to the StageInput.
type councilNode struct {
	d     *Driver
	stage string // "pre_review" | "final_review"
}

func (n *councilNode) Prep(state *model.Task) []*model.Task { return prepSingleton(state) }

func (n *councilNode) Exec(ctx context.Context, task *model.Task) (phaseOutcome, error) {
	for {
		in := council.StageInput{Stage: n.stage, Task: *task}
		if n.stage == "final_review" {
			in.DraftResult = n.draftResult(task)
		}

		verdict, _, err := n.d.council.Deliberate(ctx, in)
		if err != nil {
			return phaseOutcome{}, errors.Wrap(errors.KindInternal, "council deliberation", err)
		}

		if err := n.d.recordEvent(ctx, model.TaskEvent{
			Kind: model.EventVerdictRendered, At: time.Now(), Stage: n.stage, VerdictSummary: string(verdict.Kind) + ": " + verdict.Reasoning,
		}); err != nil {
			return phaseOutcome{}, err
		}

		switch verdict.Kind {
		case model.VerdictRejected:
			to := model.StateRejected
			if n.stage == "final_review" {
				to = model.StateFailed
			}
			if err := n.d.transition(ctx, to, "council rejected: "+verdict.Reasoning); err != nil {
				return phaseOutcome{}, err
			}
			return phaseOutcome{action: actionRejected}, nil

		case model.VerdictConditional:
			task.Conditions = append(task.Conditions, verdict.Conditions...)
			if err := n.advance(ctx, task); err != nil {
				return phaseOutcome{}, err
			}
			return phaseOutcome{action: core.ActionSuccess}, nil

		case model.VerdictApproved:
			if err := n.advance(ctx, task); err != nil {
				return phaseOutcome{}, err
			}
			return phaseOutcome{action: core.ActionSuccess}, nil

		case model.VerdictEscalated:
			if err := n.d.transition(ctx, model.StateEscalated, "council escalated: "+verdict.Reasoning); err != nil {
				return phaseOutcome{}, err
			}
			cmd, resolved := n.d.awaitIntervention(ctx, n.d.escalationDeadline())
			if !resolved {
				if err := n.d.transition(ctx, model.StateFailed, fmt.Sprintf("%s: escalation timed out with no human override", errors.KindEscalationTimeout)); err != nil {
					return phaseOutcome{}, err
				}
				return phaseOutcome{action: actionEscalated}, nil
			}
			n.d.escalation.Clear(task.ID)
			if cmd.Kind == model.InterventionCancel {
				if err := n.d.transition(ctx, model.StateCancelled, "cancelled while escalated: "+cmd.Reason); err != nil {
					return phaseOutcome{}, err
				}
				return phaseOutcome{action: actionCancelled}, nil
			}
			// Resume (human override "proceed") re-enters deliberation
			// from the stage's start state before looping, so the
			// re-run verdict is persisted the same way a first-pass one
			// would be.
			if err := n.d.transition(ctx, n.preReviewOrFinalReviewState(), ""); err != nil {
				return phaseOutcome{}, err
			}
			continue
		}
		return phaseOutcome{}, errors.Newf(errors.KindInternal, "unrecognized verdict kind %q", verdict.Kind)
	}
}

func (n *councilNode) preReviewOrFinalReviewState() model.TaskState {
	if n.stage == "final_review" {
		return model.StateCouncilFinalReview
	}
	return model.StateCouncilPreReview
}

func (n *councilNode) advance(ctx context.Context, task *model.Task) error {
	if n.stage == "final_review" {
		return n.d.transition(ctx, model.StateCompleted, "")
	}
	return n.d.transition(ctx, model.StatePlanning, "")
}

func (n *councilNode) draftResult(task *model.Task) *model.TaskResult {
	if task.Result != nil {
		return task.Result
	}
	return &model.TaskResult{State: model.StateCouncilFinalReview}
}

func (n *councilNode) Post(state *model.Task, prep []*model.Task, results ...phaseOutcome) core.Action {
	return postForward(state, prep, results...)
}

func (n *councilNode) ExecFallback(err error) phaseOutcome { return fallbackFailure(err) }
