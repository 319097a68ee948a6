package pipeline

import (
	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/model"
)

// phaseOutcome is the shared ExecResults type every phase node returns.
// Each phase's Exec already performs the driver.transition that moves
// the task to its next (or terminal) state, so Post only needs to
// forward the routing decision Exec already made.
type phaseOutcome struct {
	action core.Action
}

// prepSingleton is the Prep implementation shared by every phase node:
// each phase operates on the whole task as one unit, never fanning out
// inside core.Node's per-item retry loop.
func prepSingleton(t *model.Task) []*model.Task { return []*model.Task{t} }

// postForward is the Post implementation shared by every phase node:
// with exactly one PrepResult per Run there is exactly one ExecResults
// to forward as the routing action.
func postForward(_ *model.Task, _ []*model.Task, results ...phaseOutcome) core.Action {
	if len(results) == 0 {
		return core.ActionFailure
	}
	return results[0].action
}

// fallbackFailure is the ExecFallback shared by every phase node: an
// Exec that returns an error (a collaborator call failing, not a
// business rejection — those are reported via phaseOutcome.action, not
// error) always routes to failure.
func fallbackFailure(error) phaseOutcome {
	return phaseOutcome{action: core.ActionFailure}
}
