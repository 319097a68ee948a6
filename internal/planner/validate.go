package planner

import (
	"sort"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// Validate checks plan against the ExecutionPlan invariants spec §3
// names: the step graph is acyclic, every predecessor id resolves to a
// step in the same plan, and no two steps write overlapping context
// slots (spec §9's context-collision open question, resolved as a
// planning-time rejection).
func Validate(plan *model.ExecutionPlan) error {
	byID := make(map[ids.StepID]model.ExecutionStep, len(plan.Steps))
	for _, s := range plan.Steps {
		if _, dup := byID[s.ID]; dup {
			return errors.Newf(errors.KindPlanningFailed, "duplicate step id %q", s.ID)
		}
		byID[s.ID] = s
	}
	for _, s := range plan.Steps {
		for _, pred := range s.Predecessors {
			if _, ok := byID[pred]; !ok {
				return errors.Newf(errors.KindPlanningFailed, "step %q references missing predecessor %q", s.ID, pred)
			}
		}
	}
	if cycle := findCycle(plan.Steps); cycle != "" {
		return errors.Newf(errors.KindPlanningFailed, "step dependency graph has a cycle through %q", cycle)
	}
	if collision := findContextCollision(plan.Steps); collision != "" {
		return errors.Newf(errors.KindPlanningFailed, "ContextCollision: context slot %q written by more than one step", collision)
	}
	return nil
}

// findCycle returns the id of a step participating in a cycle, or "" if
// the graph is acyclic. Uses the standard three-color DFS.
func findCycle(steps []model.ExecutionStep) ids.StepID {
	const (
		white = iota
		gray
		black
	)
	byID := make(map[ids.StepID]model.ExecutionStep, len(steps))
	color := make(map[ids.StepID]int, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		color[s.ID] = white
	}

	var visit func(id ids.StepID) ids.StepID
	visit = func(id ids.StepID) ids.StepID {
		color[id] = gray
		for _, pred := range byID[id].Predecessors {
			switch color[pred] {
			case gray:
				return pred
			case white:
				if c := visit(pred); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}

	// Sort ids for deterministic traversal order, matching the
	// deterministic-planning invariant even when reporting an error.
	ordered := make([]ids.StepID, 0, len(steps))
	for _, s := range steps {
		ordered = append(ordered, s.ID)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	for _, id := range ordered {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// findContextCollision returns the name of a context slot written by more
// than one step, or "" if every step's WritesContext is disjoint from
// every other's (spec §9).
func findContextCollision(steps []model.ExecutionStep) string {
	owner := make(map[string]ids.StepID)
	for _, s := range steps {
		for _, slot := range s.WritesContext {
			if prev, ok := owner[slot]; ok && prev != s.ID {
				return slot
			}
			owner[slot] = s.ID
		}
	}
	return ""
}
