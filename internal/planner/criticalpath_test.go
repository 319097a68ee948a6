package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

func step(id string, dur time.Duration, preds ...string) model.ExecutionStep {
	predIDs := make([]ids.StepID, len(preds))
	for i, p := range preds {
		predIDs[i] = ids.StepID(p)
	}
	return model.ExecutionStep{ID: ids.StepID(id), EstimatedDuration: dur, Predecessors: predIDs}
}

func TestCriticalPathSimpleChain(t *testing.T) {
	steps := []model.ExecutionStep{
		step("a", time.Second),
		step("b", 2*time.Second, "a"),
		step("c", time.Second, "b"),
	}
	path, total := CriticalPath(steps)
	assert.Equal(t, []ids.StepID{"a", "b", "c"}, path)
	assert.Equal(t, 4*time.Second, total)
}

func TestCriticalPathPicksLongestBranch(t *testing.T) {
	// a -> b (1s) -> d (1s)   total 2s via a,b,d
	// a -> c (5s) -> d (1s)   total 6s via a,c,d
	steps := []model.ExecutionStep{
		step("a", time.Second),
		step("b", time.Second, "a"),
		step("c", 5*time.Second, "a"),
		step("d", time.Second, "b", "c"),
	}
	path, total := CriticalPath(steps)
	assert.Equal(t, []ids.StepID{"a", "c", "d"}, path)
	assert.Equal(t, 7*time.Second, total)
}

func TestCriticalPathTieBreaksByStepID(t *testing.T) {
	// Two equal-length branches from a to d; tie-break must prefer "b"
	// over "c" lexicographically.
	steps := []model.ExecutionStep{
		step("a", time.Second),
		step("b", time.Second, "a"),
		step("c", time.Second, "a"),
		step("d", time.Second, "b", "c"),
	}
	path, _ := CriticalPath(steps)
	assert.Contains(t, path, ids.StepID("b"))
	assert.NotContains(t, path, ids.StepID("c"))
}

func TestParallelGroups(t *testing.T) {
	steps := []model.ExecutionStep{
		step("a", time.Second),
		step("b", time.Second, "a"),
		step("c", time.Second, "a"),
		step("d", time.Second, "b", "c"),
	}
	groups := ParallelGroups(steps)
	if assert.Len(t, groups, 3) {
		assert.Equal(t, []ids.StepID{"a"}, groups[0])
		assert.Equal(t, []ids.StepID{"b", "c"}, groups[1])
		assert.Equal(t, []ids.StepID{"d"}, groups[2])
	}
}
