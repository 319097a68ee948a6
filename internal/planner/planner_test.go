package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

func TestPlannerSingleStepForSimpleTask(t *testing.T) {
	p := New(NewModelTable(), nil, nil, zap.NewNop())
	task := model.Task{Description: "rename a variable", Requirements: []string{"code"}}

	plan, err := p.Plan(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
	assert.Equal(t, []ids.StepID{"step-1"}, plan.CriticalPath)
}

type stubDecomposer struct {
	attempts [][]model.ExecutionStep
	call     int
}

func (s *stubDecomposer) Decompose(ctx context.Context, task model.Task) ([]model.ExecutionStep, error) {
	out := s.attempts[s.call]
	s.call++
	return out, nil
}

func TestPlannerRetriesDecompositionOnInvalidPlan(t *testing.T) {
	invalid := []model.ExecutionStep{
		{ID: "a", Predecessors: []ids.StepID{"ghost"}},
	}
	valid := []model.ExecutionStep{
		{ID: "a"},
		{ID: "b", Predecessors: []ids.StepID{"a"}},
	}
	d := &stubDecomposer{attempts: [][]model.ExecutionStep{invalid, valid}}
	p := New(NewModelTable(), nil, d, zap.NewNop())

	task := model.Task{Description: "multi-part task", Requirements: []string{"a", "b"}}
	plan, err := p.Plan(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	assert.Equal(t, 2, d.call)
}

func TestPlannerFailsAfterExhaustingRetries(t *testing.T) {
	invalid := []model.ExecutionStep{{ID: "a", Predecessors: []ids.StepID{"ghost"}}}
	d := &stubDecomposer{attempts: [][]model.ExecutionStep{invalid, invalid, invalid}}
	p := New(NewModelTable(), nil, d, zap.NewNop())

	task := model.Task{Description: "multi-part task", Requirements: []string{"a", "b"}}
	_, err := p.Plan(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, errors.KindPlanningFailed, errors.KindOf(err))
	assert.Equal(t, 3, d.call, "must retry exactly twice after the first failure (3 total attempts)")
}

func TestPlannerUsesModelTableForStepAssignment(t *testing.T) {
	table := NewModelTable()
	table.Register("general", "", "default-model", ids.ModelRef(42))
	p := New(table, nil, nil, zap.NewNop())

	task := model.Task{Description: "simple", Requirements: []string{"code"}}
	plan, err := p.Plan(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, ids.ModelRef(42), plan.Steps[0].Model)
}
