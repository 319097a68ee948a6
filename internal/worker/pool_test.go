package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/model"
)

func echoWorker(id string, caps ...model.TaskType) *FuncWorker {
	return &FuncWorker{
		WorkerID: id,
		Caps:     caps,
		Handler: func(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
			return StepResult{Artifacts: []model.StepArtifact{{StepID: desc.Step.ID, Kind: "echo"}}}, nil
		},
	}
}

func TestDispatchNoEligibleWorker(t *testing.T) {
	p := NewPool(zap.NewNop())
	_, err := p.Dispatch(context.Background(), StepDescriptor{Step: model.ExecutionStep{TaskType: "code_review"}}, NewCancelToken(context.Background()))
	require.Error(t, err)
	assert.Equal(t, errors.KindNoEligibleWorker, errors.KindOf(err))
}

func TestDispatchSelectsCapableWorker(t *testing.T) {
	p := NewPool(zap.NewNop())
	p.Register(echoWorker("w1", "code_review"), 4)

	result, err := p.Dispatch(context.Background(), StepDescriptor{Step: model.ExecutionStep{ID: "s1", TaskType: "code_review"}}, NewCancelToken(context.Background()))
	require.NoError(t, err)
	assert.Len(t, result.Artifacts, 1)
}

func TestSelectBreaksTiesByLoadThenID(t *testing.T) {
	p := NewPool(zap.NewNop())
	p.Register(echoWorker("w-b", "code_review"), 4)
	p.Register(echoWorker("w-a", "code_review"), 4)

	w, ok := p.Select("code_review")
	require.True(t, ok)
	assert.Equal(t, "w-a", w.ID(), "equal load must break ties by lowest worker id")
}

func TestSelectExcludesOverloadedWorker(t *testing.T) {
	p := NewPool(zap.NewNop())
	p.Register(echoWorker("w1", "code_review"), 1)
	p.entries["w1"].load.Store(1)

	_, ok := p.Select("code_review")
	assert.False(t, ok)
}

func TestSelectExcludesUnhealthyWorker(t *testing.T) {
	p := NewPool(zap.NewNop())
	p.Register(echoWorker("w1", "code_review"), 4)
	p.MarkUnhealthy("w1")

	_, ok := p.Select("code_review")
	assert.False(t, ok)
}

func TestHeartbeatRestoresHealth(t *testing.T) {
	p := NewPool(zap.NewNop())
	p.Register(echoWorker("w1", "code_review"), 4)
	p.MarkUnhealthy("w1")
	p.Heartbeat("w1")

	_, ok := p.Select("code_review")
	assert.True(t, ok)
}

func TestLoadCountersAreAccountedAroundTheCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	w := &FuncWorker{
		WorkerID: "w1",
		Caps:     []model.TaskType{"code_review"},
		Handler: func(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
			close(started)
			<-release
			return StepResult{}, nil
		},
	}
	p.Register(w, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Dispatch(context.Background(), StepDescriptor{Step: model.ExecutionStep{TaskType: "code_review"}}, NewCancelToken(context.Background()))
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker never started")
	}
	load, _, _ := p.Load("w1")
	assert.Equal(t, int64(1), load)

	close(release)
	wg.Wait()
	load, _, _ = p.Load("w1")
	assert.Equal(t, int64(0), load)
}
