package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
	"github.com/taskcouncil/engine/internal/storage"
)

// SubmitRequest is the external-facing shape of a new task (spec §6).
type SubmitRequest struct {
	Description   string
	Requirements  []string
	ExecutionMode model.ExecutionMode
	RiskTier      model.RiskTier
	Priority      model.Priority
	Deadline      *time.Time
}

// Snapshot is a consistent, externally-safe point-in-time read of a
// task (spec §3 Ownership: observers "get consistent point-in-time
// snapshots, never mutable access").
type Snapshot = model.Task

// Pipeline is the engine's single exported entry point: the four
// operations spec §6 names (submit/observe/intervene/query), fanned
// out across one Driver goroutine per in-flight task.
type Pipeline struct {
	cfg   Config
	deps  Collaborators
	log   *zap.Logger

	mu      sync.RWMutex
	drivers map[ids.TaskId]*Driver
}

// New constructs a Pipeline. cfg.StepConcurrencyPerTask, EscalationTimeout,
// MaxInterventionInboxSize, and ObservationLagThreshold default to
// spec-named values when left zero.
func New(cfg Config, deps Collaborators, log *zap.Logger) *Pipeline {
	if cfg.EscalationTimeout <= 0 {
		cfg.EscalationTimeout = time.Hour
	}
	if cfg.StepConcurrencyPerTask <= 0 {
		cfg.StepConcurrencyPerTask = defaultStepConcurrency
	}
	if cfg.MaxInterventionInboxSize <= 0 {
		cfg.MaxInterventionInboxSize = 16
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		drivers: make(map[ids.TaskId]*Driver),
	}
}

// Submit admits a new task, persists its initial Submitted state, and
// starts its driver on a dedicated goroutine. It returns as soon as the
// task is durably recorded, not when it finishes.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (ids.TaskId, error) {
	now := time.Now()
	task := &model.Task{
		ID:            ids.NewTaskID(),
		Description:   req.Description,
		Requirements:  req.Requirements,
		ExecutionMode: req.ExecutionMode,
		RiskTier:      req.RiskTier,
		Priority:      req.Priority,
		Deadline:      req.Deadline,
		State:         model.StateSubmitted,
		Context:       make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	d := newDriver(task, p.cfg, p.deps, p.log)
	if err := d.transition(ctx, model.StateValidating, ""); err != nil {
		return ids.TaskId{}, err
	}

	p.mu.Lock()
	p.drivers[task.ID] = d
	p.mu.Unlock()

	go d.run(context.Background())

	return task.ID, nil
}

// Observe returns a live subscription to a task's event stream, with
// catch-up replay of everything published so far (spec §4.3, §6).
func (p *Pipeline) Observe(taskID ids.TaskId) (*Subscription, error) {
	d, err := p.driverFor(taskID)
	if err != nil {
		return nil, err
	}
	return d.broadcaster.Subscribe(), nil
}

// Intervene enqueues an operator command against a running task (spec
// §4.3, §6). It returns once the command is queued, not once it has
// been applied — apply Observe to watch the resulting StateChanged
// event.
func (p *Pipeline) Intervene(taskID ids.TaskId, cmd model.InterventionCommand) error {
	d, err := p.driverFor(taskID)
	if err != nil {
		return err
	}
	return d.inbox.Push(cmd)
}

// Query returns a snapshot of a task's current state (spec §6). For a
// task whose driver has already exited this process (e.g. completed
// before a restart), callers should fall back to the Store directly.
func (p *Pipeline) Query(taskID ids.TaskId) (*Snapshot, error) {
	d, err := p.driverFor(taskID)
	if err != nil {
		return nil, err
	}
	return d.task.Clone(), nil
}

func (p *Pipeline) driverFor(taskID ids.TaskId) (*Driver, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.drivers[taskID]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "no such task")
	}
	return d, nil
}

// Recover re-admits every recoverable task found in store (spec §4.3
// "Restart survival"): tasks persisted in a Resumable state are handed
// a fresh driver and resumed from the beginning of the phase flow —
// safe because every phase's Exec re-checks the task's actual
// persisted state before acting, so a phase already completed before
// the restart is simply re-validated rather than redone destructively.
func Recover(ctx context.Context, p *Pipeline, store storage.Store) error {
	tasks, err := store.ListRecoverableTasks(ctx)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "list recoverable tasks", err)
	}

	for _, task := range tasks {
		if !task.State.Resumable() {
			continue
		}
		d := newDriver(task, p.cfg, p.deps, p.log)
		p.mu.Lock()
		p.drivers[task.ID] = d
		p.mu.Unlock()
		go d.run(context.Background())
	}
	return nil
}
