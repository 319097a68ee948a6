// Package pipeline implements the execution pipeline (spec §4.3): the
// component that owns one Task from submission to terminal state,
// driving the lifecycle state machine defined in internal/model and
// integrating the council, planner, worker pool, and quality gates.
//
// Phase sequencing is built on the teacher's generic core.Flow/core.Node
// engine (internal/core): each of the five phases is a core.BaseNode
// operating on a shared *model.Task, wired into one core.Flow per task
// with Action-based routing mirroring the lifecycle's state diagram.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/council"
	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/gates"
	"github.com/taskcouncil/engine/internal/model"
	"github.com/taskcouncil/engine/internal/planner"
	"github.com/taskcouncil/engine/internal/storage"
	"github.com/taskcouncil/engine/internal/toolregistry"
	"github.com/taskcouncil/engine/internal/worker"
)

// Lifecycle-local routing actions, layered on top of core.Action's
// shared ActionSuccess/ActionFailure vocabulary (spec §3 state diagram).
const (
	actionRejected  core.Action = "pipeline_rejected"
	actionEscalated core.Action = "pipeline_escalated"
	actionCancelled core.Action = "pipeline_cancelled"
)

// Config bundles a Driver's tunables (spec §5, §6's "environment
// influencing behavior").
type Config struct {
	StepConcurrencyPerTask   int
	EscalationTimeout        time.Duration
	MaxInterventionInboxSize int
	ObservationLagThreshold  int
}

// Driver owns one task's lifecycle from Submitted to a terminal state. A
// Driver runs on a single dedicated goroutine per task (spec §5:
// "Tasks are owned exclusively by their driving pipeline"), so nothing
// inside it needs its own locking beyond the inbox and broadcaster,
// which are deliberately safe for concurrent producers.
type Driver struct {
	cfg Config
	log *zap.Logger

	store    storage.Store
	council  *council.Council
	monitor  *council.Monitor
	escalation *council.EscalationTimer
	planner  *planner.Planner
	gates    *gates.Registry
	workers  *worker.Pool
	tools    *toolregistry.Registry

	inbox       *interventionInbox
	broadcaster *broadcaster

	task *model.Task
}

// Collaborators groups every external dependency a Driver needs,
// constructed once by the owning Pipeline and shared across tasks.
type Collaborators struct {
	Store      storage.Store
	Council    *council.Council
	Monitor    *council.Monitor
	Planner    *planner.Planner
	Gates      *gates.Registry
	Workers    *worker.Pool
	Tools      *toolregistry.Registry
}

func newDriver(task *model.Task, cfg Config, c Collaborators, log *zap.Logger) *Driver {
	return &Driver{
		cfg:        cfg,
		log:        log.With(zap.String("task", task.ID.String())),
		store:      c.Store,
		council:    c.Council,
		monitor:    c.Monitor,
		escalation: council.NewEscalationTimer(cfg.EscalationTimeout),
		planner:    c.Planner,
		gates:      c.Gates,
		workers:    c.Workers,
		tools:      c.Tools,
		inbox:      newInterventionInbox(cfg.MaxInterventionInboxSize),
		broadcaster: newBroadcaster(),
		task:       task,
	}
}

// transition moves the task to a new state, persisting before the
// corresponding TaskEvent is published (spec §8 invariant 3: "persisted
// before the terminal StateChanged event is emitted" — applied to every
// transition, not only terminal ones, since the same ordering guarantee
// is the simplest invariant to maintain uniformly).
func (d *Driver) transition(ctx context.Context, to model.TaskState, reason string) error {
	from := d.task.State
	if !model.CanTransition(from, to) {
		return errors.Newf(errors.KindInternal, "illegal transition %s -> %s", from, to)
	}
	d.task.State = to
	d.task.UpdatedAt = time.Now()
	if to.Terminal() && d.task.Result == nil {
		d.task.Result = &model.TaskResult{State: to, Reason: reason}
	}
	if err := d.store.PersistTask(ctx, d.task); err != nil {
		return errors.Wrap(errors.KindInternal, "persist task on transition", err)
	}

	event := model.TaskEvent{Kind: model.EventStateChanged, At: time.Now(), From: from, To: to}
	return d.recordEvent(ctx, event)
}

func (d *Driver) recordEvent(ctx context.Context, event model.TaskEvent) error {
	if err := d.store.AppendProvenance(ctx, d.task.ID, event); err != nil {
		d.log.Error("append provenance failed", zap.Error(err))
	}
	d.broadcaster.Publish(event)
	return nil
}

// run drives the task's phase flow to a terminal state, blocking in
// place (on the driver's own goroutine) through any Paused or Escalated
// waits along the way — see awaitIntervention. It starts at the node
// matching the task's current persisted state, so a task resumed after
// a restart (spec §4.3 "Restart survival") picks up the phase it was
// actually in rather than restarting validation.
func (d *Driver) run(ctx context.Context) {
	flow := d.buildFlow(d.task.State)
	action := flow.Run(ctx, d.task)
	d.log.Debug("phase flow returned", zap.String("action", string(action)), zap.String("state", string(d.task.State)))
}

// escalationDeadline computes the deadline channel for a task that just
// entered Escalated (spec §4.2, §5: 1h default). The deadline is derived
// from the task's UpdatedAt — the moment the Escalated transition was
// persisted — rather than time.Now(), so recomputing it after a restart
// from the same persisted field reproduces the original deadline
// instead of resetting the clock (spec §4.3 "Restart survival").
func (d *Driver) escalationDeadline() <-chan time.Time {
	deadline := d.escalation.Start(d.task.ID, d.task.UpdatedAt)
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	return time.After(wait)
}

// buildFlow wires the five lifecycle phases into one core.Flow,
// following the state diagram in spec §3: Validation -> CouncilPreReview
// -> Planning -> Execution -> QualityGates -> CouncilFinalReview, with
// ActionFailure/actionRejected/actionEscalated/actionCancelled ending
// the flow early at whatever terminal (or Paused/Escalated) state the
// failing phase already transitioned into. from selects which node the
// flow actually starts at (see run's restart-survival comment); the
// wiring itself never changes.
func (d *Driver) buildFlow(from model.TaskState) *core.Flow[model.Task] {
	validate := core.NewNode[model.Task, *model.Task, phaseOutcome](&validateNode{d: d}, 0)
	preReview := core.NewNode[model.Task, *model.Task, phaseOutcome](&councilNode{d: d, stage: "pre_review"}, 0)
	plan := core.NewNode[model.Task, *model.Task, phaseOutcome](&planNode{d: d}, 0)
	execute := core.NewNode[model.Task, *model.Task, phaseOutcome](&executeNode{d: d}, 0)
	qualityGates := core.NewNode[model.Task, *model.Task, phaseOutcome](&qualityGatesNode{d: d}, 0)
	finalReview := core.NewNode[model.Task, *model.Task, phaseOutcome](&councilNode{d: d, stage: "final_review"}, 0)

	validate.AddSuccessor(preReview, core.ActionSuccess)
	preReview.AddSuccessor(plan, core.ActionSuccess)
	plan.AddSuccessor(execute, core.ActionSuccess)
	execute.AddSuccessor(qualityGates, core.ActionSuccess)
	qualityGates.AddSuccessor(finalReview, core.ActionSuccess)

	var start core.Workflow[model.Task] = validate
	switch from {
	case model.StateCouncilPreReview:
		start = preReview
	case model.StatePlanning:
		start = plan
	case model.StateExecuting, model.StatePaused:
		start = execute
	case model.StateQualityGates:
		start = qualityGates
	case model.StateCouncilFinalReview:
		start = finalReview
	}
	return core.NewFlow[model.Task](start)
}

// awaitIntervention blocks until an InterventionResume, InterventionCancel,
// or InterventionOverride command is queued, the deadline channel fires, or
// ctx is cancelled. It is the shared wait primitive behind a task's Paused
// and Escalated states (spec §4.3: both are "wait for external input"
// states), so Pause/Escalate handling never needs its own goroutine or
// polling loop — the driver's single goroutine blocks in place.
func (d *Driver) awaitIntervention(ctx context.Context, deadline <-chan time.Time) (model.InterventionCommand, bool) {
	for {
		select {
		case <-ctx.Done():
			return model.InterventionCommand{}, false
		case <-deadline:
			return model.InterventionCommand{}, false
		case <-d.inbox.Notify():
			for _, cmd := range d.inbox.Drain() {
				switch cmd.Kind {
				case model.InterventionResume, model.InterventionCancel:
					return cmd, true
				case model.InterventionPause:
					// Already paused/escalated; nothing changes.
				case model.InterventionModify:
					d.applyModify(d.task, cmd)
				case model.InterventionOverride:
					d.applyQueuedCommands(d.task, []model.InterventionCommand{cmd})
				}
			}
		}
	}
}

// applyModify mutates the mutable subset of task fields spec §4.3's
// Modify intervention is allowed to touch (priority, deadline,
// requirements) — never state or plan structure.
func (d *Driver) applyModify(task *model.Task, cmd model.InterventionCommand) {
	if cmd.ModifyPriority != nil {
		task.Priority = *cmd.ModifyPriority
	}
	if cmd.ModifyDeadline != nil {
		task.Deadline = cmd.ModifyDeadline
	}
	if cmd.ModifyRequirements != nil {
		task.Requirements = cmd.ModifyRequirements
	}
}

// applyQueuedCommands applies every Modify and Override command in cmds
// immediately (they never change control flow) and reports whether a
// Pause or Cancel was also seen, leaving those two for the caller to
// act on since only it knows which state transition is valid from here.
func (d *Driver) applyQueuedCommands(task *model.Task, cmds []model.InterventionCommand) (pause, cancel bool) {
	for _, cmd := range cmds {
		switch cmd.Kind {
		case model.InterventionPause:
			pause = true
		case model.InterventionCancel:
			cancel = true
		case model.InterventionModify:
			d.applyModify(task, cmd)
		case model.InterventionOverride:
			if task.OverrideApprovals == nil {
				task.OverrideApprovals = make(map[string]model.GateStatus)
			}
			task.OverrideApprovals[cmd.OverrideStepID.String()+"/"+cmd.OverrideGateID] = cmd.OverrideResult
		}
	}
	return pause, cancel
}
