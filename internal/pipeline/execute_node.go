package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskcouncil/engine/internal/core"
	"github.com/taskcouncil/engine/internal/gates"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
	"github.com/taskcouncil/engine/internal/worker"
)

const defaultStepConcurrency = 4

// stepRecord is the execute node's private bookkeeping for one step's
// outcome, kept for the lifetime of a single Exec call only — nothing
// here is persisted directly; it feeds the aggregate TaskResult built
// once the whole plan has been dispatched.
type stepRecord struct {
	artifacts []model.StepArtifact
	gates     []model.GateResult
	failed    bool
	skipped   bool
}

// executeNode implements Phase 4 (spec §4.3): dispatching the plan's
// steps respecting the dependency DAG, honoring per-step failure
// policy, evaluating quality gates as each step completes, and
// checking the intervention inbox between every parallel batch and
// around every individual step.
type executeNode struct {
	d *Driver
}

func (n *executeNode) Prep(state *model.Task) []*model.Task { return prepSingleton(state) }

func (n *executeNode) Exec(ctx context.Context, task *model.Task) (phaseOutcome, error) {
	concurrency := n.d.cfg.StepConcurrencyPerTask
	if concurrency <= 0 {
		concurrency = defaultStepConcurrency
	}

	results := make(map[ids.StepID]*stepRecord)
	var mu sync.Mutex

	for _, batch := range task.Plan.ParallelGroups {
		if outcome, done := n.checkInbox(ctx, task); done {
			return outcome, nil
		}

		eligible := make([]model.ExecutionStep, 0, len(batch))
		for _, id := range batch {
			step, ok := task.Plan.StepByID(id)
			if !ok {
				continue
			}
			if n.predecessorFailed(step, results) {
				mu.Lock()
				results[id] = &stepRecord{skipped: true}
				mu.Unlock()
				continue
			}
			eligible = append(eligible, step)
		}

		sem := make(chan struct{}, concurrency)
		g, gctx := errgroup.WithContext(ctx)
		var taskFailed bool
		var failureReason string

		for _, step := range eligible {
			step := step
			sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-sem }()
				rec, hardFail, reason := n.runStep(gctx, task, step, &mu)
				mu.Lock()
				results[step.ID] = rec
				if hardFail {
					taskFailed = true
					failureReason = reason
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		if taskFailed {
			if err := n.d.transition(ctx, model.StateFailed, failureReason); err != nil {
				return phaseOutcome{}, err
			}
			return phaseOutcome{action: core.ActionFailure}, nil
		}
	}

	task.Result = &model.TaskResult{
		Artifacts:  flattenArtifacts(task.Plan.Steps, results),
		FinalGates: flattenGates(task.Plan.Steps, results),
	}
	if err := n.d.transition(ctx, model.StateQualityGates, ""); err != nil {
		return phaseOutcome{}, err
	}
	return phaseOutcome{action: core.ActionSuccess}, nil
}

// checkInbox drains any queued commands before a batch starts, applying
// Modify/Override immediately and handling Pause/Cancel, which are the
// only two that change execution's own control flow.
func (n *executeNode) checkInbox(ctx context.Context, task *model.Task) (phaseOutcome, bool) {
	cmds := n.d.inbox.Drain()
	pause, cancel := n.d.applyQueuedCommands(task, cmds)
	if cancel {
		if err := n.d.transition(ctx, model.StateCancelled, "cancelled during execution"); err != nil {
			return phaseOutcome{}, true
		}
		return phaseOutcome{action: actionCancelled}, true
	}
	if pause {
		return n.handlePause(ctx, task)
	}
	return phaseOutcome{}, false
}

// handlePause transitions into Paused and blocks the driver goroutine
// until a Resume or Cancel intervention arrives (spec §4.3, §8
// "idempotent pause"; §5 single-goroutine-per-task ownership).
func (n *executeNode) handlePause(ctx context.Context, task *model.Task) (phaseOutcome, bool) {
	if err := n.d.transition(ctx, model.StatePaused, ""); err != nil {
		return phaseOutcome{}, true
	}
	cmd, resolved := n.d.awaitIntervention(ctx, nil)
	if !resolved {
		return phaseOutcome{action: core.ActionFailure}, true
	}
	if cmd.Kind == model.InterventionCancel {
		if err := n.d.transition(ctx, model.StateCancelled, "cancelled while paused: "+cmd.Reason); err != nil {
			return phaseOutcome{}, true
		}
		return phaseOutcome{action: actionCancelled}, true
	}
	if err := n.d.transition(ctx, model.StateExecuting, ""); err != nil {
		return phaseOutcome{}, true
	}
	return phaseOutcome{}, false
}

func (n *executeNode) predecessorFailed(step model.ExecutionStep, results map[ids.StepID]*stepRecord) bool {
	for _, pred := range step.Predecessors {
		if rec, ok := results[pred]; ok && rec.failed {
			return true
		}
	}
	return false
}

// runStep dispatches one step to the worker pool, retrying per its
// failure policy, evaluates its quality gates, and folds any resulting
// context writes back into the shared task.Context.
func (n *executeNode) runStep(ctx context.Context, task *model.Task, step model.ExecutionStep, mu *sync.Mutex) (*stepRecord, bool, string) {
	if err := n.d.recordEvent(ctx, model.TaskEvent{Kind: model.EventStepStarted, At: time.Now(), StepID: step.ID}); err != nil {
		n.d.log.Debug("record step-started event failed")
	}

	attempts := 1
	if step.FailurePolicy.Kind == model.FailureRetryWithBackoff && step.FailurePolicy.MaxAttempts > 1 {
		attempts = step.FailurePolicy.MaxAttempts
	}

	var result worker.StepResult
	var dispatchErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}

		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}

		mu.Lock()
		desc := worker.StepDescriptor{
			Step:     step,
			Context:  cloneContext(task.Context),
			Model:    step.Model,
			TaskID:   task.ID,
			RiskTier: task.RiskTier,
		}
		mu.Unlock()

		result, dispatchErr = n.d.workers.Dispatch(stepCtx, desc, worker.NewCancelToken(stepCtx))
		if cancel != nil {
			cancel()
		}
		if dispatchErr == nil && !result.Failed {
			break
		}
	}

	summary := "ok"
	if dispatchErr != nil {
		summary = "error: " + dispatchErr.Error()
	} else if result.Failed {
		summary = "failed: " + result.Reason
	}
	if err := n.d.recordEvent(ctx, model.TaskEvent{Kind: model.EventStepCompleted, At: time.Now(), StepID: step.ID, ResultSummary: summary}); err != nil {
		n.d.log.Debug("record step-completed event failed")
	}

	if dispatchErr != nil || result.Failed {
		return n.resolveStepFailure(step, dispatchErr, result.Reason)
	}

	rec := &stepRecord{artifacts: result.Artifacts}
	gateResults := n.evaluateGates(ctx, task, step, result.Artifacts, mu)
	rec.gates = gateResults
	if hardFail, reason := n.gateFailureOutcome(step, gateResults); hardFail {
		rec.failed = true
		return rec, true, reason
	}

	mu.Lock()
	for _, slot := range step.WritesContext {
		task.Context[slot] = contextValue(result.Artifacts)
	}
	mu.Unlock()

	return rec, false, ""
}

func (n *executeNode) resolveStepFailure(step model.ExecutionStep, dispatchErr error, reason string) (*stepRecord, bool, string) {
	if reason == "" && dispatchErr != nil {
		reason = dispatchErr.Error()
	}
	switch step.FailurePolicy.Kind {
	case model.FailureFailTask:
		return &stepRecord{failed: true}, true, fmt.Sprintf("step %s failed (fail_task policy): %s", step.ID, reason)
	case model.FailureSkipAndContinue:
		return &stepRecord{skipped: true}, false, ""
	default: // FailureFailStep, FailureRetryWithBackoff-exhausted
		return &stepRecord{failed: true}, false, ""
	}
}

// evaluateGates runs every quality gate attached to step, applying any
// queued Override result in place of the evaluator's own verdict (spec
// §4.3's Override intervention), and publishes a GateEvaluated event
// per gate.
func (n *executeNode) evaluateGates(ctx context.Context, task *model.Task, step model.ExecutionStep, artifacts []model.StepArtifact, mu *sync.Mutex) []model.GateResult {
	out := make([]model.GateResult, 0, len(step.Gates))
	for _, gate := range step.Gates {
		result := n.d.gates.Evaluate(ctx, gate, artifacts)

		mu.Lock()
		override, hasOverride := task.OverrideApprovals[step.ID.String()+"/"+gate.ID]
		mu.Unlock()
		if hasOverride {
			result = gates.ApplyOverride(result, override)
		}

		out = append(out, result)
		if err := n.d.recordEvent(ctx, model.TaskEvent{
			Kind: model.EventGateEvaluated, At: time.Now(), StepID: step.ID, GateID: gate.ID, GateStatus: result.Status,
		}); err != nil {
			n.d.log.Debug("record gate-evaluated event failed")
		}
	}
	return out
}

// gateFailureOutcome decides whether a failing gate result escalates to
// the step's own failure policy (spec §4.3: "a failing gate is treated
// as a step failure for failure-policy purposes").
func (n *executeNode) gateFailureOutcome(step model.ExecutionStep, results []model.GateResult) (bool, string) {
	for _, r := range results {
		if r.Status != model.GateFail {
			continue
		}
		if step.FailurePolicy.Kind == model.FailureFailTask {
			return true, fmt.Sprintf("step %s failed gate %s (fail_task policy)", step.ID, r.GateID)
		}
		return false, ""
	}
	return false, ""
}

func (n *executeNode) Post(state *model.Task, prep []*model.Task, results ...phaseOutcome) core.Action {
	return postForward(state, prep, results...)
}

func (n *executeNode) ExecFallback(err error) phaseOutcome { return fallbackFailure(err) }

func backoff(attempt int) time.Duration {
	d := 200 * time.Millisecond
	for i := 0; i < attempt && d < 5*time.Second; i++ {
		d *= 2
	}
	return d
}

func cloneContext(ctx map[string]string) map[string]string {
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func contextValue(artifacts []model.StepArtifact) string {
	parts := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		parts = append(parts, a.Payload)
	}
	return strings.Join(parts, "; ")
}

func flattenArtifacts(steps []model.ExecutionStep, results map[ids.StepID]*stepRecord) []model.StepArtifact {
	var out []model.StepArtifact
	for _, s := range steps {
		if rec, ok := results[s.ID]; ok {
			out = append(out, rec.artifacts...)
		}
	}
	return out
}

func flattenGates(steps []model.ExecutionStep, results map[ids.StepID]*stepRecord) []model.GateResult {
	var out []model.GateResult
	for _, s := range steps {
		if rec, ok := results[s.ID]; ok {
			out = append(out, rec.gates...)
		}
	}
	return out
}
