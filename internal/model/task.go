// Package model defines the engine's core data model (spec §3): Task,
// ExecutionPlan, Verdict, QualityGate, and the task lifecycle state
// machine, plus the wire-shaped event and intervention types the pipeline
// and its observers exchange.
package model

import (
	"time"

	"github.com/taskcouncil/engine/internal/ids"
)

// ExecutionMode determines council policy for a task (spec §4.2).
// Immutable after submission.
type ExecutionMode string

const (
	ModeStrict ExecutionMode = "strict"
	ModeAuto   ExecutionMode = "auto"
	ModeDryRun ExecutionMode = "dry_run"
)

// RiskTier classifies task criticality; 1 = critical, 3 = low-risk.
type RiskTier int

const (
	RiskCritical RiskTier = 1
	RiskElevated RiskTier = 2
	RiskLow      RiskTier = 3
)

// Valid reports whether r is one of the three defined tiers.
func (r RiskTier) Valid() bool { return r == RiskCritical || r == RiskElevated || r == RiskLow }

// Priority orders tasks for scheduling purposes; the engine itself does
// not schedule across tasks (spec §5, "across tasks: no ordering"), so
// this is informational/queueing metadata for an external collaborator.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TaskState is a node in the lifecycle state machine described in spec §3.
type TaskState string

const (
	StateSubmitted          TaskState = "submitted"
	StateValidating         TaskState = "validating"
	StateCouncilPreReview   TaskState = "council_pre_review"
	StatePlanning           TaskState = "planning"
	StateExecuting          TaskState = "executing"
	StatePaused             TaskState = "paused"
	StateQualityGates       TaskState = "quality_gates"
	StateCouncilFinalReview TaskState = "council_final_review"
	StateCompleted          TaskState = "completed"
	StateFailed             TaskState = "failed"
	StateRejected           TaskState = "rejected"
	StateCancelled          TaskState = "cancelled"
	StateEscalated          TaskState = "escalated"
)

// Terminal reports whether s is one of the five terminal states.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRejected, StateCancelled, StateEscalated:
		return true
	default:
		return false
	}
}

// Resumable reports whether a task whose last persisted state was s can be
// safely resumed on restart without per-step idempotency tracking
// (spec §4.3, "Restart survival").
func (s TaskState) Resumable() bool {
	switch s {
	case StateSubmitted, StateValidating, StatePlanning, StatePaused,
		StateCouncilPreReview, StateCouncilFinalReview:
		return true
	default:
		return false
	}
}

// validTransitions encodes the arrows in spec §3's state diagram. It is
// consulted by Task.Transition so an invariant violation (e.g. Submitted
// -> Completed) is a programming error caught at the point of mutation,
// not discovered later by an observer.
var validTransitions = map[TaskState][]TaskState{
	StateSubmitted:          {StateValidating},
	StateValidating:         {StateCouncilPreReview, StateFailed},
	StateCouncilPreReview:   {StatePlanning, StateRejected, StateEscalated, StateFailed},
	StatePlanning:           {StateExecuting, StateFailed},
	StateExecuting:          {StatePaused, StateCancelled, StateQualityGates, StateFailed},
	StatePaused:             {StateExecuting, StateCancelled},
	StateQualityGates:       {StateCouncilFinalReview, StateCancelled, StateFailed},
	StateCouncilFinalReview: {StateCompleted, StateFailed, StateEscalated},
	// An escalation raised during pre-review or final review is resolved
	// by a human InterventionOverride/Resume: either the task resumes
	// from the stage it escalated out of (spec §4.3 "resolving an
	// escalation resumes the pipeline"), or the operator ends it
	// directly.
	StateEscalated: {StateFailed, StateCompleted, StateRejected, StatePlanning, StateCouncilFinalReview},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to TaskState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TaskResult is populated exactly when a task reaches a terminal state
// (spec §3 invariant 2).
type TaskResult struct {
	State      TaskState      `json:"state"`
	Reason     string         `json:"reason,omitempty"`
	Artifacts  []StepArtifact `json:"artifacts,omitempty"`
	FinalGates []GateResult   `json:"final_gates,omitempty"`
}

// StepArtifact is the by-value output a worker returns for a completed
// step (spec §3, "worker pool ... returns step artifacts by value").
type StepArtifact struct {
	StepID  ids.StepID `json:"step_id"`
	Kind    string     `json:"kind"`
	Payload string     `json:"payload"`
}

// InterventionCommand is one entry in a task's bounded intervention inbox
// (spec §3, §4.3). Exactly one of the typed fields is meaningful,
// selected by Kind.
type InterventionKind string

const (
	InterventionPause  InterventionKind = "pause"
	InterventionResume InterventionKind = "resume"
	InterventionCancel InterventionKind = "cancel"
	InterventionOverride InterventionKind = "override"
	InterventionModify InterventionKind = "modify"
)

type InterventionCommand struct {
	Kind   InterventionKind
	Reason string

	// Override fields.
	OverrideStepID ids.StepID
	OverrideGateID string
	OverrideResult GateStatus

	// Modify fields — nil means "leave unchanged".
	ModifyPriority     *Priority
	ModifyDeadline     *time.Time
	ModifyRequirements []string
}

// Task is the unit of work described in spec §3.
type Task struct {
	ID                ids.TaskId
	Description       string
	Requirements      []string
	ExecutionMode     ExecutionMode
	RiskTier          RiskTier
	Priority          Priority
	Deadline          *time.Time
	State             TaskState
	Plan              *ExecutionPlan
	Result            *TaskResult
	Conditions        []Condition // accumulated from Conditional verdicts; must all be satisfied
	OverrideApprovals map[string]GateStatus // "stepID/gateID" -> forced result, from InterventionOverride
	Context           map[string]string     // accumulated step WritesContext outputs, read-only to workers
	ValidationNotes   []string              // non-fatal observations from Phase 1 validation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep-enough copy for snapshot reads (query/observe),
// so external readers never hold a pointer into the pipeline driver's
// mutable state (spec §3 Ownership: "external readers ... get consistent
// point-in-time snapshots, never mutable access").
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Requirements = append([]string(nil), t.Requirements...)
	c.Conditions = append([]Condition(nil), t.Conditions...)
	if t.Plan != nil {
		p := *t.Plan
		p.Steps = append([]ExecutionStep(nil), t.Plan.Steps...)
		p.CriticalPath = append([]ids.StepID(nil), t.Plan.CriticalPath...)
		c.Plan = &p
	}
	if t.Result != nil {
		r := *t.Result
		r.Artifacts = append([]StepArtifact(nil), t.Result.Artifacts...)
		r.FinalGates = append([]GateResult(nil), t.Result.FinalGates...)
		c.Result = &r
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	c.OverrideApprovals = make(map[string]GateStatus, len(t.OverrideApprovals))
	for k, v := range t.OverrideApprovals {
		c.OverrideApprovals[k] = v
	}
	c.Context = make(map[string]string, len(t.Context))
	for k, v := range t.Context {
		c.Context[k] = v
	}
	c.ValidationNotes = append([]string(nil), t.ValidationNotes...)
	return &c
}
