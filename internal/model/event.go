package model

import (
	"time"

	"github.com/taskcouncil/engine/internal/ids"
)

// TaskEventKind enumerates the observation interface's sum type
// (spec §6).
type TaskEventKind string

const (
	EventStateChanged        TaskEventKind = "state_changed"
	EventStepStarted         TaskEventKind = "step_started"
	EventStepCompleted       TaskEventKind = "step_completed"
	EventGateEvaluated       TaskEventKind = "gate_evaluated"
	EventInterventionApplied TaskEventKind = "intervention_applied"
	EventVerdictRendered     TaskEventKind = "verdict_rendered"
)

// TaskEvent is one totally-ordered record in a task's event stream
// (spec §6, §8 invariant 5: monotonic timestamps).
type TaskEvent struct {
	Kind TaskEventKind
	At   time.Time

	// StateChanged fields.
	From TaskState
	To   TaskState

	// StepStarted / StepCompleted fields.
	StepID        ids.StepID
	ResultSummary string

	// GateEvaluated fields.
	GateID     string
	GateStatus GateStatus

	// InterventionApplied fields.
	CommandSummary string

	// VerdictRendered fields.
	Stage          string
	VerdictSummary string
}
