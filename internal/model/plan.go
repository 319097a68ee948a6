package model

import (
	"time"

	"github.com/taskcouncil/engine/internal/ids"
)

// TaskType tags a step so the worker pool can capability-match it
// (spec §3, §4.4).
type TaskType string

// Complexity classifies a step's estimated resource profile (spec §4.3).
type Complexity string

const (
	ComplexitySimple         Complexity = "simple"
	ComplexityComplex        Complexity = "complex"
	ComplexityHighThroughput Complexity = "high_throughput"
)

// StepFailurePolicy names how the pipeline reacts to a step failure or
// timeout (spec §4.3 Phase 4).
type StepFailurePolicy struct {
	Kind        StepFailureKind
	MaxAttempts int // meaningful only when Kind == FailureRetryWithBackoff
}

type StepFailureKind string

const (
	FailureFailStep          StepFailureKind = "fail_step"
	FailureRetryWithBackoff  StepFailureKind = "retry_with_backoff"
	FailureSkipAndContinue   StepFailureKind = "skip_and_continue"
	FailureFailTask          StepFailureKind = "fail_task"
)

// ResourceAllocation is the table-driven resource grant for a step,
// keyed by its Complexity (spec §4.3 Phase 3).
type ResourceAllocation struct {
	CPUUnits      float64
	MemoryMiB     int
	GPUMemoryMiB  int // 0 means "not applicable"
	Timeout       time.Duration
}

// ExecutionStep is one node in an ExecutionPlan's dependency DAG
// (spec §3).
type ExecutionStep struct {
	ID            ids.StepID
	Description   string
	TaskType      TaskType
	Model         ids.ModelRef
	Gates         []QualityGate
	Timeout       time.Duration
	Predecessors  []ids.StepID
	Complexity    Complexity
	Resources     ResourceAllocation
	FailurePolicy StepFailurePolicy

	// EstimatedDuration feeds the critical-path computation (spec §3).
	EstimatedDuration time.Duration

	// WritesContext lists the context slots this step populates; used to
	// detect the context-collision condition described in spec §9.
	WritesContext []string
}

// ExecutionPlan is the ordered sequence of steps plus the derived
// scheduling metadata described in spec §3.
type ExecutionPlan struct {
	Steps                []ExecutionStep
	EstimatedDuration    time.Duration
	CriticalPath         []ids.StepID
	ParallelGroups       [][]ids.StepID // groups of mutually independent steps
}

// StepByID returns the step with the given id, or false if absent.
func (p *ExecutionPlan) StepByID(id ids.StepID) (ExecutionStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return ExecutionStep{}, false
}
