package council

import (
	"sync"
	"time"

	"github.com/taskcouncil/engine/internal/ids"
)

// EscalationTimer tracks the deadline an Escalated verdict starts (spec
// §4.2: "An Escalated decision starts a timer ... If no human override
// arrives, the task transitions to Failed with reason EscalationTimeout").
// Deadlines are persisted with the task (via StartedAt) so restart
// survival works without this process-local tracker.
type EscalationTimer struct {
	mu       sync.Mutex
	deadlines map[ids.TaskId]time.Time
	timeout  time.Duration
}

func NewEscalationTimer(timeout time.Duration) *EscalationTimer {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &EscalationTimer{deadlines: make(map[ids.TaskId]time.Time), timeout: timeout}
}

// Start records task's escalation deadline, computed from startedAt — the
// time the Escalated verdict was rendered, so a deadline restored from
// storage after a restart reflects the original escalation, not the
// restart time.
func (e *EscalationTimer) Start(task ids.TaskId, startedAt time.Time) time.Time {
	deadline := startedAt.Add(e.timeout)
	e.mu.Lock()
	e.deadlines[task] = deadline
	e.mu.Unlock()
	return deadline
}

// Clear removes task's tracked deadline, e.g. once a human override
// arrives or the task reaches a terminal state.
func (e *EscalationTimer) Clear(task ids.TaskId) {
	e.mu.Lock()
	delete(e.deadlines, task)
	e.mu.Unlock()
}

// Expired reports whether task's escalation deadline has passed as of now.
func (e *EscalationTimer) Expired(task ids.TaskId, now time.Time) bool {
	e.mu.Lock()
	deadline, ok := e.deadlines[task]
	e.mu.Unlock()
	return ok && now.After(deadline)
}

// Deadline returns task's tracked deadline, if any.
func (e *EscalationTimer) Deadline(task ids.TaskId) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.deadlines[task]
	return d, ok
}
