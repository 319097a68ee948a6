package worker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/model"
)

// entry wraps a registered Worker with its pool-maintained load counter
// and last-heartbeat timestamp. Load is accounted with atomics; no lock
// is held across a worker call (spec §4.4, §5: "Load bookkeeping uses
// atomic operations; no lock is held across the worker call").
type entry struct {
	worker       Worker
	load         atomic.Int64
	maxLoad      int64
	lastBeat     atomic.Int64 // unix nanos
}

func (e *entry) healthy(now time.Time, timeout time.Duration) bool {
	last := time.Unix(0, e.lastBeat.Load())
	return now.Sub(last) < timeout
}

// Pool holds the set of registered workers and matches steps to them
// (spec §4.4).
type Pool struct {
	mu               sync.RWMutex
	entries          map[string]*entry
	heartbeatTimeout time.Duration
	log              *zap.Logger
}

func NewPool(log *zap.Logger) *Pool {
	return &Pool{
		entries:          make(map[string]*entry),
		heartbeatTimeout: defaultHeartbeatTimeout,
		log:              log.Named("worker.pool"),
	}
}

// Register adds w to the pool with the given max concurrent load and
// marks its heartbeat as fresh as of now.
func (p *Pool) Register(w Worker, maxLoad int) {
	e := &entry{worker: w, maxLoad: int64(maxLoad)}
	e.lastBeat.Store(time.Now().UnixNano())
	p.mu.Lock()
	p.entries[w.ID()] = e
	p.mu.Unlock()
}

// Heartbeat records that worker id is alive as of now.
func (p *Pool) Heartbeat(id string) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if ok {
		e.lastBeat.Store(time.Now().UnixNano())
	}
}

// Select picks the best worker for taskType: filters by capability,
// available load, and health, then breaks ties by lowest current load
// and finally by lowest worker id (spec §4.4 "Selection").
func (p *Pool) Select(taskType model.TaskType) (Worker, bool) {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()

	var candidates []*entry
	for _, e := range p.entries {
		if !hasCapability(e.worker, taskType) {
			continue
		}
		if e.load.Load() >= e.maxLoad {
			continue
		}
		if !e.healthy(now, p.heartbeatTimeout) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].load.Load(), candidates[j].load.Load()
		if li != lj {
			return li < lj
		}
		return candidates[i].worker.ID() < candidates[j].worker.ID()
	})
	return candidates[0].worker, true
}

func hasCapability(w Worker, taskType model.TaskType) bool {
	for _, c := range w.Capabilities() {
		if c == taskType {
			return true
		}
	}
	return false
}

// Dispatch selects a worker for desc.Step.TaskType, runs it with load
// accounted for the call's duration, and returns NoEligibleWorker if
// nothing matches.
func (p *Pool) Dispatch(ctx context.Context, desc StepDescriptor, token CancelToken) (StepResult, error) {
	taskType := desc.Step.TaskType
	w, ok := p.Select(taskType)
	if !ok {
		return StepResult{}, errors.Newf(errors.KindNoEligibleWorker, "no eligible worker for task type %q", taskType)
	}

	p.mu.RLock()
	e := p.entries[w.ID()]
	p.mu.RUnlock()

	e.load.Add(1)
	defer e.load.Add(-1)

	return w.Run(ctx, desc, token)
}

// MarkUnhealthy forces worker id to appear unhealthy regardless of its
// last heartbeat, used when an external health check (e.g. a dead
// process) fires out of band from the heartbeat timer.
func (p *Pool) MarkUnhealthy(id string) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if ok {
		e.lastBeat.Store(0)
	}
}

// Load reports worker id's current and max in-flight counts. The pool
// does not track which step ids are assigned to which worker — that
// association belongs to the pipeline driver, the sole owner of a
// task's in-flight step bookkeeping (spec §5, "Task store ... owned
// exclusively by their driving pipeline"); it is the pipeline that
// reacts to a worker going unhealthy by failing the steps it knows it
// dispatched there with WorkerLost (spec §4.4).
func (p *Pool) Load(id string) (current, max int64, ok bool) {
	p.mu.RLock()
	e, exists := p.entries[id]
	p.mu.RUnlock()
	if !exists {
		return 0, 0, false
	}
	return e.load.Load(), e.maxLoad, true
}
