// Package memory implements an in-process storage.Store, grounded on the
// teacher's session.Store pattern (a mutex-guarded map plus an append-only
// per-key log). Not designed for multi-replica deployments — matches a
// single-process engine the way the teacher's session store matches a
// single-process chat server.
package memory

import (
	"context"
	"sync"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu         sync.RWMutex
	tasks      map[ids.TaskId]*model.Task
	provenance map[ids.TaskId][]model.TaskEvent
}

func New() *Store {
	return &Store{
		tasks:      make(map[ids.TaskId]*model.Task),
		provenance: make(map[ids.TaskId][]model.TaskEvent),
	}
}

func (s *Store) PersistTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *Store) LoadTask(ctx context.Context, id ids.TaskId) (*model.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

// ListRecoverableTasks returns every non-terminal task, for the restart
// scan (spec §4.3, "Restart survival").
func (s *Store) ListRecoverableTasks(ctx context.Context) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Task
	for _, t := range s.tasks {
		if !t.State.Terminal() {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *Store) AppendProvenance(ctx context.Context, id ids.TaskId, event model.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provenance[id] = append(s.provenance[id], event)
	return nil
}

// Provenance returns the full append-only event log for id, exposed for
// tests and audit tooling; not part of the storage.Store interface.
func (s *Store) Provenance(id ids.TaskId) []model.TaskEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.TaskEvent(nil), s.provenance[id]...)
}
