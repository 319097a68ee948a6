// Package storage defines the storage collaborator interface spec §6
// names, plus two implementations: memory (in-process, for tests and
// single-node dev) and sqlite (modernc.org/sqlite-backed, for the
// reference deployment).
package storage

import (
	"context"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// Store is the storage collaborator interface spec §6 requires: atomic
// per-task persistence, restart-recovery scan, and an append-only
// provenance log. "The core does not specify the storage engine; any
// engine providing atomic per-task write and append-only log semantics
// is acceptable."
type Store interface {
	PersistTask(ctx context.Context, task *model.Task) error
	LoadTask(ctx context.Context, id ids.TaskId) (*model.Task, bool, error)
	ListRecoverableTasks(ctx context.Context) ([]*model.Task, error)
	AppendProvenance(ctx context.Context, id ids.TaskId, event model.TaskEvent) error
}
