// Package planner implements spec §4.3 Phase 3: deterministic model
// selection, table-driven resource allocation, council-assisted step
// decomposition with bounded retry, and critical-path computation.
package planner

import (
	"sort"
	"time"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// ModelTable maps a step's TaskType to the candidate models eligible for
// requirements intersecting it. Selection is deterministic: given
// identical task type and identical requirements, ModelTable.Select
// always returns the same ModelRef (spec §4.3, "so plans are
// reproducible").
type ModelTable struct {
	// entries maps task type -> requirement -> candidate model
	// identifiers. A requirement absent from the map falls through to
	// the type's "" wildcard entry, if any.
	entries map[model.TaskType]map[string]modelCandidate
}

type modelCandidate struct {
	identifier string // used only for the lexicographic tie-break
	ref        ids.ModelRef
}

func NewModelTable() *ModelTable {
	return &ModelTable{entries: make(map[model.TaskType]map[string]modelCandidate)}
}

// Register adds a (task type, requirement) -> model mapping. requirement
// may be "" to register a wildcard fallback for the task type.
func (t *ModelTable) Register(taskType model.TaskType, requirement, identifier string, ref ids.ModelRef) {
	row, ok := t.entries[taskType]
	if !ok {
		row = make(map[string]modelCandidate)
		t.entries[taskType] = row
	}
	row[requirement] = modelCandidate{identifier: identifier, ref: ref}
}

// Select returns the model ref for taskType given requirements, applying
// the spec's lexicographic tie-break when more than one requirement
// matches a registered candidate.
func (t *ModelTable) Select(taskType model.TaskType, requirements []string) (ids.ModelRef, bool) {
	row, ok := t.entries[taskType]
	if !ok {
		return 0, false
	}

	var candidates []modelCandidate
	for _, req := range requirements {
		if c, ok := row[req]; ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		if c, ok := row[""]; ok {
			return c.ref, true
		}
		return 0, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].identifier < candidates[j].identifier
	})
	return candidates[0].ref, true
}

// ResourceTable maps step Complexity to a ResourceAllocation grant
// (spec §4.3 Phase 3, "table-driven per complexity").
type ResourceTable map[model.Complexity]model.ResourceAllocation

// DefaultResourceTable returns the engine's baseline complexity -> grant
// mapping. Callers may override entries per deployment.
func DefaultResourceTable() ResourceTable {
	return ResourceTable{
		model.ComplexitySimple: {
			CPUUnits:  0.5,
			MemoryMiB: 256,
			Timeout:   30 * time.Second,
		},
		model.ComplexityComplex: {
			CPUUnits:  2,
			MemoryMiB: 1024,
			Timeout:   5 * time.Minute,
		},
		model.ComplexityHighThroughput: {
			CPUUnits:     4,
			MemoryMiB:    4096,
			GPUMemoryMiB: 8192,
			Timeout:      15 * time.Minute,
		},
	}
}

// Allocate returns the resource grant for complexity, or the Simple
// tier's grant if complexity is not registered.
func (t ResourceTable) Allocate(complexity model.Complexity) model.ResourceAllocation {
	if r, ok := t[complexity]; ok {
		return r
	}
	return t[model.ComplexitySimple]
}
