package planner

import (
	"gopkg.in/yaml.v3"

	"github.com/taskcouncil/engine/internal/model"
)

// Snapshot renders plan as a YAML document suitable for persistence and
// diffing. Field order in the output follows the ExecutionPlan/
// ExecutionStep struct definitions, so two Snapshot calls over an
// identical plan value always produce byte-identical output — the
// property spec §8's "deterministic planning" guarantee depends on when
// comparing plans produced from the same decomposition across runs.
func Snapshot(plan *model.ExecutionPlan) ([]byte, error) {
	return yaml.Marshal(plan)
}

// LoadSnapshot parses a plan previously produced by Snapshot, e.g. when
// replaying a task from storage.
func LoadSnapshot(data []byte) (*model.ExecutionPlan, error) {
	var plan model.ExecutionPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
