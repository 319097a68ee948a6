// Package gates implements the five minimum QualityGate variants spec §3
// names: code-style, security-scan, functional-test, performance-test,
// and manual-review. Each evaluator is a pure function of a step's
// artifacts to a GateResult; none of them call out to the network, so a
// gate evaluation never itself becomes a source of timeout or
// cancellation the way a worker's inference call can.
package gates

import (
	"context"

	"github.com/taskcouncil/engine/internal/model"
)

// Evaluator evaluates one QualityGate against a step's produced
// artifacts and returns a GateResult (spec §3: "status, score in [0,1],
// violations, recommendations, evidence").
type Evaluator interface {
	Kind() model.GateKind
	Evaluate(ctx context.Context, gate model.QualityGate, artifacts []model.StepArtifact) model.GateResult
}

// Registry dispatches a QualityGate to its Evaluator by Kind.
type Registry struct {
	evaluators map[model.GateKind]Evaluator
}

// NewRegistry builds a Registry pre-populated with the standard
// evaluator for each of the five minimum gate kinds (spec §3); callers
// may override an entry via Register before first use.
func NewRegistry() *Registry {
	r := &Registry{evaluators: make(map[model.GateKind]Evaluator)}
	for _, e := range []Evaluator{
		NewCodeStyleEvaluator(),
		NewSecurityScanEvaluator(),
		NewFunctionalTestEvaluator(),
		NewPerformanceTestEvaluator(),
		NewManualReviewEvaluator(),
	} {
		r.Register(e)
	}
	return r
}

func (r *Registry) Register(e Evaluator) { r.evaluators[e.Kind()] = e }

// Evaluate dispatches gate to its registered Evaluator. A gate whose kind
// has no registered evaluator fails closed: spec §3 treats an
// unevaluable gate the same as a failing one, never as a silent pass.
func (r *Registry) Evaluate(ctx context.Context, gate model.QualityGate, artifacts []model.StepArtifact) model.GateResult {
	e, ok := r.evaluators[gate.Kind]
	if !ok {
		return model.GateResult{
			GateID:     gate.ID,
			Kind:       gate.Kind,
			Status:     model.GateFail,
			Violations: []string{"no evaluator registered for gate kind " + string(gate.Kind)},
		}
	}
	result := e.Evaluate(ctx, gate, artifacts)
	result.GateID = gate.ID
	result.Kind = gate.Kind
	return result
}

// ApplyOverride replaces result's status with decision (spec §4.3
// Override intervention: "the next evaluation of that gate returns
// decision"), preserving the rest of the evidence trail.
func ApplyOverride(result model.GateResult, decision model.GateStatus) model.GateResult {
	result.Status = decision
	result.Recommendations = append(result.Recommendations, "status overridden by operator intervention")
	return result
}
