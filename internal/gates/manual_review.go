package gates

import (
	"context"

	"github.com/taskcouncil/engine/internal/model"
)

// manualReviewEvaluator can never itself produce Pass or Fail — a human
// decision is the only thing that resolves it. It always reports Warn
// until the pipeline applies an operator Override intervention
// (gates.ApplyOverride), matching spec §3's description of manual-review
// as a named pass/warn/fail check whose machine-computed default must
// not masquerade as approval.
type manualReviewEvaluator struct{}

func NewManualReviewEvaluator() Evaluator { return manualReviewEvaluator{} }

func (manualReviewEvaluator) Kind() model.GateKind { return model.GateManualReview }

func (manualReviewEvaluator) Evaluate(_ context.Context, _ model.QualityGate, artifacts []model.StepArtifact) model.GateResult {
	return model.GateResult{
		Status:          model.GateWarn,
		Score:           0.5,
		Recommendations: []string{"awaiting manual review; override required to resolve"},
		Evidence:        evidenceFor(artifacts),
	}
}
