package gates

import (
	"context"
	"strings"

	"github.com/taskcouncil/engine/internal/model"
)

// functionalTestEvaluator expects worker-produced "test_result" artifacts
// whose payload is either "PASS" or "FAIL: <reason>" — the convention a
// worker's test-runner tool adapter emits after invoking the tool
// registry's test-execution tool.
type functionalTestEvaluator struct{}

func NewFunctionalTestEvaluator() Evaluator { return functionalTestEvaluator{} }

func (functionalTestEvaluator) Kind() model.GateKind { return model.GateFunctionalTest }

func (functionalTestEvaluator) Evaluate(_ context.Context, _ model.QualityGate, artifacts []model.StepArtifact) model.GateResult {
	var results []model.StepArtifact
	for _, a := range artifacts {
		if a.Kind == "test_result" {
			results = append(results, a)
		}
	}
	if len(results) == 0 {
		return model.GateResult{
			Status:          model.GateWarn,
			Score:           0.5,
			Recommendations: []string{"no test_result artifacts produced; functional coverage unknown"},
			Evidence:        evidenceFor(artifacts),
		}
	}

	var failures []string
	for _, r := range results {
		if strings.HasPrefix(r.Payload, "FAIL") {
			failures = append(failures, string(r.StepID)+": "+r.Payload)
		}
	}

	status := model.GatePass
	score := 1.0
	if len(failures) > 0 {
		status = model.GateFail
		score = 1 - float64(len(failures))/float64(len(results))
	}

	return model.GateResult{
		Status:     status,
		Score:      score,
		Violations: failures,
		Evidence:   evidenceFor(results),
	}
}
