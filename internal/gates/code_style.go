package gates

import (
	"context"
	"strings"

	"github.com/taskcouncil/engine/internal/model"
)

// styleViolationPatterns are cheap lexical smells checked against every
// artifact's payload text, mirroring the forbidden-pattern-list approach
// spec §4.3 Phase 1 uses for input validation.
var styleViolationPatterns = []struct {
	substr string
	msg    string
}{
	{"\t", "contains tab characters"},
	{"    \n", "contains trailing whitespace before newline"},
}

type codeStyleEvaluator struct{}

func NewCodeStyleEvaluator() Evaluator { return codeStyleEvaluator{} }

func (codeStyleEvaluator) Kind() model.GateKind { return model.GateCodeStyle }

func (codeStyleEvaluator) Evaluate(_ context.Context, _ model.QualityGate, artifacts []model.StepArtifact) model.GateResult {
	var violations []string
	for _, a := range artifacts {
		for _, p := range styleViolationPatterns {
			if strings.Contains(a.Payload, p.substr) {
				violations = append(violations, string(a.StepID)+": "+p.msg)
			}
		}
		for _, line := range strings.Split(a.Payload, "\n") {
			if len(line) > 120 {
				violations = append(violations, string(a.StepID)+": line exceeds 120 columns")
				break
			}
		}
	}

	status := model.GatePass
	score := 1.0
	if n := len(violations); n > 0 {
		status = model.GateWarn
		score = 1.0 / float64(1+n)
		if n >= 5 {
			status = model.GateFail
		}
	}

	return model.GateResult{
		Status:     status,
		Score:      score,
		Violations: violations,
		Evidence:   evidenceFor(artifacts),
	}
}

func evidenceFor(artifacts []model.StepArtifact) []string {
	evidence := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		evidence = append(evidence, string(a.StepID)+"/"+a.Kind)
	}
	return evidence
}
