package gates

import (
	"context"
	"strconv"
	"strings"

	"github.com/taskcouncil/engine/internal/model"
)

// performanceThresholdMillis is the default latency budget a
// "perf_metric" artifact (payload shaped "latency_ms=<n>") is checked
// against. Above the threshold warns; more than double fails.
const performanceThresholdMillis = 2000

type performanceTestEvaluator struct{}

func NewPerformanceTestEvaluator() Evaluator { return performanceTestEvaluator{} }

func (performanceTestEvaluator) Kind() model.GateKind { return model.GatePerformanceTest }

func (performanceTestEvaluator) Evaluate(_ context.Context, _ model.QualityGate, artifacts []model.StepArtifact) model.GateResult {
	var metrics []model.StepArtifact
	for _, a := range artifacts {
		if a.Kind == "perf_metric" {
			metrics = append(metrics, a)
		}
	}
	if len(metrics) == 0 {
		return model.GateResult{
			Status:          model.GateWarn,
			Score:           0.5,
			Recommendations: []string{"no perf_metric artifacts produced; latency unmeasured"},
			Evidence:        evidenceFor(artifacts),
		}
	}

	var violations []string
	worst := model.GatePass
	minScore := 1.0
	for _, m := range metrics {
		latency, ok := parseLatencyMillis(m.Payload)
		if !ok {
			violations = append(violations, string(m.StepID)+": unparseable perf_metric payload "+m.Payload)
			worst, minScore = model.GateFail, 0
			continue
		}
		switch {
		case latency > 2*performanceThresholdMillis:
			violations = append(violations, string(m.StepID)+": latency exceeds 2x budget")
			worst, minScore = model.GateFail, 0
		case latency > performanceThresholdMillis:
			violations = append(violations, string(m.StepID)+": latency exceeds budget")
			if worst != model.GateFail {
				worst = model.GateWarn
			}
			if s := 1 - float64(latency-performanceThresholdMillis)/performanceThresholdMillis; s < minScore {
				minScore = s
			}
		}
	}

	return model.GateResult{
		Status:     worst,
		Score:      minScore,
		Violations: violations,
		Evidence:   evidenceFor(metrics),
	}
}

func parseLatencyMillis(payload string) (int, bool) {
	const prefix = "latency_ms="
	idx := strings.Index(payload, prefix)
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(payload[idx+len(prefix):]))
	if err != nil {
		return 0, false
	}
	return n, true
}
