package council

import (
	"github.com/taskcouncil/engine/internal/model"
)

// Algorithm names one of the two consensus algorithms spec §4.2 requires
// to be implementable and switchable by config.
type Algorithm string

const (
	AlgorithmMajority           Algorithm = "majority"
	AlgorithmConfidenceWeighted Algorithm = "confidence_weighted"
)

// Thresholds holds the confidence-weighted algorithm's configurable
// approval/rejection cutoffs (spec §4.2, defaults 0.7 / 0.6).
type Thresholds struct {
	Approval  float64
	Rejection float64
}

// Aggregate combines outputs into a single council Verdict using algo. It
// is a pure function of its inputs: spec §8's "deterministic consensus"
// law requires that fixed outputs always produce a byte-identical
// aggregate, which holds here because neither path consults wall-clock
// time, randomness, or map iteration order for anything observable.
func Aggregate(outputs []JudgeOutput, algo Algorithm, th Thresholds) model.Verdict {
	switch algo {
	case AlgorithmConfidenceWeighted:
		return confidenceWeighted(outputs, th)
	default:
		return majority(outputs)
	}
}

// majority implements spec §4.2's majority consensus: Approved if
// strictly more than half approve, Rejected if strictly more than half
// reject, otherwise Escalated — including the 2-2 tie on a 4-judge panel
// (spec §8 boundary behavior).
func majority(outputs []JudgeOutput) model.Verdict {
	if len(outputs) == 0 {
		return model.Escalated("no judge outputs to aggregate")
	}

	approve, reject := 0, 0
	for _, o := range outputs {
		switch o.Verdict.Kind {
		case model.VerdictApproved, model.VerdictConditional:
			approve++
		case model.VerdictRejected:
			reject++
		}
	}

	n := len(outputs)
	switch {
	case approve*2 > n:
		return approvalVerdict(outputs, "majority consensus: approved")
	case reject*2 > n:
		return model.Rejected(rejectReasoning(outputs))
	default:
		return model.Escalated("majority consensus: no strict majority")
	}
}

// confidenceWeighted implements spec §4.2's confidence-weighted
// consensus. A judge that failed to return a confidence contributes 0.5
// (already normalized by LLMJudge.Deliberate before outputs reach here).
func confidenceWeighted(outputs []JudgeOutput, th Thresholds) model.Verdict {
	if len(outputs) == 0 {
		return model.Escalated("no judge outputs to aggregate")
	}

	var totalConfidence, approveWeight, rejectWeight float64
	for _, o := range outputs {
		totalConfidence += o.Confidence
		switch o.Verdict.Kind {
		case model.VerdictApproved, model.VerdictConditional:
			approveWeight += o.Confidence
		case model.VerdictRejected:
			rejectWeight += o.Confidence
		}
	}
	if totalConfidence == 0 {
		return model.Escalated("confidence_weighted consensus: zero total confidence")
	}

	approveRatio := approveWeight / totalConfidence
	rejectRatio := rejectWeight / totalConfidence

	switch {
	case approveRatio >= th.Approval:
		return approvalVerdict(outputs, "confidence_weighted consensus: approved")
	case rejectRatio >= th.Rejection:
		return model.Rejected(rejectReasoning(outputs))
	default:
		return model.Escalated("confidence_weighted consensus: below both thresholds")
	}
}

// approvalVerdict merges conditions from every conditionally-approving
// judge into one conditional approval, or returns a bare Approved if none
// attached conditions (spec §4.2: "Conditions from any conditional-
// approving judge are merged into a conditional approval if the majority
// approves").
func approvalVerdict(outputs []JudgeOutput, reasoning string) model.Verdict {
	var conditions []model.Condition
	for _, o := range outputs {
		if o.Verdict.Kind == model.VerdictConditional {
			conditions = append(conditions, o.Verdict.Conditions...)
		}
	}
	if len(conditions) > 0 {
		return model.ConditionalVerdict(reasoning, conditions)
	}
	return model.Approved(reasoning)
}

func rejectReasoning(outputs []JudgeOutput) string {
	reasoning := "consensus: rejected"
	for _, o := range outputs {
		if o.Verdict.Kind == model.VerdictRejected && o.Reasoning != "" {
			reasoning = o.Reasoning
			break
		}
	}
	return reasoning
}

// TieBreak resolves a disagreement between two consensus algorithms run
// as sanity checks against the same outputs: the stricter outcome wins
// (spec §4.2, open design choice in spec §9 resolved as "strictness
// wins" — see DESIGN.md).
func TieBreak(a, b model.Verdict) model.Verdict {
	if a.Kind.Stricter(b.Kind) {
		return a
	}
	return b
}
