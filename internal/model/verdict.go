package model

// VerdictKind enumerates the sum-type variants of a Verdict (spec §3).
// Escalated is a first-class outcome, not an error (spec §9).
type VerdictKind string

const (
	VerdictApproved    VerdictKind = "approved"
	VerdictConditional VerdictKind = "conditional"
	VerdictRejected    VerdictKind = "rejected"
	VerdictEscalated   VerdictKind = "escalated"
)

// severity orders verdict kinds for the tie-break rule in spec §4.2:
// "Rejected > Escalated > Conditional > Approved". Higher is stricter.
var severity = map[VerdictKind]int{
	VerdictApproved:    0,
	VerdictConditional: 1,
	VerdictEscalated:   2,
	VerdictRejected:    3,
}

// Stricter reports whether a is strictly stricter than b under the
// tie-break ordering.
func (a VerdictKind) Stricter(b VerdictKind) bool { return severity[a] > severity[b] }

// Condition is one requirement attached to a Conditional verdict
// (spec §3).
type Condition struct {
	Requirement string
	Deadline    *int64 // unix seconds, optional
	ValidatorID string
	Satisfied   bool
}

// Verdict is the output of a single judge or the aggregate council
// decision (spec §3).
type Verdict struct {
	Kind       VerdictKind
	Reasoning  string
	Conditions []Condition // meaningful only when Kind == VerdictConditional
}

// Approved, Conditional, Rejected, Escalated are constructors mirroring
// the sum-type variants named in spec §3.
func Approved(reasoning string) Verdict { return Verdict{Kind: VerdictApproved, Reasoning: reasoning} }
func Rejected(reasoning string) Verdict { return Verdict{Kind: VerdictRejected, Reasoning: reasoning} }
func Escalated(reasoning string) Verdict {
	return Verdict{Kind: VerdictEscalated, Reasoning: reasoning}
}
func ConditionalVerdict(reasoning string, conditions []Condition) Verdict {
	return Verdict{Kind: VerdictConditional, Reasoning: reasoning, Conditions: conditions}
}
