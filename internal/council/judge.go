// Package council implements the Constitutional Council (spec §4.2): four
// role-specialized judges, two switchable consensus algorithms, and the
// mid-execution monitoring / escalation-timeout machinery that lets
// auto and dry_run tasks run without blocking on synchronous review.
package council

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/inference"
	"github.com/taskcouncil/engine/internal/model"
)

// Role names one of the four standing judges (spec §4.2).
type Role string

const (
	RoleConstitutional Role = "constitutional"
	RoleTechnical       Role = "technical"
	RoleQuality         Role = "quality"
	RoleIntegration     Role = "integration"
)

// StandingRoles is the fixed four-judge panel every council deliberation
// runs, in the order their JudgeOutputs are reported for tie-break
// purposes elsewhere in this package.
var StandingRoles = []Role{RoleConstitutional, RoleTechnical, RoleQuality, RoleIntegration}

// JudgeOutput is one judge's verdict on a stage input (spec §4.2).
type JudgeOutput struct {
	Role        Role
	Verdict     model.Verdict
	Confidence  float64
	Reasoning   string
	EvidenceRefs []string
}

// StageInput is the read-only context a judge deliberates over: either a
// task under pre-review, an incremental event for mid-execution
// monitoring, or a draft result for final review.
type StageInput struct {
	Stage       string // "pre_review" | "monitor" | "final_review"
	Task        model.Task
	DraftResult *model.TaskResult
	EventSummary string
}

// Judge is a pure function of (task, stage input, config) -> JudgeOutput
// (spec §4.2). Implementations must not mutate shared state; any model
// calls go through the inference.Client each judge is configured with.
type Judge interface {
	Role() Role
	Deliberate(ctx context.Context, in StageInput) (JudgeOutput, error)
}

// JudgeConfig configures one judge's behavior. Distinct from Config, which
// configures the Council that composes judges together.
type JudgeConfig struct {
	Model            ids.ModelRef
	SystemPrompt     string
	EvidenceRequired bool
}

// LLMJudge is the standard Judge implementation: it prompts a model via
// inference.Client and parses a structured verdict out of the response,
// the way the teacher's internal/llm client round-trips a single
// completion call (internal/llm/openai.Client.CallLLM) and extracts
// structured content from it.
type LLMJudge struct {
	role   Role
	client inference.Client
	cfg    JudgeConfig
	log    *zap.Logger
}

func NewLLMJudge(role Role, client inference.Client, cfg JudgeConfig, log *zap.Logger) *LLMJudge {
	return &LLMJudge{role: role, client: client, cfg: cfg, log: log.With(zap.String("judge", string(role)))}
}

func (j *LLMJudge) Role() Role { return j.role }

// judgeResponse is the structured shape an LLMJudge asks its model to
// emit. The model is expected to respond with exactly this JSON object;
// a response that fails to parse, or omits a recognizable verdict tag, is
// treated as Escalated at zero confidence (spec §4.2, §8 boundary: "Judge
// returning neither approval nor rejection ... treated as Escalated at
// confidence 0").
type judgeResponse struct {
	Verdict    string              `json:"verdict"`
	Reasoning  string              `json:"reasoning"`
	Confidence *float64            `json:"confidence"`
	Conditions []model.Condition   `json:"conditions"`
	Evidence   []string            `json:"evidence_refs"`
}

func (j *LLMJudge) Deliberate(ctx context.Context, in StageInput) (JudgeOutput, error) {
	prompt := buildPrompt(j.role, in)

	result, err := j.client.Invoke(ctx, inference.InferenceRequest{
		Model:      j.cfg.Model,
		SystemText: j.cfg.SystemPrompt,
		Prompt:     prompt,
	})
	if err != nil {
		j.log.Warn("judge deliberation failed", zap.Error(err))
		return unavailableOutput(j.role, err), nil
	}
	if result.Status != inference.ResultOK {
		return unavailableOutput(j.role, errors.Newf(errors.KindInternal, "judge inference returned status %q", result.Status)), nil
	}

	out := parseJudgeResponse(j.role, result.Text)
	if j.cfg.EvidenceRequired && len(out.EvidenceRefs) == 0 {
		switch out.Verdict.Kind {
		case model.VerdictApproved, model.VerdictConditional:
			out.Verdict = model.Escalated("evidence_required: no evidence supplied by approving judge")
		}
	}
	return out, nil
}

func unavailableOutput(role Role, err error) JudgeOutput {
	return JudgeOutput{
		Role:       role,
		Verdict:    model.Escalated(fmt.Sprintf("judge_unavailable: %v", err)),
		Confidence: 0.0,
		Reasoning:  fmt.Sprintf("judge_unavailable: %v", err),
	}
}

func parseJudgeResponse(role Role, text string) JudgeOutput {
	var resp judgeResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return JudgeOutput{
			Role:      role,
			Verdict:   model.Escalated("judge produced no parseable verdict"),
			Confidence: 0,
			Reasoning: text,
		}
	}

	confidence := 0.5
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	var verdict model.Verdict
	switch strings.ToLower(strings.TrimSpace(resp.Verdict)) {
	case "approved", "approve":
		verdict = model.Approved(resp.Reasoning)
	case "conditional":
		verdict = model.ConditionalVerdict(resp.Reasoning, resp.Conditions)
	case "rejected", "reject":
		verdict = model.Rejected(resp.Reasoning)
	case "escalated", "escalate":
		verdict = model.Escalated(resp.Reasoning)
	default:
		verdict = model.Escalated("judge produced no recognizable verdict tag")
		confidence = 0
	}

	return JudgeOutput{
		Role:        role,
		Verdict:     verdict,
		Confidence:  confidence,
		Reasoning:   resp.Reasoning,
		EvidenceRefs: resp.Evidence,
	}
}

// extractJSON trims leading/trailing prose a model sometimes wraps a JSON
// object in, by slicing from the first '{' to the last '}'.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "{}"
	}
	return text[start : end+1]
}

func buildPrompt(role Role, in StageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s judge reviewing a %s stage.\n", role, in.Stage)
	fmt.Fprintf(&b, "Task description: %s\n", in.Task.Description)
	fmt.Fprintf(&b, "Requirements: %s\n", strings.Join(in.Task.Requirements, ", "))
	fmt.Fprintf(&b, "Risk tier: %d\n", in.Task.RiskTier)
	if in.EventSummary != "" {
		fmt.Fprintf(&b, "Incremental event: %s\n", in.EventSummary)
	}
	if in.DraftResult != nil {
		fmt.Fprintf(&b, "Draft result: reason=%q artifacts=%d\n", in.DraftResult.Reason, len(in.DraftResult.Artifacts))
	}
	b.WriteString("Respond with a single JSON object: {\"verdict\": \"approved|conditional|rejected|escalated\", \"reasoning\": string, \"confidence\": number 0..1, \"conditions\": [...], \"evidence_refs\": [...]}")
	return b.String()
}
