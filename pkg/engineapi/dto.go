// Package engineapi is the engine's one exported seam (spec §6): the
// wire-shaped request/response types every external caller — the HTTP
// server in this package, a CLI, a future gRPC front end — speaks in,
// plus the http.Handler that drives internal/pipeline over it. Nothing
// under internal/ is reachable from outside the module; this package is
// the only place a DTO and a domain type meet.
package engineapi

import (
	"time"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// SubmitTaskRequest is the JSON body of POST /tasks.
type SubmitTaskRequest struct {
	Description   string     `json:"description"`
	Requirements  []string   `json:"requirements,omitempty"`
	ExecutionMode string     `json:"execution_mode"` // "strict" | "auto" | "dry_run"
	RiskTier      int        `json:"risk_tier"`       // 1 critical .. 3 low
	Priority      string     `json:"priority,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// SubmitTaskResponse is returned once a task has been durably admitted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

// TaskView is the JSON shape of GET /tasks/{id}: a point-in-time
// snapshot, never a handle into live driver state (spec §3 Ownership).
type TaskView struct {
	TaskID       string       `json:"task_id"`
	Description  string       `json:"description"`
	State        string       `json:"state"`
	RiskTier     int          `json:"risk_tier"`
	Priority     string       `json:"priority"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Result       *ResultView  `json:"result,omitempty"`
	Conditions   []string     `json:"conditions,omitempty"`
}

// ResultView is populated exactly when TaskView.State is terminal.
type ResultView struct {
	State      string         `json:"state"`
	Reason     string         `json:"reason,omitempty"`
	Artifacts  []ArtifactView `json:"artifacts,omitempty"`
	FinalGates []GateView     `json:"final_gates,omitempty"`
}

type ArtifactView struct {
	StepID  string `json:"step_id"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

type GateView struct {
	GateID string `json:"gate_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Score  float64 `json:"score"`
}

// EventView is the JSON shape streamed by GET /tasks/{id}/events (SSE,
// spec §6 observation interface).
type EventView struct {
	Kind           string    `json:"kind"`
	At             time.Time `json:"at"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	StepID         string    `json:"step_id,omitempty"`
	ResultSummary  string    `json:"result_summary,omitempty"`
	GateID         string    `json:"gate_id,omitempty"`
	GateStatus     string    `json:"gate_status,omitempty"`
	CommandSummary string    `json:"command_summary,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	VerdictSummary string    `json:"verdict_summary,omitempty"`
}

// InterventionRequest is the JSON body of POST /tasks/{id}/intervene
// (spec §4.3, §6).
type InterventionRequest struct {
	Kind               string     `json:"kind"` // "pause" | "resume" | "cancel" | "override" | "modify"
	Reason             string     `json:"reason,omitempty"`
	OverrideStepID     string     `json:"override_step_id,omitempty"`
	OverrideGateID     string     `json:"override_gate_id,omitempty"`
	OverrideResult     string     `json:"override_result,omitempty"` // "pass" | "warn" | "fail"
	ModifyPriority     *string    `json:"modify_priority,omitempty"`
	ModifyDeadline     *time.Time `json:"modify_deadline,omitempty"`
	ModifyRequirements []string   `json:"modify_requirements,omitempty"`
}

func taskStateTerminalResult(t *model.Task) *ResultView {
	if t.Result == nil {
		return nil
	}
	artifacts := make([]ArtifactView, 0, len(t.Result.Artifacts))
	for _, a := range t.Result.Artifacts {
		artifacts = append(artifacts, ArtifactView{StepID: a.StepID.String(), Kind: a.Kind, Payload: a.Payload})
	}
	gates := make([]GateView, 0, len(t.Result.FinalGates))
	for _, g := range t.Result.FinalGates {
		gates = append(gates, GateView{GateID: g.GateID, Kind: string(g.Kind), Status: string(g.Status), Score: g.Score})
	}
	return &ResultView{
		State:      string(t.Result.State),
		Reason:     t.Result.Reason,
		Artifacts:  artifacts,
		FinalGates: gates,
	}
}

// TaskViewOf converts a domain snapshot to its wire shape.
func TaskViewOf(t *model.Task) TaskView {
	conditions := make([]string, 0, len(t.Conditions))
	for _, c := range t.Conditions {
		conditions = append(conditions, c.Requirement)
	}
	return TaskView{
		TaskID:      t.ID.String(),
		Description: t.Description,
		State:       string(t.State),
		RiskTier:    int(t.RiskTier),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Result:      taskStateTerminalResult(t),
		Conditions:  conditions,
	}
}

// EventViewOf converts a domain event to its wire shape.
func EventViewOf(e model.TaskEvent) EventView {
	return EventView{
		Kind:           string(e.Kind),
		At:             e.At,
		From:           string(e.From),
		To:             string(e.To),
		StepID:         e.StepID.String(),
		ResultSummary:  e.ResultSummary,
		GateID:         e.GateID,
		GateStatus:     string(e.GateStatus),
		CommandSummary: e.CommandSummary,
		Stage:          e.Stage,
		VerdictSummary: e.VerdictSummary,
	}
}

// toSubmitRequest converts the wire request into the pipeline's own
// SubmitRequest, an internal type this package is allowed to see (it
// lives in internal/pipeline, which is within this module).
func (r SubmitTaskRequest) toDomain() (description string, reqs []string, mode model.ExecutionMode, risk model.RiskTier, priority model.Priority, deadline *time.Time) {
	return r.Description, r.Requirements, model.ExecutionMode(r.ExecutionMode), model.RiskTier(r.RiskTier), model.Priority(r.Priority), r.Deadline
}

func interventionCommandOf(r InterventionRequest) model.InterventionCommand {
	cmd := model.InterventionCommand{
		Kind:   model.InterventionKind(r.Kind),
		Reason: r.Reason,
	}
	if r.OverrideStepID != "" {
		cmd.OverrideStepID = ids.StepID(r.OverrideStepID)
	}
	cmd.OverrideGateID = r.OverrideGateID
	if r.OverrideResult != "" {
		cmd.OverrideResult = model.GateStatus(r.OverrideResult)
	}
	if r.ModifyPriority != nil {
		p := model.Priority(*r.ModifyPriority)
		cmd.ModifyPriority = &p
	}
	cmd.ModifyDeadline = r.ModifyDeadline
	cmd.ModifyRequirements = r.ModifyRequirements
	return cmd
}
