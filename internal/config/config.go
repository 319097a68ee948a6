package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config binds every value spec §6 lists as "environment influencing
// behavior" to an ENGINE_-prefixed environment variable, with the spec's
// stated defaults. Fields are plain structs (no viper types leak out of
// this package) so the rest of the engine never imports viper directly —
// the same boundary discipline the teacher keeps around godotenv in
// pkg/config.
type Config struct {
	JudgeTimeout              time.Duration
	InferenceTimeout          time.Duration
	StepConcurrencyPerTask    int
	EscalationTimeout         time.Duration
	ConsensusAlgorithm        string // "majority" | "weighted"
	ApprovalThreshold         float64
	RejectionThreshold        float64
	MaxInterventionInboxSize  int
	BackendInboxCapacity      int
	ObservationLagThreshold   int
	HeartbeatTimeout          time.Duration
	TerminalTaskRetention     time.Duration
}

// Load reads Config from the process environment (ENGINE_* variables),
// falling back to spec-mandated defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()

	v.SetDefault("judge_timeout", 30*time.Second)
	v.SetDefault("inference_timeout", 60*time.Second)
	v.SetDefault("step_concurrency_per_task", 4)
	v.SetDefault("escalation_timeout", time.Hour)
	v.SetDefault("consensus_algorithm", "majority")
	v.SetDefault("approval_threshold", 0.7)
	v.SetDefault("rejection_threshold", 0.6)
	v.SetDefault("max_intervention_inbox_size", 16)
	v.SetDefault("backend_inbox_capacity", 256)
	v.SetDefault("observation_lag_threshold", 256)
	v.SetDefault("heartbeat_timeout", 30*time.Second)
	v.SetDefault("terminal_task_retention", 7*24*time.Hour)

	cfg := &Config{
		JudgeTimeout:             v.GetDuration("judge_timeout"),
		InferenceTimeout:         v.GetDuration("inference_timeout"),
		StepConcurrencyPerTask:   v.GetInt("step_concurrency_per_task"),
		EscalationTimeout:        v.GetDuration("escalation_timeout"),
		ConsensusAlgorithm:       v.GetString("consensus_algorithm"),
		ApprovalThreshold:        v.GetFloat64("approval_threshold"),
		RejectionThreshold:       v.GetFloat64("rejection_threshold"),
		MaxInterventionInboxSize: v.GetInt("max_intervention_inbox_size"),
		BackendInboxCapacity:     v.GetInt("backend_inbox_capacity"),
		ObservationLagThreshold:  v.GetInt("observation_lag_threshold"),
		HeartbeatTimeout:         v.GetDuration("heartbeat_timeout"),
		TerminalTaskRetention:    v.GetDuration("terminal_task_retention"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against the range/enum constraints spec §4.2
// and §5 imply (e.g. thresholds are probabilities, the inbox capacity must
// be positive to match the "bounded queue, capacity 16" invariant's shape).
func (c *Config) Validate() error {
	if c.ConsensusAlgorithm != "majority" && c.ConsensusAlgorithm != "weighted" {
		return fmt.Errorf("config: consensus_algorithm must be 'majority' or 'weighted', got %q", c.ConsensusAlgorithm)
	}
	if c.ApprovalThreshold <= 0 || c.ApprovalThreshold > 1 {
		return fmt.Errorf("config: approval_threshold must be in (0,1], got %f", c.ApprovalThreshold)
	}
	if c.RejectionThreshold <= 0 || c.RejectionThreshold > 1 {
		return fmt.Errorf("config: rejection_threshold must be in (0,1], got %f", c.RejectionThreshold)
	}
	if c.StepConcurrencyPerTask <= 0 {
		return fmt.Errorf("config: step_concurrency_per_task must be positive, got %d", c.StepConcurrencyPerTask)
	}
	if c.MaxInterventionInboxSize <= 0 {
		return fmt.Errorf("config: max_intervention_inbox_size must be positive, got %d", c.MaxInterventionInboxSize)
	}
	if c.BackendInboxCapacity <= 0 {
		return fmt.Errorf("config: backend_inbox_capacity must be positive, got %d", c.BackendInboxCapacity)
	}
	if c.JudgeTimeout <= 0 || c.InferenceTimeout <= 0 || c.EscalationTimeout <= 0 || c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("config: all timeouts must be positive")
	}
	return nil
}
