package council

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskcouncil/engine/internal/model"
)

// Monitor implements spec §4.2's mid-execution monitoring: for auto and
// dry_run tasks, it re-invokes the panel on each incremental pipeline
// event and translates a Rejected or high-confidence Escalated output
// into an InterventionCommand queued to the task's inbox.
type Monitor struct {
	council *Council
	log     *zap.Logger

	// EscalationConfidenceThreshold is the minimum self-reported
	// confidence an Escalated judge output must carry before the monitor
	// treats it as actionable rather than noise.
	EscalationConfidenceThreshold float64
}

func NewMonitor(c *Council, log *zap.Logger) *Monitor {
	return &Monitor{council: c, log: log.Named("council.monitor"), EscalationConfidenceThreshold: 0.6}
}

// Observe re-deliberates on one incremental event and returns an
// InterventionCommand to enqueue, or nil if no intervention is warranted.
func (m *Monitor) Observe(ctx context.Context, task model.Task, eventSummary string) (*model.InterventionCommand, error) {
	in := StageInput{Stage: "monitor", Task: task, EventSummary: eventSummary}
	verdict, outputs, err := m.council.Deliberate(ctx, in)
	if err != nil {
		return nil, err
	}

	switch verdict.Kind {
	case model.VerdictRejected:
		return &model.InterventionCommand{Kind: model.InterventionPause, Reason: "council: " + verdict.Reasoning}, nil
	case model.VerdictEscalated:
		if highestConfidence(outputs) >= m.EscalationConfidenceThreshold {
			return &model.InterventionCommand{Kind: model.InterventionPause, Reason: "council: " + verdict.Reasoning}, nil
		}
	}
	return nil, nil
}

// ObserveMany fans a batch of incremental events out across the judge
// panel concurrently (one Deliberate call per event) and collects any
// resulting interventions; used when the pipeline flushes several
// buffered events at once rather than one at a time.
func (m *Monitor) ObserveMany(ctx context.Context, task model.Task, eventSummaries []string) ([]model.InterventionCommand, error) {
	results := make([]*model.InterventionCommand, len(eventSummaries))

	g, gctx := errgroup.WithContext(ctx)
	for i, summary := range eventSummaries {
		i, summary := i, summary
		g.Go(func() error {
			cmd, err := m.Observe(gctx, task, summary)
			if err != nil {
				return fmt.Errorf("observe event %d: %w", i, err)
			}
			results[i] = cmd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var commands []model.InterventionCommand
	for _, r := range results {
		if r != nil {
			commands = append(commands, *r)
		}
	}
	return commands, nil
}

func highestConfidence(outputs []JudgeOutput) float64 {
	var max float64
	for _, o := range outputs {
		if o.Verdict.Kind == model.VerdictEscalated && o.Confidence > max {
			max = o.Confidence
		}
	}
	return max
}
