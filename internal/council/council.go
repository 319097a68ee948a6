package council

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/model"
)

// Config configures one Council instance's policy (spec §4.2, §6).
type Config struct {
	JudgeTimeout     time.Duration
	Algorithm        Algorithm
	Thresholds       Thresholds
	EvidenceRequired bool
}

// Council composes the four standing judges into consensus decisions
// (spec §4.2). A Council is safe for concurrent Deliberate calls across
// different tasks.
type Council struct {
	judges []Judge
	cfg    Config
	log    *zap.Logger
}

func New(judges []Judge, cfg Config, log *zap.Logger) *Council {
	return &Council{judges: judges, cfg: cfg, log: log.Named("council")}
}

// Deliberate runs every judge concurrently against in, bounding each to
// cfg.JudgeTimeout, and returns the aggregate verdict plus the individual
// outputs (for provenance/audit). The council never hangs on a missing
// judge (spec §4.2): a judge that does not reply within JudgeTimeout is
// recorded as Escalated at zero confidence, same as a judge whose
// inference call errored.
func (c *Council) Deliberate(ctx context.Context, in StageInput) (model.Verdict, []JudgeOutput, error) {
	outputs := make([]JudgeOutput, len(c.judges))

	var wg sync.WaitGroup
	wg.Add(len(c.judges))
	for i, j := range c.judges {
		go func(i int, j Judge) {
			defer wg.Done()
			outputs[i] = c.runWithTimeout(ctx, j, in)
		}(i, j)
	}
	wg.Wait()

	verdict := Aggregate(outputs, c.cfg.Algorithm, c.cfg.Thresholds)
	if c.cfg.EvidenceRequired {
		verdict = c.enforceEvidence(verdict, outputs)
	}
	return verdict, outputs, nil
}

func (c *Council) runWithTimeout(ctx context.Context, j Judge, in StageInput) JudgeOutput {
	timeout := c.cfg.JudgeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out JudgeOutput
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := j.Deliberate(jctx, in)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.log.Warn("judge returned an error instead of a verdict", zap.String("judge", string(j.Role())), zap.Error(r.err))
			return unavailableOutput(j.Role(), r.err)
		}
		return r.out
	case <-jctx.Done():
		c.log.Warn("judge timed out", zap.String("judge", string(j.Role())), zap.Duration("timeout", timeout))
		return unavailableOutput(j.Role(), jctx.Err())
	}
}

// enforceEvidence downgrades an Approved/Conditional aggregate to
// Escalated unless every approving judge supplied evidence (spec §4.2
// "Evidence requirement").
func (c *Council) enforceEvidence(verdict model.Verdict, outputs []JudgeOutput) model.Verdict {
	if verdict.Kind != model.VerdictApproved && verdict.Kind != model.VerdictConditional {
		return verdict
	}
	for _, o := range outputs {
		approving := o.Verdict.Kind == model.VerdictApproved || o.Verdict.Kind == model.VerdictConditional
		if approving && len(o.EvidenceRefs) == 0 {
			return model.Escalated("evidence_required: not every approving judge supplied evidence")
		}
	}
	return verdict
}
