package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/model"
	"github.com/maclay/research-assistant/internal/resilience"
)

// executeStage runs one stage function under the retry policy, reporting
// attempt-level progress to the run's observer. Every error class is
// retry-eligible at this level; only retry exhaustion is terminal. The stage
// function's return value is the human-readable completion message.
func (p *Processor) executeStage(ctx context.Context, runID string, stage model.Stage, fn func(ctx context.Context) (string, error)) (string, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts: p.maxAttempts,
		BackoffUnit: p.backoffUnit,
		Multiplier:  2,
		ShouldRetry: resilience.RetryAll,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			zap.L().Warn("stage attempt failed",
				zap.String("run_id", runID),
				zap.String("stage", string(stage)),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			p.hub.Send(runID, model.StageUpdate(stage, model.StatusActive, 0,
				fmt.Sprintf("Attempt %d failed, retrying in %s...", attempt, delay)))
		},
	}

	msg, err := resilience.DoVal(ctx, cfg, fn)
	if err != nil {
		p.hub.Send(runID, model.StageUpdate(stage, model.StatusError, 0,
			fmt.Sprintf("Failed after %d attempts", p.maxAttempts)))
		return "", err
	}
	return msg, nil
}
