// Package jobs contains implementations of scheduled jobs for the progress
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/learnquest/progress-engine/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE GOALS JOB
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGoalsJob sweeps expired active goals across all users: each is
// finalized, rolled into the next period, and daily goals are re-evaluated
// against the retargeting policy. Runs shortly after the UTC day boundary;
// repeated runs are harmless because finalization is idempotent.
type FinalizeGoalsJob struct {
	handler *command.FinalizeGoalsHandler
	logger  *slog.Logger
	config  FinalizeGoalsConfig

	lastStats atomic.Value // *FinalizeGoalsStats
}

// FinalizeGoalsConfig contains configuration for the sweep.
type FinalizeGoalsConfig struct {
	// BatchSize is the maximum number of goals finalized per run.
	BatchSize int

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultFinalizeGoalsConfig returns sensible defaults.
func DefaultFinalizeGoalsConfig() FinalizeGoalsConfig {
	return FinalizeGoalsConfig{
		BatchSize: 500,
		Timeout:   5 * time.Minute,
	}
}

// FinalizeGoalsStats contains statistics from a sweep run.
type FinalizeGoalsStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Finalized   int
}

// NewFinalizeGoalsJob creates the goal finalization job.
func NewFinalizeGoalsJob(handler *command.FinalizeGoalsHandler, logger *slog.Logger, config FinalizeGoalsConfig) *FinalizeGoalsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalizeGoalsJob{
		handler: handler,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *FinalizeGoalsJob) Name() string {
	return "finalize_goals"
}

// Description returns a human-readable description.
func (j *FinalizeGoalsJob) Description() string {
	return "Finalizes expired goals, rolls periods over, and retargets daily goals"
}

// Run executes the sweep.
func (j *FinalizeGoalsJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	finalized, err := j.handler.Sweep(ctx, startedAt, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("goal sweep failed: %w", err)
	}

	stats := &FinalizeGoalsStats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Finalized:   finalized,
	}
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("finalize_goals job completed",
		"finalized", finalized,
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastStats returns statistics from the last run.
func (j *FinalizeGoalsJob) LastStats() *FinalizeGoalsStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*FinalizeGoalsStats)
}
