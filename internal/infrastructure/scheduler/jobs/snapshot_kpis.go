package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/activity"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT KPIS JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserLister pages through all known user IDs.
type UserLister interface {
	ListUserIDs(ctx context.Context, limit, offset int) ([]string, error)
}

// SnapshotKPIsJob writes the previous day's KPI snapshot for every user.
// Snapshots are write-once per (user, day), so a rerun after a partial
// failure only fills in the missing users.
type SnapshotKPIsJob struct {
	users     UserLister
	analytics *activity.Analytics
	logger    *slog.Logger
	config    SnapshotKPIsConfig

	lastStats atomic.Value // *SnapshotKPIsStats
}

// SnapshotKPIsConfig contains configuration for the snapshot job.
type SnapshotKPIsConfig struct {
	// PageSize is how many users are loaded per page.
	PageSize int

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultSnapshotKPIsConfig returns sensible defaults.
func DefaultSnapshotKPIsConfig() SnapshotKPIsConfig {
	return SnapshotKPIsConfig{
		PageSize: 200,
		Timeout:  10 * time.Minute,
	}
}

// SnapshotKPIsStats contains statistics from a snapshot run.
type SnapshotKPIsStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Users       int
	Failed      int
}

// NewSnapshotKPIsJob creates the KPI snapshot job.
func NewSnapshotKPIsJob(users UserLister, analytics *activity.Analytics, logger *slog.Logger, config SnapshotKPIsConfig) *SnapshotKPIsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = 200
	}
	return &SnapshotKPIsJob{
		users:     users,
		analytics: analytics,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *SnapshotKPIsJob) Name() string {
	return "snapshot_kpis"
}

// Description returns a human-readable description.
func (j *SnapshotKPIsJob) Description() string {
	return "Writes the per-day KPI snapshot for every user"
}

// Run executes the snapshot job for yesterday's completed day.
func (j *SnapshotKPIsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &SnapshotKPIsStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// The run fires just after midnight UTC; the day being closed out is
	// yesterday.
	day := startedAt.UTC().AddDate(0, 0, -1)

	offset := 0
	for {
		ids, err := j.users.ListUserIDs(ctx, j.config.PageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, userID := range ids {
			if _, err := j.analytics.SnapshotKPIs(ctx, userID, day); err != nil {
				stats.Failed++
				j.logger.Warn("failed to snapshot KPIs",
					"user_id", userID,
					"error", err,
				)
				continue
			}
			stats.Users++
		}

		offset += len(ids)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("snapshot_kpis job completed",
		"users", stats.Users,
		"failed", stats.Failed,
		"duration", stats.Duration.String(),
	)

	if stats.Failed > 0 {
		return fmt.Errorf("snapshot completed with %d failures", stats.Failed)
	}
	return nil
}

// LastStats returns statistics from the last run.
func (j *SnapshotKPIsJob) LastStats() *SnapshotKPIsStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*SnapshotKPIsStats)
}
