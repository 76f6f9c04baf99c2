package command

import (
	"context"
	"fmt"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CHECKER
// Shared by every command handler that changes user stats. Assembles a fresh
// snapshot, asks the engine what is newly satisfied, awards it, and applies
// the rewards to the profile the caller passed in.
// ══════════════════════════════════════════════════════════════════════════════

// efficiencyWindowDays is the trailing window the efficiency-based
// predicates evaluate over.
const efficiencyWindowDays = 7

// AchievementChecker runs the exactly-once achievement check.
type AchievementChecker struct {
	engine          *achievement.Engine
	achievementRepo achievement.Repository
	taskRepo        task.Repository
	activityRepo    activity.Repository
}

// NewAchievementChecker creates a checker over the given definition table.
func NewAchievementChecker(
	engine *achievement.Engine,
	achievementRepo achievement.Repository,
	taskRepo task.Repository,
	activityRepo activity.Repository,
) *AchievementChecker {
	return &AchievementChecker{
		engine:          engine,
		achievementRepo: achievementRepo,
		taskRepo:        taskRepo,
		activityRepo:    activityRepo,
	}
}

// snapshot assembles the read-only stats aggregate for one user. The profile
// is taken from the caller so the check sees the state mutated earlier in the
// same command, not a stale read.
func (c *AchievementChecker) snapshot(ctx context.Context, p *profile.UserProfile) (achievement.StatsSnapshot, error) {
	userID := p.ID.String()

	byDifficulty, err := c.taskRepo.CompletionCountsByDifficulty(ctx, userID)
	if err != nil {
		return achievement.StatsSnapshot{}, fmt.Errorf("completion counts: %w", err)
	}
	completed := 0
	for _, n := range byDifficulty {
		completed += n
	}

	qualityCounts, err := c.activityRepo.CountSessionsByQuality(ctx, userID)
	if err != nil {
		return achievement.StatsSnapshot{}, fmt.Errorf("session quality counts: %w", err)
	}
	byQuality := make(map[string]int, len(qualityCounts))
	for q, n := range qualityCounts {
		byQuality[string(q)] = n
	}

	now := time.Now()
	to := timeutil.ToDay(now).AddDate(0, 0, 1)
	sessions, err := c.activityRepo.ListFinalizedSessions(ctx, userID, to.AddDate(0, 0, -efficiencyWindowDays), to)
	if err != nil {
		return achievement.StatsSnapshot{}, fmt.Errorf("finalized sessions: %w", err)
	}

	return achievement.StatsSnapshot{
		TotalXP:                 int(p.TotalXP),
		CurrentStreak:           p.Streak.Current,
		LongestStreak:           p.Streak.Longest,
		TasksCompleted:          completed,
		CompletionsByDifficulty: byDifficulty,
		SessionQualityCounts:    byQuality,
		LearningEfficiency:      activity.EfficiencyOf(sessions),
	}, nil
}

// CheckAndAward evaluates the table against the user's current stats, awards
// everything newly satisfied, and applies each reward to the given profile.
// The caller persists the profile afterwards; the earned rows are persisted
// here. Returns the unlock events to publish. A nil checker awards nothing,
// which is how deployments switch achievements off.
func (c *AchievementChecker) CheckAndAward(ctx context.Context, p *profile.UserProfile) ([]achievement.Earned, []shared.Event, error) {
	if c == nil {
		return nil, nil, nil
	}

	stats, err := c.snapshot(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("check_achievements: %w", err)
	}

	earnedSet, err := c.achievementRepo.EarnedSet(ctx, p.ID.String())
	if err != nil {
		return nil, nil, fmt.Errorf("check_achievements: earned set: %w", err)
	}

	newly := c.engine.Evaluate(stats, earnedSet)
	if len(newly) == 0 {
		return nil, nil, nil
	}

	var awarded []achievement.Earned
	var events []shared.Event
	for _, def := range newly {
		earned := achievement.Earned{
			UserID:        p.ID.String(),
			AchievementID: def.ID,
			EarnedAt:      time.Now(),
			Reward:        def.Reward,
		}
		if err := c.achievementRepo.Award(ctx, earned); err != nil {
			return awarded, events, fmt.Errorf("check_achievements: award %s: %w", def.ID, err)
		}
		if err := def.Reward.Apply(p); err != nil {
			return awarded, events, fmt.Errorf("check_achievements: apply reward %s: %w", def.ID, err)
		}

		awarded = append(awarded, earned)
		events = append(events, shared.NewAchievementUnlockedEvent(p.ID.String(), def.ID, string(def.Reward.Kind)))
	}

	return awarded, events, nil
}
