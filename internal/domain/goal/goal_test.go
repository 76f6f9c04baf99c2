package goal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnquest/progress-engine/internal/domain/shared"
)

func day(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
	return t
}

func dailyGoal(t *testing.T, anchor string, target int) *Goal {
	t.Helper()
	g, err := NewDailyGoal("user-1", day(anchor), Targets{Tasks: target, XP: target * 150, FocusMinutes: 60})
	assert.NoError(t, err)
	return g
}

func TestNewDailyGoalPeriod(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	assert.Equal(t, day("2026-03-01"), g.PeriodStart)
	assert.Equal(t, day("2026-03-02"), g.PeriodEnd)
	assert.Equal(t, StatusActive, g.Status)

	assert.True(t, g.Contains(day("2026-03-01")))
	assert.True(t, g.Contains(day("2026-03-01").Add(23*time.Hour)))
	assert.False(t, g.Contains(day("2026-03-02")))
}

func TestNewWeeklyGoalSpansCalendarWeek(t *testing.T) {
	// 2026-03-04 is a Wednesday
	g, err := NewWeeklyGoal("user-1", day("2026-03-04"), Targets{Tasks: 21})
	assert.NoError(t, err)
	assert.Equal(t, day("2026-03-02"), g.PeriodStart) // Monday
	assert.Equal(t, day("2026-03-09"), g.PeriodEnd)
	assert.True(t, g.Contains(day("2026-03-08"))) // Sunday
	assert.False(t, g.Contains(day("2026-03-09")))
}

func TestNewGoalValidation(t *testing.T) {
	_, err := NewDailyGoal("", day("2026-03-01"), Targets{Tasks: 3})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewDailyGoal("user-1", day("2026-03-01"), Targets{Tasks: 0})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestRecordProgress(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)

	assert.NoError(t, g.RecordProgress(1, 50, 20))
	assert.NoError(t, g.RecordProgress(1, 75, 15))
	assert.Equal(t, 2, g.ActualTasks)
	assert.Equal(t, 125, g.ActualXP)
	assert.Equal(t, 35, g.ActualFocusMinutes)
	assert.False(t, g.TargetReached())

	assert.NoError(t, g.RecordProgress(1, 50, 0))
	assert.True(t, g.TargetReached())
}

func TestRecordProgressAfterFinalizeFails(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	g.Finalize()

	err := g.RecordProgress(1, 50, 0)
	assert.ErrorIs(t, err, shared.ErrAlreadyFinalized)
}

func TestExpired(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	assert.False(t, g.Expired(day("2026-03-01")))
	assert.True(t, g.Expired(day("2026-03-02")))
	assert.True(t, g.Expired(day("2026-03-10")))
}

func TestFinalizeCompleted(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	g.RecordProgress(3, 150, 60)

	g.Finalize()
	assert.Equal(t, StatusCompleted, g.Status)
	assert.InDelta(t, 1.0, g.CompletionRate, 1e-9)
	assert.NotNil(t, g.FinalizedAt)
}

func TestFinalizeFailedBelowThreshold(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 4)
	g.RecordProgress(3, 150, 0)

	g.Finalize()
	// 3/4 = 0.75 < 0.8
	assert.Equal(t, StatusFailed, g.Status)
	assert.InDelta(t, 0.75, g.CompletionRate, 1e-9)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	g.RecordProgress(3, 150, 0)
	g.Finalize()

	status, rate := g.Status, g.CompletionRate
	g.Finalize()
	assert.Equal(t, status, g.Status)
	assert.Equal(t, rate, g.CompletionRate)
}

func TestNextPeriod(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	g.Finalize()

	next, err := g.NextPeriod(day("2026-03-02"))
	assert.NoError(t, err)
	assert.Equal(t, day("2026-03-02"), next.PeriodStart)
	assert.Equal(t, day("2026-03-03"), next.PeriodEnd)
	assert.Equal(t, g.TargetTasks, next.TargetTasks)
	assert.Equal(t, StatusActive, next.Status)
	assert.Equal(t, 0, next.ActualTasks)
}

func TestNextPeriodAfterGapCoversAsOfDay(t *testing.T) {
	g := dailyGoal(t, "2026-03-01", 3)
	g.Finalize()

	// finalized three days late: the successor skips the empty gap days
	next, err := g.NextPeriod(day("2026-03-05"))
	assert.NoError(t, err)
	assert.Equal(t, day("2026-03-05"), next.PeriodStart)
	assert.Equal(t, day("2026-03-06"), next.PeriodEnd)
	assert.True(t, next.Contains(day("2026-03-05")))

	w, err := NewWeeklyGoal("user-1", day("2026-03-02"), Targets{Tasks: 10})
	assert.NoError(t, err)
	w.Finalize()

	wn, err := w.NextPeriod(day("2026-03-20"))
	assert.NoError(t, err)
	assert.Equal(t, day("2026-03-16"), wn.PeriodStart)
	assert.Equal(t, day("2026-03-23"), wn.PeriodEnd)
	assert.True(t, wn.Contains(day("2026-03-20")))
}

func TestInitialDailyTarget(t *testing.T) {
	cases := []struct {
		motivation, urgency Level
		want                int
	}{
		{LevelHigh, LevelHigh, 5},
		{LevelHigh, LevelMedium, 4},
		{LevelMedium, LevelMedium, 3},
		{LevelLow, LevelMedium, 2},
		{LevelLow, LevelLow, 2}, // floored at 2
		{LevelHigh, LevelLow, 3},
	}
	for _, tc := range cases {
		got := InitialDailyTarget(IntakeParams{Motivation: tc.motivation, Urgency: tc.urgency})
		assert.Equal(t, tc.want, got, "motivation=%s urgency=%s", tc.motivation, tc.urgency)
	}
}

func TestInitialGoals(t *testing.T) {
	daily, weekly, err := InitialGoals("user-1", day("2026-03-04"), IntakeParams{
		Motivation:              LevelHigh,
		Urgency:                 LevelMedium,
		WeeklyTimeBudgetMinutes: 420,
	})
	assert.NoError(t, err)

	assert.Equal(t, 4, daily.TargetTasks)
	assert.Equal(t, 600, daily.TargetXP)
	assert.Equal(t, 60, daily.TargetFocusMinutes)
	assert.Equal(t, KindDaily, daily.Kind)

	assert.Equal(t, 28, weekly.TargetTasks)
	assert.Equal(t, 420, weekly.TargetFocusMinutes)
	assert.Equal(t, KindWeekly, weekly.Kind)

	_, _, err = InitialGoals("user-1", day("2026-03-04"), IntakeParams{Motivation: "extreme", Urgency: LevelLow})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

// ──────────────────────────────────────────────────────────────────────────────
// Retargeting
// ──────────────────────────────────────────────────────────────────────────────

func finalizedDaily(t *testing.T, anchor string, target, actual int) *Goal {
	t.Helper()
	g := dailyGoal(t, anchor, target)
	g.RecordProgress(actual, actual*50, 0)
	g.Finalize()
	return g
}

func history(t *testing.T, target int, actuals ...int) []*Goal {
	t.Helper()
	goals := make([]*Goal, 0, len(actuals))
	for i, actual := range actuals {
		anchor := day("2026-03-01").AddDate(0, 0, i).Format("2006-01-02")
		goals = append(goals, finalizedDaily(t, anchor, target, actual))
	}
	return goals
}

func TestRetargetInsufficientSample(t *testing.T) {
	_, err := EvaluateRetarget("user-1", history(t, 3, 3, 3), 3)
	assert.ErrorIs(t, err, shared.ErrInsufficientSample)
	assert.True(t, shared.IsInsufficientSample(err))
}

func TestRetargetIncrease(t *testing.T) {
	adj, err := EvaluateRetarget("user-1", history(t, 3, 3, 4, 3, 3, 5, 3, 3), 3)
	assert.NoError(t, err)
	assert.Equal(t, DirectionIncrease, adj.Direction)
	assert.Equal(t, 3, adj.OldTarget)
	assert.Equal(t, 4, adj.NewTarget)
	assert.InDelta(t, 1.0, adj.SuccessRate, 1e-9)
	assert.True(t, adj.Changed())
	assert.NotEmpty(t, adj.Reason)
}

func TestRetargetIncreaseCappedAtMax(t *testing.T) {
	adj, err := EvaluateRetarget("user-1", history(t, 20, 20, 20, 20), MaxDailyTarget)
	assert.NoError(t, err)
	assert.Equal(t, DirectionMaintain, adj.Direction)
	assert.Equal(t, MaxDailyTarget, adj.NewTarget)
}

func TestRetargetDecrease(t *testing.T) {
	adj, err := EvaluateRetarget("user-1", history(t, 5, 1, 0, 2, 5, 0, 1, 0), 5)
	assert.NoError(t, err)
	// 1 of 7 days hit the target: 14% <= 30%
	assert.Equal(t, DirectionDecrease, adj.Direction)
	assert.Equal(t, 4, adj.NewTarget)
}

func TestRetargetDecreaseFlooredAtMin(t *testing.T) {
	adj, err := EvaluateRetarget("user-1", history(t, 1, 0, 0, 0), MinDailyTarget)
	assert.NoError(t, err)
	assert.Equal(t, DirectionMaintain, adj.Direction)
	assert.Equal(t, MinDailyTarget, adj.NewTarget)
}

func TestRetargetMaintainInStableBand(t *testing.T) {
	// 3 of 6 days: 50%, between 30% and 85%
	adj, err := EvaluateRetarget("user-1", history(t, 3, 3, 0, 3, 0, 3, 0), 3)
	assert.NoError(t, err)
	assert.Equal(t, DirectionMaintain, adj.Direction)
	assert.Equal(t, 3, adj.NewTarget)
	assert.False(t, adj.Changed())
}

func TestRetargetBounds(t *testing.T) {
	// Target always within [1, 20], moves by at most 1 per evaluation
	for target := MinDailyTarget; target <= MaxDailyTarget; target++ {
		adj, err := EvaluateRetarget("user-1", history(t, target, target, target, target, target), target)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, adj.NewTarget, MinDailyTarget)
		assert.LessOrEqual(t, adj.NewTarget, MaxDailyTarget)
		assert.LessOrEqual(t, adj.NewTarget-adj.OldTarget, 1)
		assert.GreaterOrEqual(t, adj.NewTarget-adj.OldTarget, -1)
	}
}

func TestRetargetUsesAtMostWindowGoals(t *testing.T) {
	// 7 recent successes followed by 5 old misses: only the window counts
	goals := history(t, 3, 3, 3, 3, 3, 3, 3, 3, 0, 0, 0, 0, 0)
	adj, err := EvaluateRetarget("user-1", goals, 3)
	assert.NoError(t, err)
	assert.Equal(t, DirectionIncrease, adj.Direction)
	assert.Equal(t, 7, adj.SampleSize)
}
