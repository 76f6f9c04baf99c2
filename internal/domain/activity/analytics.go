package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// DefaultConsistencyWindowDays is the default window for the consistency
// metric.
const DefaultConsistencyWindowDays = 7

// ══════════════════════════════════════════════════════════════════════════════
// PURE CALCULATORS
// ══════════════════════════════════════════════════════════════════════════════

// EfficiencyOf returns total XP per total minute over finalized sessions.
// Zero when there are no finalized sessions or no elapsed minutes.
func EfficiencyOf(sessions []*FocusSession) float64 {
	var xp int
	var minutes float64
	for _, s := range sessions {
		if !s.IsFinalized() {
			continue
		}
		xp += s.XPEarned
		minutes += s.DurationMinutes()
	}
	if minutes == 0 {
		return 0
	}
	return float64(xp) / minutes
}

// CompletionRateOf returns completed/created. Zero when nothing was created.
func CompletionRateOf(completed, created int) float64 {
	if created == 0 {
		return 0
	}
	return float64(completed) / float64(created)
}

// ConsistencyOf returns distinct completion days over the window length.
func ConsistencyOf(distinctDays, windowDays int) float64 {
	if windowDays <= 0 {
		return 0
	}
	return float64(distinctDays) / float64(windowDays)
}

// AvgTaskMinutesOf returns the mean time spent per completion record.
func AvgTaskMinutesOf(records []CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range records {
		total += r.TimeSpent
	}
	return total.Minutes() / float64(len(records))
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Analytics computes windowed KPIs from the completion and session history.
// It mutates nothing except append-only KPI snapshots.
type Analytics struct {
	records Repository
	tasks   task.Repository
}

// NewAnalytics creates the analytics service.
func NewAnalytics(records Repository, tasks task.Repository) *Analytics {
	return &Analytics{records: records, tasks: tasks}
}

func window(now time.Time, windowDays int) (time.Time, time.Time, error) {
	if windowDays < 1 {
		return time.Time{}, time.Time{}, shared.ErrInvalidWindow
	}
	end := timeutil.ToDay(now).AddDate(0, 0, 1)
	return end.AddDate(0, 0, -windowDays), end, nil
}

// LearningEfficiency returns XP per focus minute over finished sessions in
// the trailing window.
func (a *Analytics) LearningEfficiency(ctx context.Context, userID string, windowDays int) (float64, error) {
	from, to, err := window(time.Now(), windowDays)
	if err != nil {
		return 0, err
	}
	sessions, err := a.records.ListFinalizedSessions(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	return EfficiencyOf(sessions), nil
}

// CompletionRate returns completed/created over tasks created in the
// trailing window.
func (a *Analytics) CompletionRate(ctx context.Context, userID string, windowDays int) (float64, error) {
	from, to, err := window(time.Now(), windowDays)
	if err != nil {
		return 0, err
	}

	created, err := a.tasks.ListByUser(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	completed, err := a.tasks.CountByStatus(ctx, userID, task.StatusCompleted, from, to)
	if err != nil {
		return 0, err
	}
	return CompletionRateOf(completed, len(created)), nil
}

// Consistency returns the share of window days with at least one completion.
func (a *Analytics) Consistency(ctx context.Context, userID string, windowDays int) (float64, error) {
	if windowDays == 0 {
		windowDays = DefaultConsistencyWindowDays
	}
	from, to, err := window(time.Now(), windowDays)
	if err != nil {
		return 0, err
	}
	days, err := a.records.DistinctCompletionDays(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	return ConsistencyOf(days, windowDays), nil
}

// SnapshotKPIs computes and writes the KPI snapshot for the given day.
// Writing an already-snapshotted (user, day) is a no-op.
func (a *Analytics) SnapshotKPIs(ctx context.Context, userID string, day time.Time) (KPISnapshot, error) {
	from, to, err := window(day, DefaultConsistencyWindowDays)
	if err != nil {
		return KPISnapshot{}, err
	}

	sessions, err := a.records.ListFinalizedSessions(ctx, userID, from, to)
	if err != nil {
		return KPISnapshot{}, err
	}
	records, err := a.records.ListCompletions(ctx, userID, from, to)
	if err != nil {
		return KPISnapshot{}, err
	}
	created, err := a.tasks.ListByUser(ctx, userID, from, to)
	if err != nil {
		return KPISnapshot{}, err
	}
	completed, err := a.tasks.CountByStatus(ctx, userID, task.StatusCompleted, from, to)
	if err != nil {
		return KPISnapshot{}, err
	}
	distinctDays, err := a.records.DistinctCompletionDays(ctx, userID, from, to)
	if err != nil {
		return KPISnapshot{}, err
	}

	snap, err := NewKPISnapshot(
		userID,
		day,
		EfficiencyOf(sessions),
		CompletionRateOf(completed, len(created)),
		AvgTaskMinutesOf(records),
		ConsistencyOf(distinctDays, DefaultConsistencyWindowDays),
	)
	if err != nil {
		return KPISnapshot{}, err
	}

	if err := a.records.WriteKPISnapshot(ctx, snap); err != nil {
		return KPISnapshot{}, err
	}
	return snap, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INSIGHTS
// ══════════════════════════════════════════════════════════════════════════════

// InsightInputs are the aggregates the insight generator reads. Insights are
// advisory text only and never feed back into engine control flow.
type InsightInputs struct {
	CompletionsByDifficulty map[task.Difficulty]int
	SolutionViewRate        float64 // share of completions with the solution viewed
	AvgTaskMinutes          float64
	Consistency             float64
	QualityCounts           map[Quality]int
}

// GenerateInsights produces qualitative observations about recent behavior.
func GenerateInsights(in InsightInputs) []string {
	var insights []string

	total := 0
	maxCount, maxTier := 0, task.Difficulty("")
	for _, d := range task.AllDifficulties() {
		c := in.CompletionsByDifficulty[d]
		total += c
		if c > maxCount {
			maxCount, maxTier = c, d
		}
	}
	if total >= 5 && float64(maxCount)/float64(total) >= 0.7 {
		insights = append(insights,
			fmt.Sprintf("Most of your completions (%d of %d) are %s tasks. Mixing in other tiers builds range.", maxCount, total, maxTier))
	}

	if total >= 5 && in.SolutionViewRate >= 0.5 {
		insights = append(insights,
			fmt.Sprintf("You viewed the worked solution on %.0f%% of completed tasks. Try an unaided attempt first.", in.SolutionViewRate*100))
	}

	if in.Consistency >= 0.85 {
		insights = append(insights, "You completed tasks on almost every day this week. Your routine is holding.")
	} else if total > 0 && in.Consistency <= 0.3 {
		insights = append(insights, "Completions cluster on a few days. Shorter daily sessions tend to stick better.")
	}

	if in.QualityCounts[QualityPoor] >= 3 {
		insights = append(insights, "Several recent focus sessions scored poorly. Consider shorter planned blocks.")
	}

	return insights
}
