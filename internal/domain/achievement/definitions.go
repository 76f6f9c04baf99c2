package achievement

import "github.com/learnquest/progress-engine/internal/domain/task"

// Action names used by cost-discount rewards.
const (
	ActionReroll = "reroll"
)

// Feature flags used by feature-unlock rewards.
const (
	FeatureDailyInsights = "daily_insights"
	FeatureFocusReport   = "focus_report"
	FeatureWeeklyDigest  = "weekly_digest"
)

// DefaultDefinitions is the standard achievement table.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          "first_steps",
			Name:        "First Steps",
			Description: "Complete your first task",
			Predicate: func(s StatsSnapshot) bool {
				return s.TasksCompleted >= 1
			},
			Reward: FeatureUnlock(FeatureDailyInsights),
		},
		{
			ID:          "week_streak",
			Name:        "Full Week",
			Description: "Learn seven days in a row",
			Predicate: func(s StatsSnapshot) bool {
				return s.CurrentStreak >= 7 || s.LongestStreak >= 7
			},
			Reward: XPMultiplier(1.1),
		},
		{
			ID:          "month_streak",
			Name:        "Iron Habit",
			Description: "Learn thirty days in a row",
			Predicate: func(s StatsSnapshot) bool {
				return s.CurrentStreak >= 30 || s.LongestStreak >= 30
			},
			Reward: XPMultiplier(1.25),
		},
		{
			ID:          "xp_1000",
			Name:        "Kilopoint",
			Description: "Accumulate 1,000 XP",
			Predicate: func(s StatsSnapshot) bool {
				return s.TotalXP >= 1000
			},
			Reward: CostDiscount(ActionReroll, 10),
		},
		{
			ID:          "xp_10000",
			Name:        "Ten Thousand Club",
			Description: "Accumulate 10,000 XP",
			Predicate: func(s StatsSnapshot) bool {
				return s.TotalXP >= 10000
			},
			Reward: XPMultiplier(1.5),
		},
		{
			ID:          "hard_hitter",
			Name:        "Hard Hitter",
			Description: "Complete ten hard tasks",
			Predicate: func(s StatsSnapshot) bool {
				return s.CompletionsByDifficulty[task.DifficultyHard] >= 10
			},
			Reward: CostDiscount(ActionReroll, 20),
		},
		{
			ID:          "balanced_difficulty",
			Name:        "Well Rounded",
			Description: "Keep your completions spread across all difficulty tiers",
			Predicate: func(s StatsSnapshot) bool {
				return s.IsBalancedAcrossDifficulties()
			},
			Reward: CostDiscount(ActionReroll, 25),
		},
		{
			ID:          "deep_focus",
			Name:        "Deep Focus",
			Description: "Finish five excellent focus sessions",
			Predicate: func(s StatsSnapshot) bool {
				return s.SessionQualityCounts["excellent"] >= 5
			},
			Reward: FeatureUnlock(FeatureFocusReport),
		},
		{
			ID:          "efficient_learner",
			Name:        "Efficient Learner",
			Description: "Sustain a learning efficiency of 12 XP per minute",
			Predicate: func(s StatsSnapshot) bool {
				return s.LearningEfficiency >= 12
			},
			Reward: FeatureUnlock(FeatureWeeklyDigest),
		},
	}
}
