package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/task"
)

func TestBalancedDifficultyPredicate(t *testing.T) {
	cases := []struct {
		name   string
		counts map[task.Difficulty]int
		want   bool
	}{
		{
			name: "equal counts across all tiers",
			counts: map[task.Difficulty]int{
				task.DifficultyEasy: 2, task.DifficultyMedium: 2, task.DifficultyHard: 2,
			},
			want: true,
		},
		{
			name: "ratio exactly at the bound",
			counts: map[task.Difficulty]int{
				task.DifficultyEasy: 4, task.DifficultyMedium: 2, task.DifficultyHard: 3,
			},
			want: true,
		},
		{
			name: "skewed toward one tier",
			counts: map[task.Difficulty]int{
				task.DifficultyEasy: 10, task.DifficultyMedium: 4, task.DifficultyHard: 1,
			},
			want: false,
		},
		{
			name: "missing a tier",
			counts: map[task.Difficulty]int{
				task.DifficultyEasy: 5, task.DifficultyMedium: 5,
			},
			want: false,
		},
		{
			name:   "no completions",
			counts: map[task.Difficulty]int{},
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := StatsSnapshot{CompletionsByDifficulty: tc.counts}
			assert.Equal(t, tc.want, s.IsBalancedAcrossDifficulties())
		})
	}
}

func TestEvaluateReturnsNewlySatisfiedOnly(t *testing.T) {
	engine := NewEngine(DefaultDefinitions())
	stats := StatsSnapshot{
		TotalXP:        1200,
		CurrentStreak:  7,
		TasksCompleted: 12,
	}

	newly := engine.Evaluate(stats, map[string]bool{})
	ids := make(map[string]bool)
	for _, d := range newly {
		ids[d.ID] = true
	}
	assert.True(t, ids["first_steps"])
	assert.True(t, ids["week_streak"])
	assert.True(t, ids["xp_1000"])
	assert.False(t, ids["xp_10000"])
	assert.False(t, ids["month_streak"])
}

func TestEvaluateExactlyOnce(t *testing.T) {
	engine := NewEngine(DefaultDefinitions())
	stats := StatsSnapshot{TotalXP: 1200, TasksCompleted: 3}

	first := engine.Evaluate(stats, map[string]bool{})
	assert.NotEmpty(t, first)

	earned := make(map[string]bool)
	for _, d := range first {
		earned[d.ID] = true
	}

	// Unchanged satisfying state, repeated call: nothing new
	second := engine.Evaluate(stats, earned)
	assert.Empty(t, second)
}

func TestEvaluateIndependentAwards(t *testing.T) {
	engine := NewEngine(DefaultDefinitions())
	stats := StatsSnapshot{
		TotalXP:       15000,
		CurrentStreak: 31,
		LongestStreak: 31,
		CompletionsByDifficulty: map[task.Difficulty]int{
			task.DifficultyEasy: 2, task.DifficultyMedium: 2, task.DifficultyHard: 2,
		},
		TasksCompleted: 6,
	}

	newly := engine.Evaluate(stats, map[string]bool{})
	assert.GreaterOrEqual(t, len(newly), 5)
}

func TestRewardApplyMultiplierReplaces(t *testing.T) {
	p, err := profile.NewUserProfile("user-1")
	assert.NoError(t, err)

	assert.NoError(t, XPMultiplier(1.25).Apply(p))
	assert.Equal(t, 1.25, p.XPMultiplier)

	assert.NoError(t, XPMultiplier(1.1).Apply(p))
	assert.Equal(t, 1.1, p.XPMultiplier)
}

func TestRewardApplyCostDiscountCompounds(t *testing.T) {
	p, err := profile.NewUserProfile("user-1")
	assert.NoError(t, err)

	assert.NoError(t, CostDiscount(ActionReroll, 10).Apply(p))
	assert.NoError(t, CostDiscount(ActionReroll, 20).Apply(p))
	assert.Equal(t, 72, p.CostOf(ActionReroll, 100))
}

func TestRewardApplyFeatureUnlock(t *testing.T) {
	p, err := profile.NewUserProfile("user-1")
	assert.NoError(t, err)

	assert.NoError(t, FeatureUnlock(FeatureFocusReport).Apply(p))
	assert.True(t, p.HasFeature(FeatureFocusReport))
}

func TestRewardApplyUnknownKind(t *testing.T) {
	p, err := profile.NewUserProfile("user-1")
	assert.NoError(t, err)

	err = Reward{Kind: "mystery"}.Apply(p)
	assert.Error(t, err)
}

func TestDefinitionTableIsWellFormed(t *testing.T) {
	engine := NewEngine(DefaultDefinitions())
	seen := make(map[string]bool)
	for _, d := range engine.Definitions() {
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.Name)
		assert.NotNil(t, d.Predicate)
		assert.False(t, seen[d.ID], "duplicate achievement id %s", d.ID)
		seen[d.ID] = true
	}

	_, ok := engine.Find("balanced_difficulty")
	assert.True(t, ok)
	_, ok = engine.Find("nope")
	assert.False(t, ok)
}
