package profile

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

func newProfile(t *testing.T) *UserProfile {
	t.Helper()
	p, err := NewUserProfile("user-1")
	assert.NoError(t, err)
	return p
}

func TestNewUserProfile(t *testing.T) {
	p := newProfile(t)
	assert.Equal(t, XP(0), p.TotalXP)
	assert.Equal(t, 1.0, p.XPMultiplier)
	assert.Equal(t, 0, p.Streak.Current)

	_, err := NewUserProfile("  ")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestApplyXP(t *testing.T) {
	p := newProfile(t)

	credited, total := p.ApplyXP(50, 1.0)
	assert.Equal(t, 50, credited)
	assert.Equal(t, XP(50), total)

	// Multiplier rounds to nearest integer
	credited, total = p.ApplyXP(50, 1.5)
	assert.Equal(t, 75, credited)
	assert.Equal(t, XP(125), total)

	// Graded fraction: 300 * 0.55
	credited, _ = p.ApplyXP(300, 0.55)
	assert.Equal(t, 165, credited)
}

func TestApplyXPClampsAtZero(t *testing.T) {
	p := newProfile(t)
	p.ApplyXP(100, 1.0)

	credited, total := p.ApplyXP(-250, 1.0)
	assert.Equal(t, -100, credited)
	assert.Equal(t, XP(0), total)
	assert.True(t, p.TotalXP.IsValid())
}

func TestSpend(t *testing.T) {
	p := newProfile(t)
	p.ApplyXP(100, 1.0)

	total, err := p.Spend(40)
	assert.NoError(t, err)
	assert.Equal(t, XP(60), total)

	_, err = p.Spend(61)
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)
	assert.True(t, shared.IsInsufficientBalance(err))
	assert.Equal(t, XP(60), p.TotalXP)

	_, err = p.Spend(-5)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestTouchStreakFirstActivity(t *testing.T) {
	p := newProfile(t)

	outcome := p.TouchStreak(day("2026-03-01"))
	assert.Equal(t, StreakReset, outcome)
	assert.Equal(t, 1, p.Streak.Current)
	assert.Equal(t, 1, p.Streak.Longest)
	assert.Equal(t, day("2026-03-01"), p.Streak.LastActivityDate)
}

func TestTouchStreakSameDayIsNoop(t *testing.T) {
	p := newProfile(t)
	p.TouchStreak(day("2026-03-01"))

	outcome := p.TouchStreak(day("2026-03-01").Add(8 * time.Hour))
	assert.Equal(t, StreakUnchanged, outcome)
	assert.Equal(t, 1, p.Streak.Current)
}

func TestTouchStreakConsecutiveDays(t *testing.T) {
	p := newProfile(t)

	p.TouchStreak(day("2026-03-01"))
	outcome := p.TouchStreak(day("2026-03-02"))
	assert.Equal(t, StreakExtended, outcome)
	assert.Equal(t, 2, p.Streak.Current)

	p.TouchStreak(day("2026-03-03"))
	assert.Equal(t, 3, p.Streak.Current)
	assert.Equal(t, 3, p.Streak.Longest)
}

func TestTouchStreakGapResets(t *testing.T) {
	p := newProfile(t)
	p.TouchStreak(day("2026-03-01"))
	p.TouchStreak(day("2026-03-02"))
	p.TouchStreak(day("2026-03-03"))

	outcome := p.TouchStreak(day("2026-03-07"))
	assert.Equal(t, StreakReset, outcome)
	assert.Equal(t, 1, p.Streak.Current)
	// Longest streak is a running max and never decreases
	assert.Equal(t, 3, p.Streak.Longest)
}

func TestTouchStreakLongestIsMonotonic(t *testing.T) {
	p := newProfile(t)
	dates := []string{
		"2026-03-01", "2026-03-02", "2026-03-05",
		"2026-03-06", "2026-03-07", "2026-03-08",
	}

	prevLongest := 0
	for _, d := range dates {
		p.TouchStreak(day(d))
		assert.GreaterOrEqual(t, p.Streak.Longest, prevLongest)
		assert.GreaterOrEqual(t, p.Streak.Longest, p.Streak.Current)
		prevLongest = p.Streak.Longest
	}
	assert.Equal(t, 4, p.Streak.Current)
	assert.Equal(t, 4, p.Streak.Longest)
}

func TestSetMultiplierReplaces(t *testing.T) {
	p := newProfile(t)

	p.SetMultiplier(1.5)
	assert.Equal(t, 1.5, p.XPMultiplier)

	// Last applied wins, no stacking
	p.SetMultiplier(1.2)
	assert.Equal(t, 1.2, p.XPMultiplier)

	p.SetMultiplier(0.5)
	assert.Equal(t, 1.0, p.XPMultiplier)
}

func TestCostDiscountCompounds(t *testing.T) {
	p := newProfile(t)
	assert.Equal(t, 100, p.CostOf("reroll", 100))

	p.ApplyCostDiscount("reroll", 20)
	assert.Equal(t, 80, p.CostOf("reroll", 100))

	p.ApplyCostDiscount("reroll", 20)
	assert.Equal(t, 64, p.CostOf("reroll", 100))

	// Unrelated action is untouched
	assert.Equal(t, 100, p.CostOf("hint", 100))
}

func TestUnlockFeature(t *testing.T) {
	p := newProfile(t)
	assert.False(t, p.HasFeature("weekly_report"))

	p.UnlockFeature("weekly_report")
	assert.True(t, p.HasFeature("weekly_report"))

	p.UnlockFeature("")
	assert.False(t, p.HasFeature(""))
}
