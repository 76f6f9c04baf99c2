// Package profile contains the UserProfile aggregate: the progress ledger
// (cumulative XP, day streak) and the persistent reward effects applied by
// the achievement engine (XP multiplier, cost discounts, feature unlocks).
package profile

import (
	"math"
	"strings"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// UserID identifies a user.
type UserID string

// IsValid checks that the ID is non-empty.
func (id UserID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

func (id UserID) String() string {
	return string(id)
}

// XP is a cumulative experience point balance. Never negative.
type XP int

// IsValid checks that the balance is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Streak tracks consecutive calendar days with qualifying activity.
type Streak struct {
	Current          int
	Longest          int
	LastActivityDate time.Time // zero until first activity, truncated to a UTC day
}

// StreakOutcome describes the result of a single streak touch.
type StreakOutcome int

const (
	// StreakUnchanged - a repeated activity on the same calendar day.
	StreakUnchanged StreakOutcome = iota
	// StreakExtended - activity on the day immediately after the last one.
	StreakExtended
	// StreakReset - a gap, or the first-ever activity.
	StreakReset
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// UserProfile is the per-user progress state. Created once at onboarding,
// never deleted, mutated only by the progress ledger operations below and by
// achievement reward application.
type UserProfile struct {
	ID      UserID
	TotalXP XP
	Streak  Streak

	// Reward state. Multiplier is replaced by xp_multiplier rewards
	// (last-applied-wins); cost discounts compound multiplicatively per
	// named action; feature flags accumulate.
	XPMultiplier  float64
	CostModifiers map[string]float64 // action name -> multiplier in (0, 1]
	Features      map[string]bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserProfile creates a fresh profile with zero progress.
func NewUserProfile(id UserID) (*UserProfile, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	now := time.Now()
	return &UserProfile{
		ID:            id,
		TotalXP:       0,
		XPMultiplier:  1.0,
		CostModifiers: make(map[string]float64),
		Features:      make(map[string]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Progress ledger
// ──────────────────────────────────────────────────────────────────────────────

// ApplyXP adds round(delta × multiplier) to the cumulative XP and returns the
// credited amount and the new total. Negative deltas model spends; the result
// is clamped so the balance never drops below zero. Affordability checks are
// the caller's responsibility (see CanAfford).
func (p *UserProfile) ApplyXP(delta int, multiplier float64) (credited int, newTotal XP) {
	if multiplier <= 0 {
		multiplier = 1.0
	}

	credited = int(math.Round(float64(delta) * multiplier))

	total := int(p.TotalXP) + credited
	if total < 0 {
		credited = -int(p.TotalXP)
		total = 0
	}

	p.TotalXP = XP(total)
	p.UpdatedAt = time.Now()
	return credited, p.TotalXP
}

// CanAfford reports whether the balance covers the given cost.
func (p *UserProfile) CanAfford(cost int) bool {
	return cost >= 0 && int(p.TotalXP) >= cost
}

// Spend deducts cost from the balance after an affordability check.
// Returns InsufficientBalance when the balance does not cover the cost.
func (p *UserProfile) Spend(cost int) (XP, error) {
	if cost < 0 {
		return p.TotalXP, shared.NewDomainError("profile", "Spend", shared.ErrNegativeValue, "cost cannot be negative")
	}
	if !p.CanAfford(cost) {
		return p.TotalXP, shared.ErrCannotAfford
	}

	_, total := p.ApplyXP(-cost, 1.0)
	return total, nil
}

// TouchStreak records qualifying activity on the given date and returns what
// happened. Calendar dates only: repeated activity within one day is a no-op,
// activity exactly one day after the last extends the streak, anything else
// resets it to 1. The longest streak is a non-decreasing running max and the
// last-activity date is always advanced.
func (p *UserProfile) TouchStreak(activityDate time.Time) StreakOutcome {
	day := timeutil.ToDay(activityDate)
	outcome := StreakReset

	switch {
	case p.Streak.LastActivityDate.IsZero():
		p.Streak.Current = 1
	case timeutil.IsSameDay(p.Streak.LastActivityDate, day):
		return StreakUnchanged
	case timeutil.IsNextDay(p.Streak.LastActivityDate, day):
		p.Streak.Current++
		outcome = StreakExtended
	default:
		p.Streak.Current = 1
	}

	if p.Streak.Current > p.Streak.Longest {
		p.Streak.Longest = p.Streak.Current
	}
	p.Streak.LastActivityDate = day
	p.UpdatedAt = time.Now()
	return outcome
}

// ──────────────────────────────────────────────────────────────────────────────
// Reward effects
// ──────────────────────────────────────────────────────────────────────────────

// SetMultiplier replaces the XP multiplier. Last applied reward wins.
func (p *UserProfile) SetMultiplier(factor float64) {
	if factor < 1.0 {
		factor = 1.0
	}
	p.XPMultiplier = factor
	p.UpdatedAt = time.Now()
}

// ApplyCostDiscount multiplicatively reduces the named action's cost by the
// given percentage. Discounts compound: two 20% discounts leave 64% of the
// original cost.
func (p *UserProfile) ApplyCostDiscount(action string, percent float64) {
	if percent <= 0 || percent >= 100 {
		return
	}
	if p.CostModifiers == nil {
		p.CostModifiers = make(map[string]float64)
	}

	current, ok := p.CostModifiers[action]
	if !ok {
		current = 1.0
	}
	p.CostModifiers[action] = current * (1.0 - percent/100.0)
	p.UpdatedAt = time.Now()
}

// CostOf returns the effective cost of a named action after discounts.
func (p *UserProfile) CostOf(action string, baseCost int) int {
	modifier, ok := p.CostModifiers[action]
	if !ok {
		return baseCost
	}
	return int(math.Round(float64(baseCost) * modifier))
}

// UnlockFeature adds a flag to the unlocked-feature set.
func (p *UserProfile) UnlockFeature(flag string) {
	if flag == "" {
		return
	}
	if p.Features == nil {
		p.Features = make(map[string]bool)
	}
	p.Features[flag] = true
	p.UpdatedAt = time.Now()
}

// HasFeature reports whether the flag has been unlocked.
func (p *UserProfile) HasFeature(flag string) bool {
	return p.Features[flag]
}
