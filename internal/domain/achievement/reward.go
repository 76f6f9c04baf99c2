// Package achievement contains the achievement engine: a declarative table
// of predicates over aggregated user stats, tagged reward variants, and
// exactly-once awarding.
package achievement

import (
	"fmt"

	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// RewardKind tags the reward variant.
type RewardKind string

const (
	// RewardXPMultiplier replaces the profile's XP multiplier (last wins).
	RewardXPMultiplier RewardKind = "xp_multiplier"

	// RewardCostDiscount multiplicatively reduces a named action cost,
	// compounding with prior discounts.
	RewardCostDiscount RewardKind = "cost_discount"

	// RewardFeatureUnlock adds a flag to the unlocked-feature set.
	RewardFeatureUnlock RewardKind = "feature_unlock"
)

// Reward is a tagged-variant reward payload. Exactly the fields of the
// tagged kind are meaningful.
type Reward struct {
	Kind RewardKind

	// RewardXPMultiplier
	Factor float64

	// RewardCostDiscount
	Action  string
	Percent float64

	// RewardFeatureUnlock
	Feature string
}

// XPMultiplier builds a multiplier reward.
func XPMultiplier(factor float64) Reward {
	return Reward{Kind: RewardXPMultiplier, Factor: factor}
}

// CostDiscount builds a discount reward on a named action.
func CostDiscount(action string, percent float64) Reward {
	return Reward{Kind: RewardCostDiscount, Action: action, Percent: percent}
}

// FeatureUnlock builds a feature-unlock reward.
func FeatureUnlock(feature string) Reward {
	return Reward{Kind: RewardFeatureUnlock, Feature: feature}
}

// Apply mutates the profile with the reward effect.
func (r Reward) Apply(p *profile.UserProfile) error {
	switch r.Kind {
	case RewardXPMultiplier:
		p.SetMultiplier(r.Factor)
	case RewardCostDiscount:
		p.ApplyCostDiscount(r.Action, r.Percent)
	case RewardFeatureUnlock:
		p.UnlockFeature(r.Feature)
	default:
		return shared.WrapError("achievement", "Apply", shared.ErrInvalidInput,
			fmt.Sprintf("unknown reward kind %q", r.Kind), nil)
	}
	return nil
}

// Describe returns a short human-readable reward summary.
func (r Reward) Describe() string {
	switch r.Kind {
	case RewardXPMultiplier:
		return fmt.Sprintf("XP multiplier set to %.2fx", r.Factor)
	case RewardCostDiscount:
		return fmt.Sprintf("%.0f%% discount on %s", r.Percent, r.Action)
	case RewardFeatureUnlock:
		return fmt.Sprintf("unlocked %s", r.Feature)
	default:
		return "unknown reward"
	}
}
