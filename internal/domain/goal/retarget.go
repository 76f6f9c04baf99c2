package goal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTIVE RETARGETING
// ══════════════════════════════════════════════════════════════════════════════

// Retargeting policy constants.
const (
	// HistoryWindow is how many recent finalized daily goals are examined.
	HistoryWindow = 7

	// MinSample is the minimum number of finalized daily goals required
	// before the policy adjusts anything.
	MinSample = 3

	// MinDailyTarget and MaxDailyTarget bound the daily task target.
	MinDailyTarget = 1
	MaxDailyTarget = 20

	// IncreaseRate and DecreaseRate are the success-rate cutoffs.
	IncreaseRate = 0.85
	DecreaseRate = 0.3
)

// Direction is the outcome of one retargeting evaluation.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionMaintain Direction = "maintain"
)

// Adjustment is the logged record of one retargeting evaluation, including
// "maintain" evaluations. Only increase/decrease need be surfaced to callers.
type Adjustment struct {
	ID          string
	UserID      string
	Direction   Direction
	OldTarget   int
	NewTarget   int
	SuccessRate float64
	SampleSize  int
	Reason      string
	At          time.Time
}

// Changed reports whether the evaluation actually moved the target.
func (a Adjustment) Changed() bool {
	return a.Direction != DirectionMaintain
}

// EvaluateRetarget examines the most recent finalized daily goals (newest
// first, at most HistoryWindow are considered) and decides the next daily
// target. The target moves by at most 1 per evaluation and always stays
// within [MinDailyTarget, MaxDailyTarget]. With fewer than MinSample
// finalized goals the policy refuses to adjust and returns
// ErrInsufficientSample - a defined no-op, not a failure.
func EvaluateRetarget(userID string, history []*Goal, currentTarget int) (Adjustment, error) {
	if len(history) > HistoryWindow {
		history = history[:HistoryWindow]
	}
	if len(history) < MinSample {
		return Adjustment{}, shared.ErrNotEnoughHistory
	}

	succeeded := 0
	for _, g := range history {
		if g.ActualTasks >= g.TargetTasks {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(history))

	adj := Adjustment{
		ID:          uuid.New().String(),
		UserID:      userID,
		OldTarget:   currentTarget,
		NewTarget:   currentTarget,
		SuccessRate: rate,
		SampleSize:  len(history),
		At:          time.Now(),
	}

	switch {
	case rate >= IncreaseRate && currentTarget < MaxDailyTarget:
		adj.Direction = DirectionIncrease
		adj.NewTarget = currentTarget + 1
		adj.Reason = fmt.Sprintf("hit the daily target in %d of the last %d days (%.0f%%), raising target from %d to %d",
			succeeded, len(history), rate*100, currentTarget, adj.NewTarget)
	case rate >= IncreaseRate:
		adj.Direction = DirectionMaintain
		adj.Reason = fmt.Sprintf("success rate %.0f%% warrants an increase but the target is already at the cap of %d",
			rate*100, MaxDailyTarget)
	case rate <= DecreaseRate && currentTarget > MinDailyTarget:
		adj.Direction = DirectionDecrease
		adj.NewTarget = currentTarget - 1
		adj.Reason = fmt.Sprintf("hit the daily target in only %d of the last %d days (%.0f%%), lowering target from %d to %d",
			succeeded, len(history), rate*100, currentTarget, adj.NewTarget)
	case rate <= DecreaseRate:
		adj.Direction = DirectionMaintain
		adj.Reason = fmt.Sprintf("success rate %.0f%% warrants a decrease but the target is already at the floor of %d",
			rate*100, MinDailyTarget)
	default:
		adj.Direction = DirectionMaintain
		adj.Reason = fmt.Sprintf("success rate %.0f%% is within the stable band, keeping target at %d",
			rate*100, currentTarget)
	}

	return adj, nil
}
