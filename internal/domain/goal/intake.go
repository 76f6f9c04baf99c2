package goal

import (
	"time"

	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING INTAKE
// ══════════════════════════════════════════════════════════════════════════════

// Level is a qualitative intake answer.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// IsValid checks that the level is known.
func (l Level) IsValid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// IntakeParams are the qualitative onboarding inputs the initial targets are
// derived from.
type IntakeParams struct {
	Motivation Level
	Urgency    Level
	// WeeklyTimeBudgetMinutes is the user's declared weekly study budget.
	WeeklyTimeBudgetMinutes int
}

// Validate checks the intake answers.
func (p IntakeParams) Validate() error {
	if !p.Motivation.IsValid() {
		return shared.NewDomainError("goal", "Intake", shared.ErrInvalidInput, "invalid motivation level")
	}
	if !p.Urgency.IsValid() {
		return shared.NewDomainError("goal", "Intake", shared.ErrInvalidInput, "invalid urgency level")
	}
	if p.WeeklyTimeBudgetMinutes < 0 {
		return shared.NewDomainError("goal", "Intake", shared.ErrNegativeValue, "weekly time budget cannot be negative")
	}
	return nil
}

// Initial daily target bounds.
const (
	initialTargetMin = 2
	initialTargetMax = 5
)

// xpPerTargetTask is the planning value used to derive target XP from a task
// target. Matches the medium tier's base XP.
const xpPerTargetTask = 150

// InitialDailyTarget derives the starting daily task target from the intake:
// higher motivation and urgency push it up, lower push it down, always within
// [2, 5].
func InitialDailyTarget(p IntakeParams) int {
	target := 3

	switch p.Motivation {
	case LevelHigh:
		target++
	case LevelLow:
		target--
	}
	switch p.Urgency {
	case LevelHigh:
		target++
	case LevelLow:
		target--
	}

	if target < initialTargetMin {
		target = initialTargetMin
	}
	if target > initialTargetMax {
		target = initialTargetMax
	}
	return target
}

// InitialGoals creates the onboarding goal pair: a daily goal for today and a
// weekly goal for the enclosing calendar week, with XP and focus targets
// derived proportionally from the task target and the weekly time budget.
func InitialGoals(userID string, anchor time.Time, p IntakeParams) (*Goal, *Goal, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	dailyTasks := InitialDailyTarget(p)
	dailyFocus := p.WeeklyTimeBudgetMinutes / 7

	daily, err := NewDailyGoal(userID, anchor, Targets{
		Tasks:        dailyTasks,
		XP:           dailyTasks * xpPerTargetTask,
		FocusMinutes: dailyFocus,
	})
	if err != nil {
		return nil, nil, err
	}

	weekly, err := NewWeeklyGoal(userID, anchor, Targets{
		Tasks:        dailyTasks * 7,
		XP:           dailyTasks * xpPerTargetTask * 7,
		FocusMinutes: p.WeeklyTimeBudgetMinutes,
	})
	if err != nil {
		return nil, nil, err
	}

	return daily, weekly, nil
}
