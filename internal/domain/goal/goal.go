// Package goal contains the goal manager domain: daily and weekly goal
// periods, progress accumulation, finalization, and the adaptive
// retargeting policy.
package goal

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND & STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the goal period kind.
type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// IsValid checks that the kind is known.
func (k Kind) IsValid() bool {
	return k == KindDaily || k == KindWeekly
}

// Status is the goal state. Transition happens only at finalize.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the goal has been finalized.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CompletionThreshold is the completion rate at and above which a finalized
// goal counts as completed.
const CompletionThreshold = 0.8

// ══════════════════════════════════════════════════════════════════════════════
// GOAL
// ══════════════════════════════════════════════════════════════════════════════

// Goal is one user's target for a bounded period. The period is half-open
// [PeriodStart, PeriodEnd): a daily goal for March 1 spans
// [2026-03-01, 2026-03-02). At most one active goal exists per (user, kind)
// whose period contains today.
type Goal struct {
	ID     string
	UserID string
	Kind   Kind

	PeriodStart time.Time // UTC day
	PeriodEnd   time.Time // UTC day, exclusive

	TargetTasks        int
	TargetXP           int
	TargetFocusMinutes int

	ActualTasks        int
	ActualXP           int
	ActualFocusMinutes int

	Status         Status
	CompletionRate float64 // set at finalize

	CreatedAt   time.Time
	FinalizedAt *time.Time
}

// Targets bundles the three target quantities of a goal.
type Targets struct {
	Tasks        int
	XP           int
	FocusMinutes int
}

// NewDailyGoal creates an active daily goal for the day containing anchor.
func NewDailyGoal(userID string, anchor time.Time, targets Targets) (*Goal, error) {
	start := timeutil.ToDay(anchor)
	return newGoal(userID, KindDaily, start, start.AddDate(0, 0, 1), targets)
}

// NewWeeklyGoal creates an active weekly goal for the calendar week
// containing anchor.
func NewWeeklyGoal(userID string, anchor time.Time, targets Targets) (*Goal, error) {
	start := timeutil.StartOfWeek(anchor)
	return newGoal(userID, KindWeekly, start, start.AddDate(0, 0, 7), targets)
}

func newGoal(userID string, kind Kind, start, end time.Time, targets Targets) (*Goal, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if !end.After(start) {
		return nil, shared.ErrInvalidGoalPeriod
	}
	if targets.Tasks < 1 {
		return nil, shared.ErrInvalidTargetCount
	}

	return &Goal{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Kind:               kind,
		PeriodStart:        start,
		PeriodEnd:          end,
		TargetTasks:        targets.Tasks,
		TargetXP:           targets.XP,
		TargetFocusMinutes: targets.FocusMinutes,
		Status:             StatusActive,
		CreatedAt:          time.Now(),
	}, nil
}

// Contains reports whether the given day falls inside the goal period.
func (g *Goal) Contains(day time.Time) bool {
	d := timeutil.ToDay(day)
	return !d.Before(g.PeriodStart) && d.Before(g.PeriodEnd)
}

// Expired reports whether the period ended before the given day, i.e. the
// goal is due for finalization.
func (g *Goal) Expired(today time.Time) bool {
	return !timeutil.ToDay(today).Before(g.PeriodEnd)
}

// RecordProgress adds to the running actuals. The caller guarantees
// exactly-once invocation per underlying event; no deduplication happens
// here. Fails once the goal is finalized.
func (g *Goal) RecordProgress(taskDelta, xpDelta, focusMinutesDelta int) error {
	if g.Status.IsTerminal() {
		return shared.ErrGoalFinalized
	}

	g.ActualTasks += taskDelta
	g.ActualXP += xpDelta
	g.ActualFocusMinutes += focusMinutesDelta
	return nil
}

// TargetReached reports whether the task target has been met.
func (g *Goal) TargetReached() bool {
	return g.ActualTasks >= g.TargetTasks
}

// Finalize freezes the goal: computes the completion rate and sets the
// terminal status. Calling it on an already-terminal goal is a no-op, not an
// error, so retried finalization stays idempotent.
func (g *Goal) Finalize() {
	if g.Status.IsTerminal() {
		return
	}

	target := g.TargetTasks
	if target < 1 {
		target = 1
	}
	g.CompletionRate = float64(g.ActualTasks) / float64(target)

	if g.CompletionRate >= CompletionThreshold {
		g.Status = StatusCompleted
	} else {
		g.Status = StatusFailed
	}

	now := time.Now()
	g.FinalizedAt = &now
}

// NextPeriod creates the active goal for the period following this one,
// carrying the target over. The retargeting policy may adjust the target
// afterwards. Normally the successor starts where this period ends; when
// finalization runs so late that the immediate successor has itself already
// ended by asOf, the successor is anchored at the period containing asOf and
// the empty gap periods are skipped.
func (g *Goal) NextPeriod(asOf time.Time) (*Goal, error) {
	targets := Targets{
		Tasks:        g.TargetTasks,
		XP:           g.TargetXP,
		FocusMinutes: g.TargetFocusMinutes,
	}

	start := g.PeriodEnd
	end := g.PeriodEnd.Add(g.PeriodEnd.Sub(g.PeriodStart))
	if day := timeutil.ToDay(asOf); !day.Before(end) {
		switch g.Kind {
		case KindWeekly:
			start = timeutil.StartOfWeek(day)
			end = start.AddDate(0, 0, 7)
		default:
			start = day
			end = start.AddDate(0, 0, 1)
		}
	}
	return newGoal(g.UserID, g.Kind, start, end, targets)
}
