// Package activity contains the analytics side of the engine: the
// append-only completion ledger, focus sessions with derived quality,
// write-once KPI snapshots, and windowed metric computation.
package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUALITY
// ══════════════════════════════════════════════════════════════════════════════

// Quality is the derived tier of a finalized focus session.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityAverage   Quality = "average"
	QualityPoor      Quality = "poor"
)

// Quality efficiency cutoffs in XP per minute.
const (
	excellentEfficiency = 15.0
	goodEfficiency      = 10.0
	averageEfficiency   = 5.0
)

// QualityFor derives the tier from efficiency and interruption count.
// Excellent additionally requires an uninterrupted session.
func QualityFor(efficiency float64, interruptions int) Quality {
	switch {
	case efficiency >= excellentEfficiency && interruptions == 0:
		return QualityExcellent
	case efficiency >= goodEfficiency:
		return QualityGood
	case efficiency >= averageEfficiency:
		return QualityAverage
	default:
		return QualityPoor
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FOCUS SESSION
// ══════════════════════════════════════════════════════════════════════════════

// FocusSession is one timed study block. The timer itself is owned by the
// caller; the engine records the final outcome once at finalize.
type FocusSession struct {
	ID     string
	UserID string

	PlannedDuration time.Duration
	StartedAt       time.Time
	EndedAt         *time.Time

	Interruptions  int
	TasksCompleted int
	XPEarned       int

	// Derived at finalize.
	EfficiencyScore float64 // XP per minute
	Quality         Quality
}

// StartFocusSession creates a running session.
func StartFocusSession(userID string, planned time.Duration, startedAt time.Time) (*FocusSession, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if planned <= 0 {
		return nil, shared.NewDomainError("activity", "StartSession", shared.ErrValueOutOfRange, "planned duration must be positive")
	}

	return &FocusSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		PlannedDuration: planned,
		StartedAt:       startedAt,
	}, nil
}

// IsFinalized reports whether the session outcome has been recorded.
func (s *FocusSession) IsFinalized() bool {
	return s.EndedAt != nil
}

// RecordInterruption counts one interruption on a running session.
func (s *FocusSession) RecordInterruption() error {
	if s.IsFinalized() {
		return shared.ErrSessionFinalized
	}
	s.Interruptions++
	return nil
}

// RecordTaskCompletion attributes a completed task and its XP to the
// running session.
func (s *FocusSession) RecordTaskCompletion(xp int) error {
	if s.IsFinalized() {
		return shared.ErrSessionFinalized
	}
	s.TasksCompleted++
	s.XPEarned += xp
	return nil
}

// DurationMinutes returns the elapsed minutes of a finalized session.
func (s *FocusSession) DurationMinutes() float64 {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt).Minutes()
}

// Finalize freezes the session: records the end time and derives the
// efficiency score and quality tier. A session is finalized exactly once.
func (s *FocusSession) Finalize(endedAt time.Time) error {
	if s.IsFinalized() {
		return shared.ErrSessionFinalized
	}
	if endedAt.Before(s.StartedAt) {
		return shared.NewDomainError("activity", "Finalize", shared.ErrInvalidInput, "session cannot end before it started")
	}

	s.EndedAt = &endedAt

	minutes := s.DurationMinutes()
	if minutes > 0 {
		s.EfficiencyScore = float64(s.XPEarned) / minutes
	}
	s.Quality = QualityFor(s.EfficiencyScore, s.Interruptions)
	return nil
}
