package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORD
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRecord is one append-only fact in the permanent completion
// ledger. Never updated or deleted; all analytics derive from these rows.
type CompletionRecord struct {
	ID             string
	UserID         string
	TaskID         string
	Difficulty     task.Difficulty
	XPCredited     int // actual credit, after the profile multiplier
	TimeSpent      time.Duration
	SolutionViewed bool
	CompletedAt    time.Time
}

// NewCompletionRecord builds the ledger entry for one completed task.
func NewCompletionRecord(userID, taskID string, difficulty task.Difficulty, xpCredited int, timeSpent time.Duration, solutionViewed bool, completedAt time.Time) (CompletionRecord, error) {
	if userID == "" {
		return CompletionRecord{}, shared.ErrInvalidUserID
	}
	if taskID == "" {
		return CompletionRecord{}, shared.NewDomainError("activity", "Record", shared.ErrInvalidID, "task ID cannot be empty")
	}
	if xpCredited < 0 {
		return CompletionRecord{}, shared.NewDomainError("activity", "Record", shared.ErrNegativeValue, "credited XP cannot be negative")
	}

	return CompletionRecord{
		ID:             uuid.New().String(),
		UserID:         userID,
		TaskID:         taskID,
		Difficulty:     difficulty,
		XPCredited:     xpCredited,
		TimeSpent:      timeSpent,
		SolutionViewed: solutionViewed,
		CompletedAt:    completedAt,
	}, nil
}

// Day returns the UTC calendar day of the completion.
func (r CompletionRecord) Day() time.Time {
	return timeutil.ToDay(r.CompletedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// KPI SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// KPISnapshot is the per-day derived metric record, written once per
// (user, day) and used for trend queries.
type KPISnapshot struct {
	UserID string
	Day    time.Time // UTC day

	LearningEfficiency float64 // XP per focus minute
	CompletionRate     float64
	AvgTaskMinutes     float64
	Consistency        float64

	CreatedAt time.Time
}

// NewKPISnapshot builds the snapshot for one user and day.
func NewKPISnapshot(userID string, day time.Time, efficiency, completionRate, avgTaskMinutes, consistency float64) (KPISnapshot, error) {
	if userID == "" {
		return KPISnapshot{}, shared.ErrInvalidUserID
	}

	return KPISnapshot{
		UserID:             userID,
		Day:                timeutil.ToDay(day),
		LearningEfficiency: efficiency,
		CompletionRate:     completionRate,
		AvgTaskMinutes:     avgTaskMinutes,
		Consistency:        consistency,
		CreatedAt:          time.Now(),
	}, nil
}
