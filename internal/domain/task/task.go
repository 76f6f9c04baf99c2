// Package task contains the task lifecycle tracker: per-task state, the
// immutable transition log, difficulty tiers, and the graded completion
// contract.
package task

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIFFICULTY
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty is the tier of a task, each with a canonical base XP value.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks that the difficulty is a known tier.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// BaseXP returns the canonical XP value of the tier.
func (d Difficulty) BaseXP() int {
	switch d {
	case DifficultyEasy:
		return 50
	case DifficultyMedium:
		return 150
	case DifficultyHard:
		return 300
	default:
		return 0
	}
}

// AllDifficulties lists the tiers in ascending order.
func AllDifficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is a task lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusNew:
		return next == StatusInProgress || next.IsTerminal()
	case StatusInProgress:
		return next.IsTerminal()
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION LOG
// ══════════════════════════════════════════════════════════════════════════════

// Transition is one immutable entry in a task's transition log.
type Transition struct {
	ID     string
	From   Status
	To     Status
	Reason string
	At     time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK
// ══════════════════════════════════════════════════════════════════════════════

// AcceptanceThreshold is the minimum graded score that completes a task.
const AcceptanceThreshold = 60

// Task is one learning task handed to the engine after external generation.
// It transitions until a terminal state and is immutable afterwards;
// regenerating text for the same slot creates a brand-new Task.
type Task struct {
	ID         string
	UserID     string
	Text       string
	Solution   string
	Difficulty Difficulty

	Status       Status
	Transitions  []Transition
	AttemptCount int
	TimeSpent    time.Duration

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewTask creates a task in the initial state.
func NewTask(userID, text, solution string, difficulty Difficulty) (*Task, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if text == "" {
		return nil, shared.NewDomainError("task", "Create", shared.ErrEmptyValue, "task text cannot be empty")
	}
	if !difficulty.IsValid() {
		return nil, shared.ErrInvalidDifficulty
	}

	return &Task{
		ID:         uuid.New().String(),
		UserID:     userID,
		Text:       text,
		Solution:   solution,
		Difficulty: difficulty,
		Status:     StatusNew,
		CreatedAt:  time.Now(),
	}, nil
}

// Regenerate creates a brand-new task for the same slot with fresh text.
// The receiver is untouched; terminal tasks stay terminal.
func (t *Task) Regenerate(text, solution string) (*Task, error) {
	return NewTask(t.UserID, text, solution, t.Difficulty)
}

// transition appends a log entry and moves the task to the next state.
func (t *Task) transition(to Status, reason string) error {
	if t.Status.IsTerminal() {
		return shared.ErrTaskTerminal
	}
	if !t.Status.CanTransitionTo(to) {
		return shared.WrapError("task", "Transition", shared.ErrInvalidTransition,
			fmt.Sprintf("cannot move from %s to %s", t.Status, to), nil)
	}

	now := time.Now()
	t.Transitions = append(t.Transitions, Transition{
		ID:     uuid.New().String(),
		From:   t.Status,
		To:     to,
		Reason: reason,
		At:     now,
	})
	t.Status = to

	switch to {
	case StatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StatusCompleted, StatusSkipped, StatusFailed:
		t.CompletedAt = &now
	}
	return nil
}

// Start marks the first interaction with the task.
func (t *Task) Start(reason string) error {
	if t.Status == StatusInProgress {
		return nil // already started, repeated interaction
	}
	return t.transition(StatusInProgress, reason)
}

// Skip abandons the task explicitly. No XP is credited.
func (t *Task) Skip(reason string) error {
	return t.transition(StatusSkipped, reason)
}

// Fail marks the task failed, e.g. after the caller gives up on retries.
func (t *Task) Fail(reason string) error {
	return t.transition(StatusFailed, reason)
}

// CompletionResult is the outcome of a completion attempt.
type CompletionResult struct {
	Accepted       bool
	XPCredited     int  // base-XP share before the profile multiplier
	Score          *int // nil for boolean completions
	SolutionViewed bool
}

// Complete attempts to finish the task. A nil score means boolean success and
// credits the full base XP. A graded score (0-100) credits
// baseXP × score/100 and only completes the task when the score reaches the
// acceptance threshold; below it the task stays non-terminal, the attempt is
// counted, and the caller is invited to retry.
func (t *Task) Complete(score *int, timeSpent time.Duration, solutionViewed bool) (CompletionResult, error) {
	if t.Status.IsTerminal() {
		return CompletionResult{}, shared.ErrTaskTerminal
	}
	if timeSpent > 0 {
		t.TimeSpent += timeSpent
	}

	if score == nil {
		if err := t.transition(StatusCompleted, "completed"); err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{
			Accepted:       true,
			XPCredited:     t.Difficulty.BaseXP(),
			SolutionViewed: solutionViewed,
		}, nil
	}

	if *score < 0 || *score > 100 {
		return CompletionResult{}, shared.ErrInvalidScore
	}

	t.AttemptCount++

	if *score < AcceptanceThreshold {
		// A rejected attempt still counts as the first interaction.
		if t.Status == StatusNew {
			if err := t.transition(StatusInProgress, fmt.Sprintf("graded attempt scored %d, below threshold", *score)); err != nil {
				return CompletionResult{}, err
			}
		}
		return CompletionResult{Score: score, SolutionViewed: solutionViewed}, nil
	}

	if err := t.transition(StatusCompleted, fmt.Sprintf("graded attempt scored %d", *score)); err != nil {
		return CompletionResult{}, err
	}

	credited := int(math.Round(float64(t.Difficulty.BaseXP()) * float64(*score) / 100.0))
	return CompletionResult{
		Accepted:       true,
		XPCredited:     credited,
		Score:          score,
		SolutionViewed: solutionViewed,
	}, nil
}
