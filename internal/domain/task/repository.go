package task

import (
	"context"
	"time"
)

// Repository defines persistence operations for tasks and their transition
// logs. Transition entries are append-only.
type Repository interface {
	// Create persists a new task together with its (empty) transition log.
	Create(ctx context.Context, t *Task) error

	// GetByID loads a task with its transition log. Fails with ErrNotFound
	// if absent.
	GetByID(ctx context.Context, id string) (*Task, error)

	// Update persists the task state and appends any new transition log
	// entries. Existing entries are never rewritten.
	Update(ctx context.Context, t *Task) error

	// ListByUser returns the user's tasks created in [from, to), newest
	// first.
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*Task, error)

	// CountByStatus returns how many of the user's tasks created in
	// [from, to) are in the given status.
	CountByStatus(ctx context.Context, userID string, status Status, from, to time.Time) (int, error)

	// CompletionCountsByDifficulty returns the user's all-time completed
	// task counts per difficulty tier.
	CompletionCountsByDifficulty(ctx context.Context, userID string) (map[Difficulty]int, error)
}
