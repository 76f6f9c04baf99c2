package achievement

import "context"

// Repository defines persistence operations for earned achievements.
// The earned set is append-only and enforces at most one row per
// (user, achievement ID) at the storage layer.
type Repository interface {
	// Award records an earned achievement. Awarding an already-earned ID
	// is a silent no-op so retried checks stay idempotent.
	Award(ctx context.Context, e Earned) error

	// ListByUser returns the user's earned achievements, newest first.
	ListByUser(ctx context.Context, userID string) ([]Earned, error)

	// EarnedSet returns the user's earned achievement IDs.
	EarnedSet(ctx context.Context, userID string) (map[string]bool, error)
}
