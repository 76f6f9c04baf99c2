package goal

import (
	"context"
	"time"
)

// Repository defines persistence operations for goals and the retargeting
// adjustment log.
type Repository interface {
	// Create persists a new goal. Fails with ErrAlreadyExists when an
	// active goal of the same kind already covers the day - the
	// at-most-one-active invariant is enforced at the storage layer.
	Create(ctx context.Context, g *Goal) error

	// GetByID loads a goal. Fails with ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Goal, error)

	// Update persists the goal state. Finalized goals are only ever
	// written once (status freeze).
	Update(ctx context.Context, g *Goal) error

	// GetActive returns the user's active goal of the given kind whose
	// period contains day, or ErrNotFound.
	GetActive(ctx context.Context, userID string, kind Kind, day time.Time) (*Goal, error)

	// ListActive returns all of the user's active goals.
	ListActive(ctx context.Context, userID string) ([]*Goal, error)

	// ListExpiredActive returns active goals across all users whose period
	// ended at or before asOf, oldest first, at most limit. Used by the
	// finalization sweep.
	ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*Goal, error)

	// ListFinalizedDaily returns the user's finalized daily goals, newest
	// period first, at most limit.
	ListFinalizedDaily(ctx context.Context, userID string, limit int) ([]*Goal, error)

	// AppendAdjustment records one retargeting evaluation.
	AppendAdjustment(ctx context.Context, adj Adjustment) error

	// ListAdjustments returns the user's retargeting log, newest first,
	// at most limit.
	ListAdjustments(ctx context.Context, userID string, limit int) ([]Adjustment, error)
}
