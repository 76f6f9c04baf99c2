package profile

import "context"

// Repository defines persistence operations for user profiles.
// Implementations must support atomic per-user read-modify-write: Update
// inside a transaction, or the Mutate helper which wraps load-apply-save.
type Repository interface {
	// Create persists a new profile. Fails with ErrAlreadyExists if the
	// user already has one.
	Create(ctx context.Context, p *UserProfile) error

	// GetByID loads a profile. Fails with ErrNotFound if absent.
	GetByID(ctx context.Context, id UserID) (*UserProfile, error)

	// Update persists the full profile state.
	Update(ctx context.Context, p *UserProfile) error

	// Mutate atomically loads the profile, applies fn, and persists the
	// result. fn returning an error aborts the mutation with prior state
	// intact.
	Mutate(ctx context.Context, id UserID, fn func(p *UserProfile) error) (*UserProfile, error)
}
