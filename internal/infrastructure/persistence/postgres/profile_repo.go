package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	user_id, total_xp, streak_current, streak_longest, last_activity_date,
	xp_multiplier, cost_modifiers, features, created_at, updated_at
`

// Create creates a new profile.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.UserProfile) error {
	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	modifiersJSON, featuresJSON, err := marshalProfileMaps(p)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		p.ID.String(),
		int(p.TotalXP),
		p.Streak.Current,
		p.Streak.Longest,
		nullableDay(p.Streak.LastActivityDate),
		p.XPMultiplier,
		modifiersJSON,
		featuresJSON,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID returns a profile by user ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id profile.UserID) (*profile.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1`
	return scanProfile(r.conn.QueryRow(ctx, query, id.String()))
}

// Update persists the full profile state.
func (r *ProfileRepository) Update(ctx context.Context, p *profile.UserProfile) error {
	return r.update(ctx, r.conn, p)
}

func (r *ProfileRepository) update(ctx context.Context, q Querier, p *profile.UserProfile) error {
	query := `
		UPDATE user_profiles SET
			total_xp = $1,
			streak_current = $2,
			streak_longest = $3,
			last_activity_date = $4,
			xp_multiplier = $5,
			cost_modifiers = $6,
			features = $7,
			updated_at = $8
		WHERE user_id = $9
	`

	modifiersJSON, featuresJSON, err := marshalProfileMaps(p)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, query,
		int(p.TotalXP),
		p.Streak.Current,
		p.Streak.Longest,
		nullableDay(p.Streak.LastActivityDate),
		p.XPMultiplier,
		modifiersJSON,
		featuresJSON,
		time.Now().UTC(),
		p.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// ListUserIDs returns a page of user IDs ordered by creation time. Used by
// the KPI snapshot job to walk the user base.
func (r *ProfileRepository) ListUserIDs(ctx context.Context, limit, offset int) ([]string, error) {
	query := `SELECT user_id FROM user_profiles ORDER BY created_at LIMIT $1 OFFSET $2`

	rows, err := r.conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Mutate atomically loads the profile, applies fn, and persists the result.
// The row is locked for the duration of the transaction.
func (r *ProfileRepository) Mutate(ctx context.Context, id profile.UserID, fn func(p *profile.UserProfile) error) (*profile.UserProfile, error) {
	var p *profile.UserProfile

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1 FOR UPDATE`

		var err error
		p, err = scanProfile(tx.QueryRow(ctx, query, id.String()))
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		return r.update(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*profile.UserProfile, error) {
	var (
		p                UserProfileRow
		lastActivityDate *time.Time
	)

	err := row.Scan(
		&p.UserID,
		&p.TotalXP,
		&p.StreakCurrent,
		&p.StreakLongest,
		&lastActivityDate,
		&p.XPMultiplier,
		&p.CostModifiers,
		&p.Features,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	out := &profile.UserProfile{
		ID:           profile.UserID(p.UserID),
		TotalXP:      profile.XP(p.TotalXP),
		XPMultiplier: p.XPMultiplier,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Streak: profile.Streak{
			Current: p.StreakCurrent,
			Longest: p.StreakLongest,
		},
	}
	if lastActivityDate != nil {
		out.Streak.LastActivityDate = lastActivityDate.UTC()
	}

	if err := json.Unmarshal(p.CostModifiers, &out.CostModifiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cost modifiers: %w", err)
	}
	if err := json.Unmarshal(p.Features, &out.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	if out.CostModifiers == nil {
		out.CostModifiers = make(map[string]float64)
	}
	if out.Features == nil {
		out.Features = make(map[string]bool)
	}
	return out, nil
}

// UserProfileRow is the raw row shape of user_profiles.
type UserProfileRow struct {
	UserID        string
	TotalXP       int
	StreakCurrent int
	StreakLongest int
	XPMultiplier  float64
	CostModifiers []byte
	Features      []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func marshalProfileMaps(p *profile.UserProfile) ([]byte, []byte, error) {
	modifiersJSON, err := json.Marshal(p.CostModifiers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal cost modifiers: %w", err)
	}
	featuresJSON, err := json.Marshal(p.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	return modifiersJSON, featuresJSON, nil
}

// nullableDay maps the zero time to NULL.
func nullableDay(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
