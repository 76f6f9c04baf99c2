package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
// The (user_id, achievement_id) primary key makes Award naturally idempotent.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// rewardRow is the JSONB shape of a stored reward.
type rewardRow struct {
	Kind    string  `json:"kind"`
	Factor  float64 `json:"factor,omitempty"`
	Action  string  `json:"action,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Feature string  `json:"feature,omitempty"`
}

// Award records an earned achievement. Awarding twice is a silent no-op.
func (r *AchievementRepository) Award(ctx context.Context, e achievement.Earned) error {
	query := `
		INSERT INTO earned_achievements (user_id, achievement_id, reward, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	rewardJSON, err := json.Marshal(rewardRow{
		Kind:    string(e.Reward.Kind),
		Factor:  e.Reward.Factor,
		Action:  e.Reward.Action,
		Percent: e.Reward.Percent,
		Feature: e.Reward.Feature,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reward: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, e.UserID, e.AchievementID, rewardJSON, e.EarnedAt); err != nil {
		return fmt.Errorf("failed to award achievement: %w", err)
	}
	return nil
}

// ListByUser returns the user's earned achievements, newest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Earned, error) {
	query := `
		SELECT user_id, achievement_id, reward, earned_at
		FROM earned_achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var earned []achievement.Earned
	for rows.Next() {
		var (
			e          achievement.Earned
			rewardJSON []byte
		)
		if err := rows.Scan(&e.UserID, &e.AchievementID, &rewardJSON, &e.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}

		var rw rewardRow
		if err := json.Unmarshal(rewardJSON, &rw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reward: %w", err)
		}
		e.Reward = achievement.Reward{
			Kind:    achievement.RewardKind(rw.Kind),
			Factor:  rw.Factor,
			Action:  rw.Action,
			Percent: rw.Percent,
			Feature: rw.Feature,
		}
		earned = append(earned, e)
	}
	return earned, rows.Err()
}

// EarnedSet returns the user's earned achievement IDs.
func (r *AchievementRepository) EarnedSet(ctx context.Context, userID string) (map[string]bool, error) {
	query := `SELECT achievement_id FROM earned_achievements WHERE user_id = $1`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load earned set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement ID: %w", err)
		}
		set[id] = true
	}
	return set, rows.Err()
}
