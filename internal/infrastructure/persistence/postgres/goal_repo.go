package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GOAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements goal.Repository for PostgreSQL. The
// at-most-one-active invariant per (user, kind) is enforced by a partial
// unique index, surfaced here as ErrActiveGoalExists.
type GoalRepository struct {
	conn *Connection
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(conn *Connection) *GoalRepository {
	return &GoalRepository{conn: conn}
}

const goalColumns = `
	id, user_id, kind, period_start, period_end,
	target_tasks, target_xp, target_focus_minutes,
	actual_tasks, actual_xp, actual_focus_minutes,
	status, completion_rate, created_at, finalized_at
`

// Create persists a new goal.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.conn.Exec(ctx, query,
		g.ID,
		g.UserID,
		string(g.Kind),
		g.PeriodStart,
		g.PeriodEnd,
		g.TargetTasks,
		g.TargetXP,
		g.TargetFocusMinutes,
		g.ActualTasks,
		g.ActualXP,
		g.ActualFocusMinutes,
		string(g.Status),
		g.CompletionRate,
		g.CreatedAt,
		g.FinalizedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrActiveGoalExists
		}
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetByID loads a goal.
func (r *GoalRepository) GetByID(ctx context.Context, id string) (*goal.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = $1`
	return scanGoal(r.conn.QueryRow(ctx, query, id))
}

// Update persists the goal state.
func (r *GoalRepository) Update(ctx context.Context, g *goal.Goal) error {
	query := `
		UPDATE goals SET
			actual_tasks = $1,
			actual_xp = $2,
			actual_focus_minutes = $3,
			status = $4,
			completion_rate = $5,
			finalized_at = $6
		WHERE id = $7
	`

	result, err := r.conn.Exec(ctx, query,
		g.ActualTasks,
		g.ActualXP,
		g.ActualFocusMinutes,
		string(g.Status),
		g.CompletionRate,
		g.FinalizedAt,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrGoalNotFound
	}
	return nil
}

// GetActive returns the user's active goal of the given kind covering day.
func (r *GoalRepository) GetActive(ctx context.Context, userID string, kind goal.Kind, day time.Time) (*goal.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1 AND kind = $2 AND status = $3
			AND period_start <= $4 AND period_end > $4
	`
	return scanGoal(r.conn.QueryRow(ctx, query, userID, string(kind), string(goal.StatusActive), timeutil.ToDay(day)))
}

// ListActive returns all of the user's active goals.
func (r *GoalRepository) ListActive(ctx context.Context, userID string) ([]*goal.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1 AND status = $2
		ORDER BY period_start
	`
	return r.queryGoals(ctx, query, userID, string(goal.StatusActive))
}

// ListExpiredActive returns active goals due for finalization, oldest first.
func (r *GoalRepository) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*goal.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE status = $1 AND period_end <= $2
		ORDER BY period_end
		LIMIT $3
	`
	return r.queryGoals(ctx, query, string(goal.StatusActive), timeutil.ToDay(asOf), limit)
}

// ListFinalizedDaily returns the user's finalized daily goals, newest period first.
func (r *GoalRepository) ListFinalizedDaily(ctx context.Context, userID string, limit int) ([]*goal.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1 AND kind = $2 AND status IN ($3, $4)
		ORDER BY period_start DESC
		LIMIT $5
	`
	return r.queryGoals(ctx, query,
		userID, string(goal.KindDaily),
		string(goal.StatusCompleted), string(goal.StatusFailed),
		limit,
	)
}

// AppendAdjustment records one retargeting evaluation.
func (r *GoalRepository) AppendAdjustment(ctx context.Context, adj goal.Adjustment) error {
	query := `
		INSERT INTO goal_adjustments (
			id, user_id, direction, old_target, new_target,
			success_rate, sample_size, reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Exec(ctx, query,
		adj.ID,
		adj.UserID,
		string(adj.Direction),
		adj.OldTarget,
		adj.NewTarget,
		adj.SuccessRate,
		adj.SampleSize,
		adj.Reason,
		adj.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

// ListAdjustments returns the user's retargeting log, newest first.
func (r *GoalRepository) ListAdjustments(ctx context.Context, userID string, limit int) ([]goal.Adjustment, error) {
	query := `
		SELECT id, user_id, direction, old_target, new_target,
			success_rate, sample_size, reason, occurred_at
		FROM goal_adjustments
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []goal.Adjustment
	for rows.Next() {
		var (
			adj       goal.Adjustment
			direction string
		)
		if err := rows.Scan(
			&adj.ID, &adj.UserID, &direction, &adj.OldTarget, &adj.NewTarget,
			&adj.SuccessRate, &adj.SampleSize, &adj.Reason, &adj.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adj.Direction = goal.Direction(direction)
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *GoalRepository) queryGoals(ctx context.Context, query string, args ...any) ([]*goal.Goal, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanGoal(row pgx.Row) (*goal.Goal, error) {
	var (
		g      goal.Goal
		kind   string
		status string
	)

	err := row.Scan(
		&g.ID,
		&g.UserID,
		&kind,
		&g.PeriodStart,
		&g.PeriodEnd,
		&g.TargetTasks,
		&g.TargetXP,
		&g.TargetFocusMinutes,
		&g.ActualTasks,
		&g.ActualXP,
		&g.ActualFocusMinutes,
		&status,
		&g.CompletionRate,
		&g.CreatedAt,
		&g.FinalizedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	g.Kind = goal.Kind(kind)
	g.Status = goal.Status(status)
	g.PeriodStart = g.PeriodStart.UTC()
	g.PeriodEnd = g.PeriodEnd.UTC()
	return &g, nil
}
