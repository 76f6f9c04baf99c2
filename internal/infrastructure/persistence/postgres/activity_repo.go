package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements activity.Repository for PostgreSQL. The
// completion ledger is append-only and KPI snapshots are write-once per
// (user, day), both enforced at the storage layer.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion ledger
// ─────────────────────────────────────────────────────────────────────────────

// AppendCompletion adds one record to the ledger.
func (r *ActivityRepository) AppendCompletion(ctx context.Context, rec activity.CompletionRecord) error {
	query := `
		INSERT INTO completion_records (
			id, user_id, task_id, difficulty, xp_credited,
			time_spent_s, solution_viewed, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.TaskID,
		string(rec.Difficulty),
		rec.XPCredited,
		int64(rec.TimeSpent.Seconds()),
		rec.SolutionViewed,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append completion: %w", err)
	}
	return nil
}

// ListCompletions returns records with CompletedAt in [from, to), newest first.
func (r *ActivityRepository) ListCompletions(ctx context.Context, userID string, from, to time.Time) ([]activity.CompletionRecord, error) {
	query := `
		SELECT id, user_id, task_id, difficulty, xp_credited,
			time_spent_s, solution_viewed, completed_at
		FROM completion_records
		WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
		ORDER BY completed_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var records []activity.CompletionRecord
	for rows.Next() {
		var (
			rec        activity.CompletionRecord
			difficulty string
			timeSpentS int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.TaskID, &difficulty, &rec.XPCredited,
			&timeSpentS, &rec.SolutionViewed, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		rec.Difficulty = task.Difficulty(difficulty)
		rec.TimeSpent = time.Duration(timeSpentS) * time.Second
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DistinctCompletionDays counts distinct UTC days with a completion in [from, to).
func (r *ActivityRepository) DistinctCompletionDays(ctx context.Context, userID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT (completed_at AT TIME ZONE 'UTC')::date)
		FROM completion_records
		WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
	`

	var days int
	if err := r.conn.QueryRow(ctx, query, userID, from, to).Scan(&days); err != nil {
		return 0, fmt.Errorf("failed to count completion days: %w", err)
	}
	return days, nil
}

// SolutionViewRate returns the share of completions where the solution was viewed.
func (r *ActivityRepository) SolutionViewRate(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(CASE WHEN solution_viewed THEN 1.0 ELSE 0.0 END), 0)
		FROM completion_records
		WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
	`

	var rate float64
	if err := r.conn.QueryRow(ctx, query, userID, from, to).Scan(&rate); err != nil {
		return 0, fmt.Errorf("failed to compute solution view rate: %w", err)
	}
	return rate, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Focus sessions
// ─────────────────────────────────────────────────────────────────────────────

// CreateSession persists a new session.
func (r *ActivityRepository) CreateSession(ctx context.Context, s *activity.FocusSession) error {
	query := `
		INSERT INTO focus_sessions (
			id, user_id, planned_s, started_at, ended_at,
			interruptions, tasks_completed, xp_earned, efficiency_score, quality
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.UserID,
		int64(s.PlannedDuration.Seconds()),
		s.StartedAt,
		s.EndedAt,
		s.Interruptions,
		s.TasksCompleted,
		s.XPEarned,
		s.EfficiencyScore,
		string(s.Quality),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session.
func (r *ActivityRepository) GetSession(ctx context.Context, id string) (*activity.FocusSession, error) {
	query := `
		SELECT id, user_id, planned_s, started_at, ended_at,
			interruptions, tasks_completed, xp_earned, efficiency_score, quality
		FROM focus_sessions
		WHERE id = $1
	`
	return scanSession(r.conn.QueryRow(ctx, query, id))
}

// UpdateSession persists the session state.
func (r *ActivityRepository) UpdateSession(ctx context.Context, s *activity.FocusSession) error {
	query := `
		UPDATE focus_sessions SET
			ended_at = $1,
			interruptions = $2,
			tasks_completed = $3,
			xp_earned = $4,
			efficiency_score = $5,
			quality = $6
		WHERE id = $7
	`

	result, err := r.conn.Exec(ctx, query,
		s.EndedAt,
		s.Interruptions,
		s.TasksCompleted,
		s.XPEarned,
		s.EfficiencyScore,
		string(s.Quality),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// ListFinalizedSessions returns finalized sessions with EndedAt in [from, to).
func (r *ActivityRepository) ListFinalizedSessions(ctx context.Context, userID string, from, to time.Time) ([]*activity.FocusSession, error) {
	query := `
		SELECT id, user_id, planned_s, started_at, ended_at,
			interruptions, tasks_completed, xp_earned, efficiency_score, quality
		FROM focus_sessions
		WHERE user_id = $1 AND ended_at IS NOT NULL AND ended_at >= $2 AND ended_at < $3
		ORDER BY ended_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*activity.FocusSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CountSessionsByQuality returns all-time finalized session counts per tier.
func (r *ActivityRepository) CountSessionsByQuality(ctx context.Context, userID string) (map[activity.Quality]int, error) {
	query := `
		SELECT quality, COUNT(*)
		FROM focus_sessions
		WHERE user_id = $1 AND ended_at IS NOT NULL
		GROUP BY quality
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[activity.Quality]int)
	for rows.Next() {
		var (
			quality string
			count   int
		)
		if err := rows.Scan(&quality, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		counts[activity.Quality(quality)] = count
	}
	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// KPI snapshots
// ─────────────────────────────────────────────────────────────────────────────

// WriteKPISnapshot stores the per-day snapshot. Re-writing an existing
// (user, day) is a silent no-op, so the nightly job can rerun safely.
func (r *ActivityRepository) WriteKPISnapshot(ctx context.Context, snap activity.KPISnapshot) error {
	query := `
		INSERT INTO kpi_snapshots (
			user_id, day, learning_efficiency, completion_rate,
			avg_task_minutes, consistency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, day) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		snap.UserID,
		timeutil.ToDay(snap.Day),
		snap.LearningEfficiency,
		snap.CompletionRate,
		snap.AvgTaskMinutes,
		snap.Consistency,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write KPI snapshot: %w", err)
	}
	return nil
}

// ListKPISnapshots returns snapshots with Day in [from, to), oldest first.
func (r *ActivityRepository) ListKPISnapshots(ctx context.Context, userID string, from, to time.Time) ([]activity.KPISnapshot, error) {
	query := `
		SELECT user_id, day, learning_efficiency, completion_rate,
			avg_task_minutes, consistency, created_at
		FROM kpi_snapshots
		WHERE user_id = $1 AND day >= $2 AND day < $3
		ORDER BY day
	`

	rows, err := r.conn.Query(ctx, query, userID, timeutil.ToDay(from), timeutil.ToDay(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list KPI snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []activity.KPISnapshot
	for rows.Next() {
		var snap activity.KPISnapshot
		if err := rows.Scan(
			&snap.UserID, &snap.Day, &snap.LearningEfficiency, &snap.CompletionRate,
			&snap.AvgTaskMinutes, &snap.Consistency, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan KPI snapshot: %w", err)
		}
		snap.Day = snap.Day.UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanSession(row pgx.Row) (*activity.FocusSession, error) {
	var (
		s        activity.FocusSession
		plannedS int64
		quality  string
	)

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&plannedS,
		&s.StartedAt,
		&s.EndedAt,
		&s.Interruptions,
		&s.TasksCompleted,
		&s.XPEarned,
		&s.EfficiencyScore,
		&quality,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.PlannedDuration = time.Duration(plannedS) * time.Second
	s.Quality = activity.Quality(quality)
	return &s, nil
}
