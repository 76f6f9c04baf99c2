package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TaskRepository implements task.Repository for PostgreSQL. Transition log
// entries are append-only; Update only inserts entries not yet stored.
type TaskRepository struct {
	conn *Connection
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(conn *Connection) *TaskRepository {
	return &TaskRepository{conn: conn}
}

const taskColumns = `
	id, user_id, text, solution, difficulty, status,
	attempt_count, time_spent_s, created_at, started_at, completed_at
`

// Create persists a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.Text,
		t.Solution,
		string(t.Difficulty),
		string(t.Status),
		t.AttemptCount,
		int64(t.TimeSpent.Seconds()),
		t.CreatedAt,
		t.StartedAt,
		t.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID loads a task together with its transition log.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	transitions, err := r.loadTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Transitions = transitions
	return t, nil
}

// Update persists the task state and appends any new transition entries.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			UPDATE tasks SET
				status = $1,
				attempt_count = $2,
				time_spent_s = $3,
				started_at = $4,
				completed_at = $5
			WHERE id = $6
		`

		result, err := tx.Exec(ctx, query,
			string(t.Status),
			t.AttemptCount,
			int64(t.TimeSpent.Seconds()),
			t.StartedAt,
			t.CompletedAt,
			t.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if result.RowsAffected() == 0 {
			return shared.ErrTaskNotFound
		}

		// Transition rows carry UUID primary keys, so re-inserting an
		// already stored entry is a conflict we can skip.
		insert := `
			INSERT INTO task_transitions (id, task_id, from_status, to_status, reason, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`
		for _, tr := range t.Transitions {
			if _, err := tx.Exec(ctx, insert,
				tr.ID, t.ID, string(tr.From), string(tr.To), tr.Reason, tr.At,
			); err != nil {
				return fmt.Errorf("failed to append transition: %w", err)
			}
		}
		return nil
	})
}

// ListByUser returns the user's tasks created in [from, to), newest first.
// Transition logs are not loaded for list reads.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountByStatus counts the user's tasks in the given status created in [from, to).
func (r *TaskRepository) CountByStatus(ctx context.Context, userID string, status task.Status, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE user_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4
	`

	var count int
	if err := r.conn.QueryRow(ctx, query, userID, string(status), from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CompletionCountsByDifficulty returns all-time completed counts per tier.
func (r *TaskRepository) CompletionCountsByDifficulty(ctx context.Context, userID string) (map[task.Difficulty]int, error) {
	query := `
		SELECT difficulty, COUNT(*)
		FROM tasks
		WHERE user_id = $1 AND status = $2
		GROUP BY difficulty
	`

	rows, err := r.conn.Query(ctx, query, userID, string(task.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Difficulty]int)
	for rows.Next() {
		var (
			difficulty string
			count      int
		)
		if err := rows.Scan(&difficulty, &count); err != nil {
			return nil, fmt.Errorf("failed to scan completion count: %w", err)
		}
		counts[task.Difficulty(difficulty)] = count
	}
	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t          task.Task
		difficulty string
		status     string
		timeSpentS int64
	)

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Text,
		&t.Solution,
		&difficulty,
		&status,
		&t.AttemptCount,
		&timeSpentS,
		&t.CreatedAt,
		&t.StartedAt,
		&t.CompletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Difficulty = task.Difficulty(difficulty)
	t.Status = task.Status(status)
	t.TimeSpent = time.Duration(timeSpentS) * time.Second
	return &t, nil
}

func (r *TaskRepository) loadTransitions(ctx context.Context, taskID string) ([]task.Transition, error) {
	query := `
		SELECT id, from_status, to_status, reason, occurred_at
		FROM task_transitions
		WHERE task_id = $1
		ORDER BY occurred_at
	`

	rows, err := r.conn.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	defer rows.Close()

	var transitions []task.Transition
	for rows.Next() {
		var (
			tr   task.Transition
			from string
			to   string
		)
		if err := rows.Scan(&tr.ID, &from, &to, &tr.Reason, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.From = task.Status(from)
		tr.To = task.Status(to)
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}
