package activity

import (
	"context"
	"time"
)

// Repository defines persistence operations for the completion ledger,
// focus sessions, and KPI snapshots.
type Repository interface {
	// ── Completion ledger ────────────────────────────────────────────────

	// AppendCompletion adds one record to the append-only ledger.
	AppendCompletion(ctx context.Context, rec CompletionRecord) error

	// ListCompletions returns the user's records with CompletedAt in
	// [from, to), newest first.
	ListCompletions(ctx context.Context, userID string, from, to time.Time) ([]CompletionRecord, error)

	// DistinctCompletionDays counts distinct UTC days with at least one
	// completion in [from, to).
	DistinctCompletionDays(ctx context.Context, userID string, from, to time.Time) (int, error)

	// SolutionViewRate returns the share of the user's completions in
	// [from, to) where the worked solution was viewed.
	SolutionViewRate(ctx context.Context, userID string, from, to time.Time) (float64, error)

	// ── Focus sessions ───────────────────────────────────────────────────

	// CreateSession persists a new session.
	CreateSession(ctx context.Context, s *FocusSession) error

	// GetSession loads a session. Fails with ErrNotFound if absent.
	GetSession(ctx context.Context, id string) (*FocusSession, error)

	// UpdateSession persists the session state, including finalization.
	UpdateSession(ctx context.Context, s *FocusSession) error

	// ListFinalizedSessions returns the user's finalized sessions with
	// EndedAt in [from, to).
	ListFinalizedSessions(ctx context.Context, userID string, from, to time.Time) ([]*FocusSession, error)

	// CountSessionsByQuality returns the user's all-time finalized
	// session counts per quality tier.
	CountSessionsByQuality(ctx context.Context, userID string) (map[Quality]int, error)

	// ── KPI snapshots ────────────────────────────────────────────────────

	// WriteKPISnapshot stores the per-day snapshot. Write-once per
	// (user, day): re-writing an existing day is a silent no-op.
	WriteKPISnapshot(ctx context.Context, snap KPISnapshot) error

	// ListKPISnapshots returns snapshots with Day in [from, to), oldest
	// first, for trend queries.
	ListKPISnapshots(ctx context.Context, userID string, from, to time.Time) ([]KPISnapshot, error)
}
