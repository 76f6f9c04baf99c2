package query

import (
	"context"
	"errors"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET INSIGHTS QUERY
// Assembles the behavioral aggregates and runs the insight generator over
// them. Insights describe behavior; they never change targets or rewards.
// ══════════════════════════════════════════════════════════════════════════════

// GetInsightsQuery contains the parameters of the insight request.
type GetInsightsQuery struct {
	// UserID identifies the user.
	UserID string

	// WindowDays is the observation window (default 7, max 30).
	WindowDays int
}

// Validate checks the query and fills defaults.
func (q *GetInsightsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.WindowDays <= 0 {
		q.WindowDays = activity.DefaultConsistencyWindowDays
	}
	if q.WindowDays > 30 {
		q.WindowDays = 30
	}
	return nil
}

// GetInsightsResult contains the generated observations.
type GetInsightsResult struct {
	UserID      string    `json:"user_id"`
	WindowDays  int       `json:"window_days"`
	Insights    []string  `json:"insights"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetInsightsHandler handles the GetInsightsQuery.
type GetInsightsHandler struct {
	taskRepo     task.Repository
	activityRepo activity.Repository
}

// NewGetInsightsHandler creates a new GetInsightsHandler.
func NewGetInsightsHandler(taskRepo task.Repository, activityRepo activity.Repository) *GetInsightsHandler {
	return &GetInsightsHandler{taskRepo: taskRepo, activityRepo: activityRepo}
}

// Handle executes the insight query.
func (h *GetInsightsHandler) Handle(ctx context.Context, query GetInsightsQuery) (*GetInsightsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetInsights", shared.ErrValidation, err.Error(), err)
	}

	now := time.Now()
	to := timeutil.ToDay(now).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -query.WindowDays)

	records, err := h.activityRepo.ListCompletions(ctx, query.UserID, from, to)
	if err != nil {
		return nil, shared.WrapError("query", "GetInsights", shared.ErrValidation, "failed to load completions", err)
	}
	viewRate, err := h.activityRepo.SolutionViewRate(ctx, query.UserID, from, to)
	if err != nil {
		return nil, shared.WrapError("query", "GetInsights", shared.ErrValidation, "failed to load solution view rate", err)
	}
	distinctDays, err := h.activityRepo.DistinctCompletionDays(ctx, query.UserID, from, to)
	if err != nil {
		return nil, shared.WrapError("query", "GetInsights", shared.ErrValidation, "failed to load completion days", err)
	}
	qualityCounts, err := h.activityRepo.CountSessionsByQuality(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetInsights", shared.ErrValidation, "failed to load session quality", err)
	}

	byDifficulty := make(map[task.Difficulty]int)
	for _, r := range records {
		byDifficulty[r.Difficulty]++
	}

	insights := activity.GenerateInsights(activity.InsightInputs{
		CompletionsByDifficulty: byDifficulty,
		SolutionViewRate:        viewRate,
		AvgTaskMinutes:          activity.AvgTaskMinutesOf(records),
		Consistency:             activity.ConsistencyOf(distinctDays, query.WindowDays),
		QualityCounts:           qualityCounts,
	})

	return &GetInsightsResult{
		UserID:      query.UserID,
		WindowDays:  query.WindowDays,
		Insights:    insights,
		GeneratedAt: now,
	}, nil
}
