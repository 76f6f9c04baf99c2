package query

import (
	"context"
	"errors"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET KPIS QUERY
// Serves the per-day KPI snapshot trend plus live metrics for the current
// (not yet snapshotted) window.
// ══════════════════════════════════════════════════════════════════════════════

// GetKPIsQuery contains the parameters of the KPI trend request.
type GetKPIsQuery struct {
	// UserID identifies the user.
	UserID string

	// Days is the trend length in days (default 14, max 90).
	Days int

	// IncludeLive adds metrics computed over the current window on top of
	// the stored snapshots.
	IncludeLive bool
}

// Validate checks the query and fills defaults.
func (q *GetKPIsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Days <= 0 {
		q.Days = 14
	}
	if q.Days > 90 {
		q.Days = 90
	}
	return nil
}

// KPIDayDTO is one snapshotted day in the trend.
type KPIDayDTO struct {
	Day                string  `json:"day"` // YYYY-MM-DD
	LearningEfficiency float64 `json:"learning_efficiency"`
	CompletionRate     float64 `json:"completion_rate"`
	AvgTaskMinutes     float64 `json:"avg_task_minutes"`
	Consistency        float64 `json:"consistency"`
}

// LiveKPIsDTO holds metrics computed at query time.
type LiveKPIsDTO struct {
	LearningEfficiency float64 `json:"learning_efficiency"`
	CompletionRate     float64 `json:"completion_rate"`
	Consistency        float64 `json:"consistency"`
	WindowDays         int     `json:"window_days"`
}

// GetKPIsResult contains the trend and optional live metrics.
type GetKPIsResult struct {
	UserID      string       `json:"user_id"`
	Trend       []KPIDayDTO  `json:"trend"`
	Live        *LiveKPIsDTO `json:"live,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetKPIsHandler handles the GetKPIsQuery.
type GetKPIsHandler struct {
	activityRepo activity.Repository
	analytics    *activity.Analytics
}

// NewGetKPIsHandler creates a new GetKPIsHandler.
func NewGetKPIsHandler(activityRepo activity.Repository, analytics *activity.Analytics) *GetKPIsHandler {
	return &GetKPIsHandler{activityRepo: activityRepo, analytics: analytics}
}

// Handle executes the KPI trend query.
func (h *GetKPIsHandler) Handle(ctx context.Context, query GetKPIsQuery) (*GetKPIsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetKPIs", shared.ErrValidation, err.Error(), err)
	}

	now := time.Now()
	to := timeutil.ToDay(now).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -query.Days)

	snaps, err := h.activityRepo.ListKPISnapshots(ctx, query.UserID, from, to)
	if err != nil {
		return nil, shared.WrapError("query", "GetKPIs", shared.ErrValidation, "failed to load snapshots", err)
	}

	result := &GetKPIsResult{
		UserID:      query.UserID,
		Trend:       make([]KPIDayDTO, 0, len(snaps)),
		GeneratedAt: now,
	}
	for _, s := range snaps {
		result.Trend = append(result.Trend, KPIDayDTO{
			Day:                timeutil.DayKey(s.Day),
			LearningEfficiency: s.LearningEfficiency,
			CompletionRate:     s.CompletionRate,
			AvgTaskMinutes:     s.AvgTaskMinutes,
			Consistency:        s.Consistency,
		})
	}

	if query.IncludeLive {
		live, err := h.buildLive(ctx, query.UserID)
		if err != nil {
			return nil, err
		}
		result.Live = live
	}
	return result, nil
}

func (h *GetKPIsHandler) buildLive(ctx context.Context, userID string) (*LiveKPIsDTO, error) {
	const windowDays = activity.DefaultConsistencyWindowDays

	efficiency, err := h.analytics.LearningEfficiency(ctx, userID, windowDays)
	if err != nil {
		return nil, shared.WrapError("query", "GetKPIs", shared.ErrValidation, "failed to compute efficiency", err)
	}
	completionRate, err := h.analytics.CompletionRate(ctx, userID, windowDays)
	if err != nil {
		return nil, shared.WrapError("query", "GetKPIs", shared.ErrValidation, "failed to compute completion rate", err)
	}
	consistency, err := h.analytics.Consistency(ctx, userID, windowDays)
	if err != nil {
		return nil, shared.WrapError("query", "GetKPIs", shared.ErrValidation, "failed to compute consistency", err)
	}

	return &LiveKPIsDTO{
		LearningEfficiency: efficiency,
		CompletionRate:     completionRate,
		Consistency:        consistency,
		WindowDays:         windowDays,
	}, nil
}
