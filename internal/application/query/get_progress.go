// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// The main read path: balance, streak, active goals, reward state, and the
// trophy shelf in one view. Cached between mutations.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters of the progress view request.
type GetProgressQuery struct {
	// UserID identifies the user.
	UserID string

	// IncludeAchievements adds the earned achievement list.
	IncludeAchievements bool

	// IncludeAdjustments adds the recent retargeting log.
	IncludeAdjustments bool

	// AdjustmentLimit caps the retargeting log (default 10).
	AdjustmentLimit int

	// BypassCache forces a fresh read.
	BypassCache bool
}

// Validate checks the query and fills defaults.
func (q *GetProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.AdjustmentLimit <= 0 {
		q.AdjustmentLimit = 10
	}
	return nil
}

// GoalDTO is one goal in the progress view.
type GoalDTO struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	TargetTasks  int       `json:"target_tasks"`
	ActualTasks  int       `json:"actual_tasks"`
	TargetXP     int       `json:"target_xp"`
	ActualXP     int       `json:"actual_xp"`
	FocusMinutes int       `json:"focus_minutes"`

	// ProgressPercent is actual/target tasks, capped at 100.
	ProgressPercent int `json:"progress_percent"`

	// TargetReached indicates the task target has been met already.
	TargetReached bool `json:"target_reached"`
}

// EarnedAchievementDTO is one earned achievement in the view.
type EarnedAchievementDTO struct {
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	RewardSummary string    `json:"reward_summary"`
	EarnedAt      time.Time `json:"earned_at"`
}

// AdjustmentDTO is one retargeting log entry in the view.
type AdjustmentDTO struct {
	Direction   string    `json:"direction"`
	OldTarget   int       `json:"old_target"`
	NewTarget   int       `json:"new_target"`
	SuccessRate float64   `json:"success_rate"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// ProgressView is the assembled progress read model.
type ProgressView struct {
	UserID string `json:"user_id"`

	// Ledger state
	TotalXP          int    `json:"total_xp"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"` // YYYY-MM-DD

	// StreakAtRisk is set when there was no qualifying activity today yet
	// and a running streak would break at midnight.
	StreakAtRisk bool `json:"streak_at_risk"`

	// Reward state
	XPMultiplier     float64  `json:"xp_multiplier"`
	UnlockedFeatures []string `json:"unlocked_features,omitempty"`

	// Goals
	DailyGoal  *GoalDTO `json:"daily_goal,omitempty"`
	WeeklyGoal *GoalDTO `json:"weekly_goal,omitempty"`

	// Optional sections
	Achievements []EarnedAchievementDTO `json:"achievements,omitempty"`
	Adjustments  []AdjustmentDTO        `json:"adjustments,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ProgressCache is the read-through cache in front of the progress view.
// Implementations invalidate on mutation events.
type ProgressCache interface {
	// GetProgress returns the cached view, or ErrNotFound on a miss.
	GetProgress(ctx context.Context, userID string) (*ProgressView, error)

	// SetProgress stores the view.
	SetProgress(ctx context.Context, view *ProgressView) error

	// InvalidateProgress drops the cached view.
	InvalidateProgress(ctx context.Context, userID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressHandler handles the GetProgressQuery.
type GetProgressHandler struct {
	profileRepo     profile.Repository
	goalRepo        goal.Repository
	achievementRepo achievement.Repository
	engine          *achievement.Engine
	cache           ProgressCache
}

// NewGetProgressHandler creates a new GetProgressHandler. cache may be nil.
func NewGetProgressHandler(
	profileRepo profile.Repository,
	goalRepo goal.Repository,
	achievementRepo achievement.Repository,
	engine *achievement.Engine,
	cache ProgressCache,
) *GetProgressHandler {
	return &GetProgressHandler{
		profileRepo:     profileRepo,
		goalRepo:        goalRepo,
		achievementRepo: achievementRepo,
		engine:          engine,
		cache:           cache,
	}
}

// Handle executes the progress query.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*ProgressView, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, err.Error(), err)
	}

	// Optional sections make the view shape vary, so only the base view is
	// cached and served.
	cacheable := !query.IncludeAchievements && !query.IncludeAdjustments
	if cacheable && !query.BypassCache && h.cache != nil {
		if view, err := h.cache.GetProgress(ctx, query.UserID); err == nil {
			return view, nil
		}
	}

	p, err := h.profileRepo.GetByID(ctx, profile.UserID(query.UserID))
	if err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrNotFound, "profile not found", err)
	}

	now := time.Now()
	view := &ProgressView{
		UserID:        query.UserID,
		TotalXP:       int(p.TotalXP),
		CurrentStreak: p.Streak.Current,
		LongestStreak: p.Streak.Longest,
		XPMultiplier:  p.XPMultiplier,
		GeneratedAt:   now,
	}
	if !p.Streak.LastActivityDate.IsZero() {
		view.LastActivityDate = timeutil.DayKey(p.Streak.LastActivityDate)
		view.StreakAtRisk = p.Streak.Current > 0 && !timeutil.IsSameDay(p.Streak.LastActivityDate, now)
	}
	for feature := range p.Features {
		view.UnlockedFeatures = append(view.UnlockedFeatures, feature)
	}

	if g, err := h.goalRepo.GetActive(ctx, query.UserID, goal.KindDaily, now); err == nil {
		view.DailyGoal = buildGoalDTO(g)
	}
	if g, err := h.goalRepo.GetActive(ctx, query.UserID, goal.KindWeekly, now); err == nil {
		view.WeeklyGoal = buildGoalDTO(g)
	}

	if query.IncludeAchievements {
		view.Achievements, err = h.buildAchievements(ctx, query.UserID)
		if err != nil {
			return nil, err
		}
	}
	if query.IncludeAdjustments {
		adjs, err := h.goalRepo.ListAdjustments(ctx, query.UserID, query.AdjustmentLimit)
		if err != nil {
			return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, "failed to load adjustments", err)
		}
		for _, adj := range adjs {
			view.Adjustments = append(view.Adjustments, AdjustmentDTO{
				Direction:   string(adj.Direction),
				OldTarget:   adj.OldTarget,
				NewTarget:   adj.NewTarget,
				SuccessRate: adj.SuccessRate,
				Reason:      adj.Reason,
				At:          adj.At,
			})
		}
	}

	if cacheable && h.cache != nil {
		_ = h.cache.SetProgress(ctx, view)
	}
	return view, nil
}

func (h *GetProgressHandler) buildAchievements(ctx context.Context, userID string) ([]EarnedAchievementDTO, error) {
	earned, err := h.achievementRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, "failed to load achievements", err)
	}

	out := make([]EarnedAchievementDTO, 0, len(earned))
	for _, e := range earned {
		dto := EarnedAchievementDTO{
			AchievementID: e.AchievementID,
			RewardSummary: e.Reward.Describe(),
			EarnedAt:      e.EarnedAt,
		}
		if def, ok := h.engine.Find(e.AchievementID); ok {
			dto.Name = def.Name
			dto.Description = def.Description
		}
		out = append(out, dto)
	}
	return out, nil
}

// buildGoalDTO maps a goal to its view shape.
func buildGoalDTO(g *goal.Goal) *GoalDTO {
	dto := &GoalDTO{
		ID:            g.ID,
		Kind:          string(g.Kind),
		PeriodStart:   g.PeriodStart,
		PeriodEnd:     g.PeriodEnd,
		TargetTasks:   g.TargetTasks,
		ActualTasks:   g.ActualTasks,
		TargetXP:      g.TargetXP,
		ActualXP:      g.ActualXP,
		FocusMinutes:  g.ActualFocusMinutes,
		TargetReached: g.TargetReached(),
	}
	if g.TargetTasks > 0 {
		dto.ProgressPercent = g.ActualTasks * 100 / g.TargetTasks
		if dto.ProgressPercent > 100 {
			dto.ProgressPercent = 100
		}
	}
	return dto
}
