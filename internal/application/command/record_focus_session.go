package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FOCUS SESSION COMMANDS
// The session timer lives with the caller; the engine records starts,
// interruptions, and the single finalize that derives efficiency and quality.
// ══════════════════════════════════════════════════════════════════════════════

// StartFocusSessionCommand opens a timed study block.
type StartFocusSessionCommand struct {
	UserID string

	// PlannedDuration is the intended block length.
	PlannedDuration time.Duration

	// StartedAt defaults to now when zero.
	StartedAt time.Time

	CorrelationID string
}

// Validate validates the command.
func (c StartFocusSessionCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("start_session: user_id is required")
	}
	if c.PlannedDuration <= 0 {
		return errors.New("start_session: planned_duration must be positive")
	}
	return nil
}

// RecordInterruptionCommand counts one interruption on a running session.
type RecordInterruptionCommand struct {
	UserID    string
	SessionID string
}

// Validate validates the command.
func (c RecordInterruptionCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("record_interruption: user_id is required")
	}
	if c.SessionID == "" {
		return errors.New("record_interruption: session_id is required")
	}
	return nil
}

// FinalizeFocusSessionCommand freezes a session.
type FinalizeFocusSessionCommand struct {
	UserID    string
	SessionID string

	// EndedAt defaults to now when zero.
	EndedAt time.Time

	CorrelationID string
}

// Validate validates the command.
func (c FinalizeFocusSessionCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("finalize_session: user_id is required")
	}
	if c.SessionID == "" {
		return errors.New("finalize_session: session_id is required")
	}
	return nil
}

// FinalizeFocusSessionResult contains the frozen session outcome.
type FinalizeFocusSessionResult struct {
	Session *activity.FocusSession

	// NewAchievements lists achievements unlocked by this session.
	NewAchievements []achievement.Earned

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FocusSessionHandler handles the focus session commands.
type FocusSessionHandler struct {
	profileRepo    profile.Repository
	activityRepo   activity.Repository
	goalRepo       goal.Repository
	achievements   *AchievementChecker
	eventPublisher shared.EventPublisher
	locks          *userLocks
	log            *logger.Logger
}

// NewFocusSessionHandler creates a new FocusSessionHandler.
func NewFocusSessionHandler(
	profileRepo profile.Repository,
	activityRepo activity.Repository,
	goalRepo goal.Repository,
	achievements *AchievementChecker,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *FocusSessionHandler {
	return &FocusSessionHandler{
		profileRepo:    profileRepo,
		activityRepo:   activityRepo,
		goalRepo:       goalRepo,
		achievements:   achievements,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
		log:            log,
	}
}

// HandleStart opens a session.
func (h *FocusSessionHandler) HandleStart(ctx context.Context, cmd StartFocusSessionCommand) (*activity.FocusSession, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("start_session: validation failed: %w", err)
	}

	startedAt := cmd.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	s, err := activity.StartFocusSession(cmd.UserID, cmd.PlannedDuration, startedAt)
	if err != nil {
		return nil, fmt.Errorf("start_session: %w", err)
	}
	if err := h.activityRepo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("start_session: save session: %w", err)
	}
	return s, nil
}

// HandleInterruption counts one interruption.
func (h *FocusSessionHandler) HandleInterruption(ctx context.Context, cmd RecordInterruptionCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("record_interruption: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	s, err := h.loadOwnedSession(ctx, cmd.SessionID, cmd.UserID)
	if err != nil {
		return fmt.Errorf("record_interruption: %w", err)
	}
	if err := s.RecordInterruption(); err != nil {
		return fmt.Errorf("record_interruption: %w", err)
	}
	if err := h.activityRepo.UpdateSession(ctx, s); err != nil {
		return fmt.Errorf("record_interruption: save session: %w", err)
	}
	return nil
}

// HandleFinalize freezes the session, feeds its minutes into the active
// goals, and runs the achievement check.
func (h *FocusSessionHandler) HandleFinalize(ctx context.Context, cmd FinalizeFocusSessionCommand) (*FinalizeFocusSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("finalize_session: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	s, err := h.loadOwnedSession(ctx, cmd.SessionID, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("finalize_session: %w", err)
	}

	endedAt := cmd.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	if err := s.Finalize(endedAt); err != nil {
		return nil, fmt.Errorf("finalize_session: %w", err)
	}
	if err := h.activityRepo.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("finalize_session: save session: %w", err)
	}

	result := &FinalizeFocusSessionResult{Session: s}

	// Task and XP progress were already recorded at completion time; the
	// session contributes only its focus minutes here.
	h.recordFocusMinutes(ctx, cmd.UserID, int(s.DurationMinutes()), endedAt)

	p, err := h.profileRepo.GetByID(ctx, profile.UserID(cmd.UserID))
	if err == nil {
		awarded, unlockEvents, checkErr := h.achievements.CheckAndAward(ctx, p)
		if checkErr != nil {
			h.log.Warn("achievement check failed",
				logger.UserID(cmd.UserID), logger.Err(checkErr))
		}
		result.NewAchievements = awarded
		if len(awarded) > 0 {
			if err := h.profileRepo.Update(ctx, p); err != nil {
				return nil, fmt.Errorf("finalize_session: persist rewards: %w", err)
			}
		}
		result.Events = append(result.Events, unlockEvents...)
	}

	finalized := shared.NewSessionFinalizedEvent(
		cmd.UserID, s.ID, endedAt.Sub(s.StartedAt),
		s.TasksCompleted, s.XPEarned, s.Interruptions,
		s.EfficiencyScore, string(s.Quality))
	if cmd.CorrelationID != "" {
		finalized.BaseEvent = finalized.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, finalized)

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

func (h *FocusSessionHandler) loadOwnedSession(ctx context.Context, sessionID, userID string) (*activity.FocusSession, error) {
	s, err := h.activityRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

func (h *FocusSessionHandler) recordFocusMinutes(ctx context.Context, userID string, minutes int, now time.Time) {
	if minutes <= 0 {
		return
	}
	for _, kind := range []goal.Kind{goal.KindDaily, goal.KindWeekly} {
		g, err := h.goalRepo.GetActive(ctx, userID, kind, now)
		if err != nil {
			continue
		}
		if err := g.RecordProgress(0, 0, minutes); err != nil {
			continue
		}
		if err := h.goalRepo.Update(ctx, g); err != nil {
			h.log.Warn("failed to save focus minutes",
				logger.UserID(userID), logger.GoalKind(string(kind)), logger.Err(err))
		}
	}
}
