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
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/logger"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TASK COMMAND
// The central write path: grades the attempt, credits XP through the profile
// multiplier, touches the streak, appends the completion ledger entry, feeds
// the active goals and the session, and runs the achievement check.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskCommand contains one completion attempt.
type CompleteTaskCommand struct {
	// UserID is the task owner.
	UserID string

	// TaskID is the task being completed.
	TaskID string

	// Score is the graded score (0-100), when the caller already has one.
	// Nil without an Answer means boolean completion at full base XP.
	Score *int

	// Answer is the learner's free-text answer. When set and Score is nil
	// the external evaluator grades it.
	Answer string

	// TimeSpent is the time spent on this attempt.
	TimeSpent time.Duration

	// SolutionViewed records whether the worked solution was opened.
	SolutionViewed bool

	// SessionID attributes the completion to a running focus session. The
	// completion then contributes task count and XP to the goals; its focus
	// minutes arrive with the session at finalize.
	SessionID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteTaskCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("complete_task: user_id is required")
	}
	if c.TaskID == "" {
		return errors.New("complete_task: task_id is required")
	}
	if c.Score != nil && (*c.Score < 0 || *c.Score > 100) {
		return fmt.Errorf("complete_task: score %d out of range", *c.Score)
	}
	if c.TimeSpent < 0 {
		return errors.New("complete_task: time_spent cannot be negative")
	}
	return nil
}

// CompleteTaskResult contains the outcome of the attempt.
type CompleteTaskResult struct {
	// Accepted indicates the task reached the completed state. False means
	// a graded attempt scored below the acceptance threshold; the task
	// stays open for another try.
	Accepted bool

	// Score is the graded score, nil for boolean completions.
	Score *int

	// Feedback is the evaluator's commentary, when an answer was graded.
	Feedback string

	// XPCredited is the actual credit after the profile multiplier.
	XPCredited int

	// NewTotalXP is the balance after crediting.
	NewTotalXP int

	// CurrentStreak and StreakExtended describe the streak after the touch.
	CurrentStreak  int
	StreakExtended bool

	// NewAchievements lists achievements unlocked by this completion.
	NewAchievements []achievement.Earned

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskHandler handles the CompleteTaskCommand.
type CompleteTaskHandler struct {
	profileRepo    profile.Repository
	taskRepo       task.Repository
	goalRepo       goal.Repository
	activityRepo   activity.Repository
	evaluator      task.Evaluator
	achievements   *AchievementChecker
	eventPublisher shared.EventPublisher
	locks          *userLocks
	log            *logger.Logger
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(
	profileRepo profile.Repository,
	taskRepo task.Repository,
	goalRepo goal.Repository,
	activityRepo activity.Repository,
	evaluator task.Evaluator,
	achievements *AchievementChecker,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *CompleteTaskHandler {
	return &CompleteTaskHandler{
		profileRepo:    profileRepo,
		taskRepo:       taskRepo,
		goalRepo:       goalRepo,
		activityRepo:   activityRepo,
		evaluator:      evaluator,
		achievements:   achievements,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
		log:            log,
	}
}

// Handle executes the completion attempt.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (*CompleteTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_task: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	t, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}
	if t.UserID != cmd.UserID {
		return nil, shared.ErrTaskNotFound
	}

	score, feedback := cmd.Score, ""
	if score == nil && cmd.Answer != "" {
		score, feedback = h.grade(ctx, t, cmd.Answer)
	}

	res, err := t.Complete(score, cmd.TimeSpent, cmd.SolutionViewed)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}
	if err := h.taskRepo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("complete_task: save task: %w", err)
	}

	result := &CompleteTaskResult{
		Accepted: res.Accepted,
		Score:    res.Score,
		Feedback: feedback,
	}
	if !res.Accepted {
		// Attempt counted, nothing credited. The caller may retry.
		return result, nil
	}

	now := time.Now()

	var credited, newTotal, previousStreak int
	var outcome profile.StreakOutcome
	p, err := h.profileRepo.Mutate(ctx, profile.UserID(cmd.UserID), func(p *profile.UserProfile) error {
		previousStreak = p.Streak.Current
		var total profile.XP
		credited, total = p.ApplyXP(res.XPCredited, p.XPMultiplier)
		newTotal = int(total)
		outcome = p.TouchStreak(now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete_task: credit profile: %w", err)
	}

	result.XPCredited = credited
	result.NewTotalXP = newTotal
	result.CurrentStreak = p.Streak.Current
	result.StreakExtended = outcome == profile.StreakExtended

	rec, err := activity.NewCompletionRecord(cmd.UserID, t.ID, t.Difficulty, credited, cmd.TimeSpent, cmd.SolutionViewed, now)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}
	if err := h.activityRepo.AppendCompletion(ctx, rec); err != nil {
		return nil, fmt.Errorf("complete_task: append completion: %w", err)
	}

	// A completion attributed to a focus session contributes no minutes here:
	// the session's whole duration reaches the goals once, at session finalize.
	focusMinutes := int(cmd.TimeSpent.Minutes())
	if cmd.SessionID != "" {
		focusMinutes = 0
	}
	h.recordGoalProgress(ctx, cmd.UserID, credited, focusMinutes, now)
	h.attributeToSession(ctx, cmd.SessionID, cmd.UserID, credited)

	awarded, unlockEvents, err := h.achievements.CheckAndAward(ctx, p)
	if err != nil {
		// Credits are already committed; a failed check is retried on the
		// next completion because awarding is idempotent.
		h.log.Warn("achievement check failed",
			logger.UserID(cmd.UserID), logger.Err(err))
	}
	result.NewAchievements = awarded
	if len(awarded) > 0 {
		if err := h.profileRepo.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("complete_task: persist rewards: %w", err)
		}
	}

	completedEvent := shared.NewTaskCompletedEvent(cmd.UserID, t.ID, string(t.Difficulty), credited, t.TimeSpent, cmd.SolutionViewed)
	if res.Score != nil {
		completedEvent = completedEvent.WithScore(*res.Score)
	}
	result.Events = append(result.Events, completedEvent)
	result.Events = append(result.Events,
		shared.NewXPGainedEvent(cmd.UserID, res.XPCredited, credited, newTotal, "task_completion", t.ID))
	if outcome != profile.StreakUnchanged {
		result.Events = append(result.Events, shared.NewStreakUpdatedEvent(
			cmd.UserID, p.Streak.Current, p.Streak.Longest, previousStreak,
			outcome == profile.StreakReset, timeutil.DayKey(now)))
	}
	result.Events = append(result.Events, unlockEvents...)

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

// grade asks the external evaluator for a score. An unreachable evaluator
// degrades to boolean completion rather than blocking progress.
func (h *CompleteTaskHandler) grade(ctx context.Context, t *task.Task, answer string) (*int, string) {
	eval, err := h.evaluator.Evaluate(ctx, t.Text, t.Solution, answer)
	if err != nil {
		h.log.Warn("evaluator unavailable, accepting completion ungraded",
			logger.UserID(t.UserID), logger.TaskID(t.ID), logger.Err(err))
		return nil, ""
	}
	return &eval.Score, eval.Feedback
}

// recordGoalProgress feeds the accepted completion into the active daily and
// weekly goals. A missing goal is not an error; a finalized goal is skipped.
func (h *CompleteTaskHandler) recordGoalProgress(ctx context.Context, userID string, xp, focusMinutes int, now time.Time) {
	for _, kind := range []goal.Kind{goal.KindDaily, goal.KindWeekly} {
		g, err := h.goalRepo.GetActive(ctx, userID, kind, now)
		if err != nil {
			if !shared.IsNotFound(err) {
				h.log.Warn("failed to load active goal",
					logger.UserID(userID), logger.GoalKind(string(kind)), logger.Err(err))
			}
			continue
		}
		if err := g.RecordProgress(1, xp, focusMinutes); err != nil {
			continue
		}
		if err := h.goalRepo.Update(ctx, g); err != nil {
			h.log.Warn("failed to save goal progress",
				logger.UserID(userID), logger.GoalKind(string(kind)), logger.Err(err))
		}
	}
}

// attributeToSession adds the completion to a running focus session, when one
// was named. Session bookkeeping never fails the completion itself.
func (h *CompleteTaskHandler) attributeToSession(ctx context.Context, sessionID, userID string, xp int) {
	if sessionID == "" {
		return
	}
	s, err := h.activityRepo.GetSession(ctx, sessionID)
	if err != nil || s.UserID != userID {
		return
	}
	if err := s.RecordTaskCompletion(xp); err != nil {
		return
	}
	if err := h.activityRepo.UpdateSession(ctx, s); err != nil {
		h.log.Warn("failed to attribute completion to session",
			logger.UserID(userID), logger.String("session_id", sessionID), logger.Err(err))
	}
}
