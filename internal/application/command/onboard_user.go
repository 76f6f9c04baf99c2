package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARD USER COMMAND
// Creates the profile, derives the initial daily and weekly goals from the
// intake answers, and hands the user their first task.
// ══════════════════════════════════════════════════════════════════════════════

// OnboardUserCommand contains the intake data for a new user.
type OnboardUserCommand struct {
	// UserID is the external identity of the new user.
	UserID string

	// Subject and Topic seed the first generated task.
	Subject string
	Topic   string

	// Motivation and Urgency are the qualitative intake answers.
	Motivation goal.Level
	Urgency    goal.Level

	// WeeklyTimeBudgetMinutes is the declared weekly study budget.
	WeeklyTimeBudgetMinutes int

	// FirstTaskDifficulty is the tier of the first task. Defaults to easy.
	FirstTaskDifficulty task.Difficulty

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c OnboardUserCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("onboard_user: user_id is required")
	}
	if !c.Motivation.IsValid() {
		return fmt.Errorf("onboard_user: invalid motivation level: %s", c.Motivation)
	}
	if !c.Urgency.IsValid() {
		return fmt.Errorf("onboard_user: invalid urgency level: %s", c.Urgency)
	}
	if c.WeeklyTimeBudgetMinutes < 0 {
		return errors.New("onboard_user: weekly time budget cannot be negative")
	}
	if c.FirstTaskDifficulty != "" && !c.FirstTaskDifficulty.IsValid() {
		return fmt.Errorf("onboard_user: invalid difficulty: %s", c.FirstTaskDifficulty)
	}
	return nil
}

// OnboardUserResult contains the created state.
type OnboardUserResult struct {
	Profile    *profile.UserProfile
	DailyGoal  *goal.Goal
	WeeklyGoal *goal.Goal

	// FirstTask is the generated starter task. When the generator was
	// unreachable this is the generic fallback task.
	FirstTask         *task.Task
	UsedFallbackTask  bool

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnboardUserHandler handles the OnboardUserCommand.
type OnboardUserHandler struct {
	profileRepo    profile.Repository
	goalRepo       goal.Repository
	taskRepo       task.Repository
	generator      task.Generator
	eventPublisher shared.EventPublisher
	locks          *userLocks
	log            *logger.Logger
}

// NewOnboardUserHandler creates a new OnboardUserHandler.
func NewOnboardUserHandler(
	profileRepo profile.Repository,
	goalRepo goal.Repository,
	taskRepo task.Repository,
	generator task.Generator,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *OnboardUserHandler {
	return &OnboardUserHandler{
		profileRepo:    profileRepo,
		goalRepo:       goalRepo,
		taskRepo:       taskRepo,
		generator:      generator,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
		log:            log,
	}
}

// Handle executes the onboarding command.
func (h *OnboardUserHandler) Handle(ctx context.Context, cmd OnboardUserCommand) (*OnboardUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("onboard_user: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	p, err := profile.NewUserProfile(profile.UserID(cmd.UserID))
	if err != nil {
		return nil, fmt.Errorf("onboard_user: %w", err)
	}
	if err := h.profileRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("onboard_user: create profile: %w", err)
	}

	now := time.Now()
	daily, weekly, err := goal.InitialGoals(cmd.UserID, now, goal.IntakeParams{
		Motivation:              cmd.Motivation,
		Urgency:                 cmd.Urgency,
		WeeklyTimeBudgetMinutes: cmd.WeeklyTimeBudgetMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("onboard_user: initial goals: %w", err)
	}
	if err := h.goalRepo.Create(ctx, daily); err != nil {
		return nil, fmt.Errorf("onboard_user: create daily goal: %w", err)
	}
	if err := h.goalRepo.Create(ctx, weekly); err != nil {
		return nil, fmt.Errorf("onboard_user: create weekly goal: %w", err)
	}

	result := &OnboardUserResult{
		Profile:    p,
		DailyGoal:  daily,
		WeeklyGoal: weekly,
	}

	difficulty := cmd.FirstTaskDifficulty
	if difficulty == "" {
		difficulty = task.DifficultyEasy
	}
	req := task.GenerateRequest{
		Subject:    cmd.Subject,
		Topic:      cmd.Topic,
		Difficulty: difficulty,
	}

	generated, err := h.generator.Generate(ctx, req)
	if err != nil {
		// A dead generator never blocks onboarding.
		h.log.Warn("task generator unavailable, using fallback task",
			logger.UserID(cmd.UserID), logger.Err(err))
		generated = task.FallbackTask(req)
		result.UsedFallbackTask = true
	}

	first, err := task.NewTask(cmd.UserID, generated.Text, generated.Solution, difficulty)
	if err != nil {
		return nil, fmt.Errorf("onboard_user: create first task: %w", err)
	}
	if err := h.taskRepo.Create(ctx, first); err != nil {
		return nil, fmt.Errorf("onboard_user: save first task: %w", err)
	}
	result.FirstTask = first

	event := shared.NewBaseEvent(shared.EventProfileCreated, cmd.UserID)
	if cmd.CorrelationID != "" {
		event = event.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, profileCreatedEvent{BaseEvent: event, UserID: cmd.UserID, DailyTarget: daily.TargetTasks})

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

// profileCreatedEvent carries the onboarding outcome.
type profileCreatedEvent struct {
	shared.BaseEvent
	UserID      string `json:"user_id"`
	DailyTarget int    `json:"daily_target"`
}

// Payload implements shared.Event.
func (e profileCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"daily_target": e.DailyTarget,
	}
}
