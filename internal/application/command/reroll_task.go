package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REROLL TASK COMMAND
// Spends XP to swap an unwanted task for a freshly generated one. The spend
// goes through the profile's discount table, so the cost_discount reward
// makes rerolls cheaper.
// ══════════════════════════════════════════════════════════════════════════════

// RerollBaseCost is the undiscounted XP price of a reroll.
const RerollBaseCost = 100

// RerollAction is the discount-table key for rerolls.
const RerollAction = "reroll"

// RerollTaskCommand requests a task swap.
type RerollTaskCommand struct {
	// UserID is the task owner.
	UserID string

	// TaskID is the task to replace. It must not be terminal.
	TaskID string

	// Subject and Topic seed the replacement generation. Empty values fall
	// back to a generic task.
	Subject string
	Topic   string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RerollTaskCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("reroll_task: user_id is required")
	}
	if c.TaskID == "" {
		return errors.New("reroll_task: task_id is required")
	}
	return nil
}

// RerollTaskResult contains the replacement task and the spend outcome.
type RerollTaskResult struct {
	// NewTask replaces the old one, same difficulty tier.
	NewTask *task.Task

	// CostPaid is the effective XP price after discounts.
	CostPaid int

	// NewTotalXP is the balance after the spend.
	NewTotalXP int

	// UsedFallbackTask is set when the generator was unreachable.
	UsedFallbackTask bool

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RerollTaskHandler handles the RerollTaskCommand.
type RerollTaskHandler struct {
	profileRepo    profile.Repository
	taskRepo       task.Repository
	generator      task.Generator
	eventPublisher shared.EventPublisher
	locks          *userLocks
	log            *logger.Logger

	baseCost int
}

// RerollTaskHandlerConfig contains configuration for the handler.
type RerollTaskHandlerConfig struct {
	BaseCost int
}

// DefaultRerollTaskHandlerConfig returns default configuration.
func DefaultRerollTaskHandlerConfig() RerollTaskHandlerConfig {
	return RerollTaskHandlerConfig{BaseCost: RerollBaseCost}
}

// NewRerollTaskHandler creates a new RerollTaskHandler.
func NewRerollTaskHandler(
	profileRepo profile.Repository,
	taskRepo task.Repository,
	generator task.Generator,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config RerollTaskHandlerConfig,
) *RerollTaskHandler {
	if config.BaseCost <= 0 {
		config = DefaultRerollTaskHandlerConfig()
	}
	return &RerollTaskHandler{
		profileRepo:    profileRepo,
		taskRepo:       taskRepo,
		generator:      generator,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
		log:            log,
		baseCost:       config.BaseCost,
	}
}

// Handle executes the reroll command.
func (h *RerollTaskHandler) Handle(ctx context.Context, cmd RerollTaskCommand) (*RerollTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reroll_task: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	t, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reroll_task: %w", err)
	}
	if t.UserID != cmd.UserID {
		return nil, shared.ErrTaskNotFound
	}
	if t.Status.IsTerminal() {
		return nil, shared.ErrTaskTerminal
	}

	// Spend first. The balance check happens inside Spend; the caller sees
	// InsufficientBalance when the discounted cost is not covered.
	var cost, newTotal int
	_, err = h.profileRepo.Mutate(ctx, profile.UserID(cmd.UserID), func(p *profile.UserProfile) error {
		cost = p.CostOf(RerollAction, h.baseCost)
		total, err := p.Spend(cost)
		if err != nil {
			return err
		}
		newTotal = int(total)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reroll_task: %w", err)
	}

	result := &RerollTaskResult{CostPaid: cost, NewTotalXP: newTotal}

	req := task.GenerateRequest{
		Subject:    cmd.Subject,
		Topic:      cmd.Topic,
		Difficulty: t.Difficulty,
	}
	generated, err := h.generator.Generate(ctx, req)
	if err != nil {
		// The spend already happened; the user still gets a task.
		h.log.Warn("task generator unavailable, rerolling to fallback task",
			logger.UserID(cmd.UserID), logger.Err(err))
		generated = task.FallbackTask(req)
		result.UsedFallbackTask = true
	}

	if err := t.Skip("rerolled"); err != nil {
		return nil, fmt.Errorf("reroll_task: retire old task: %w", err)
	}
	if err := h.taskRepo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("reroll_task: save old task: %w", err)
	}

	fresh, err := t.Regenerate(generated.Text, generated.Solution)
	if err != nil {
		return nil, fmt.Errorf("reroll_task: %w", err)
	}
	if err := h.taskRepo.Create(ctx, fresh); err != nil {
		return nil, fmt.Errorf("reroll_task: save new task: %w", err)
	}
	result.NewTask = fresh

	result.Events = append(result.Events,
		shared.NewXPGainedEvent(cmd.UserID, -cost, -cost, newTotal, "reroll_spend", t.ID),
		taskRegeneratedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventTaskRegenerated, cmd.UserID),
			UserID:    cmd.UserID,
			OldTaskID: t.ID,
			NewTaskID: fresh.ID,
			CostPaid:  cost,
		},
	)
	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

// taskRegeneratedEvent carries a reroll.
type taskRegeneratedEvent struct {
	shared.BaseEvent
	UserID    string `json:"user_id"`
	OldTaskID string `json:"old_task_id"`
	NewTaskID string `json:"new_task_id"`
	CostPaid  int    `json:"cost_paid"`
}

// Payload implements shared.Event.
func (e taskRegeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"old_task_id": e.OldTaskID,
		"new_task_id": e.NewTaskID,
		"cost_paid":   e.CostPaid,
	}
}
