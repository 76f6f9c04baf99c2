package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION TASK COMMAND
// Non-completing lifecycle moves: start, skip, fail. Completion has its own
// command because it fans out into XP, goals, and achievements.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionAction is a requested lifecycle move.
type TransitionAction string

const (
	// ActionStart marks the first interaction with the task.
	ActionStart TransitionAction = "start"

	// ActionSkip abandons the task. No XP is credited.
	ActionSkip TransitionAction = "skip"

	// ActionFail marks the task failed.
	ActionFail TransitionAction = "fail"
)

// TransitionTaskCommand requests one lifecycle move.
type TransitionTaskCommand struct {
	// UserID is the task owner.
	UserID string

	// TaskID is the task to move.
	TaskID string

	// Action is the requested move.
	Action TransitionAction

	// Reason is recorded in the transition log.
	Reason string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c TransitionTaskCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("transition_task: user_id is required")
	}
	if c.TaskID == "" {
		return errors.New("transition_task: task_id is required")
	}
	switch c.Action {
	case ActionStart, ActionSkip, ActionFail:
		return nil
	default:
		return fmt.Errorf("transition_task: unknown action: %s", c.Action)
	}
}

// TransitionTaskResult contains the task state after the move.
type TransitionTaskResult struct {
	Task   *task.Task
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TransitionTaskHandler handles the TransitionTaskCommand.
type TransitionTaskHandler struct {
	taskRepo       task.Repository
	eventPublisher shared.EventPublisher
	locks          *userLocks
}

// NewTransitionTaskHandler creates a new TransitionTaskHandler.
func NewTransitionTaskHandler(taskRepo task.Repository, eventPublisher shared.EventPublisher) *TransitionTaskHandler {
	return &TransitionTaskHandler{
		taskRepo:       taskRepo,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
	}
}

// Handle executes the transition command.
func (h *TransitionTaskHandler) Handle(ctx context.Context, cmd TransitionTaskCommand) (*TransitionTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("transition_task: validation failed: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	t, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("transition_task: %w", err)
	}
	if t.UserID != cmd.UserID {
		return nil, shared.ErrTaskNotFound
	}

	var eventType shared.EventType
	switch cmd.Action {
	case ActionStart:
		err = t.Start(cmd.Reason)
		eventType = shared.EventTaskStarted
	case ActionSkip:
		err = t.Skip(cmd.Reason)
		eventType = shared.EventTaskSkipped
	case ActionFail:
		err = t.Fail(cmd.Reason)
		eventType = shared.EventTaskFailed
	}
	if err != nil {
		return nil, fmt.Errorf("transition_task: %w", err)
	}

	if err := h.taskRepo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("transition_task: save task: %w", err)
	}

	result := &TransitionTaskResult{Task: t}
	event := taskTransitionEvent{
		BaseEvent: shared.NewBaseEvent(eventType, cmd.UserID),
		UserID:    cmd.UserID,
		TaskID:    t.ID,
		Status:    string(t.Status),
		Reason:    cmd.Reason,
	}
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, event)

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}

	return result, nil
}

// taskTransitionEvent carries a non-completing lifecycle move.
type taskTransitionEvent struct {
	shared.BaseEvent
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Payload implements shared.Event.
func (e taskTransitionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"task_id": e.TaskID,
		"status":  e.Status,
		"reason":  e.Reason,
	}
}
