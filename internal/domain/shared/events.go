// Package shared contains common domain types, errors, and events that are
// used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the engine.
const (
	// Profile events
	EventProfileCreated EventType = "profile.created"
	EventXPGained       EventType = "profile.xp_gained"
	EventXPSpent        EventType = "profile.xp_spent"
	EventStreakUpdated  EventType = "profile.streak_updated"

	// Task events
	EventTaskCreated     EventType = "task.created"
	EventTaskStarted     EventType = "task.started"
	EventTaskCompleted   EventType = "task.completed"
	EventTaskSkipped     EventType = "task.skipped"
	EventTaskFailed      EventType = "task.failed"
	EventTaskRegenerated EventType = "task.regenerated"

	// Goal events
	EventGoalCreated    EventType = "goal.created"
	EventGoalFinalized  EventType = "goal.finalized"
	EventGoalRetargeted EventType = "goal.retargeted"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Activity events
	EventSessionFinalized EventType = "activity.session_finalized"
	EventKPISnapshotTaken EventType = "activity.kpi_snapshot_taken"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a user gains (or spends) XP.
type XPGainedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Delta    int    `json:"delta"`
	Credited int    `json:"credited"` // after multiplier and clamping
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // e.g., "task_completion", "reroll_spend"
	TaskID   string `json:"task_id,omitempty"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"delta":     e.Delta,
		"credited":  e.Credited,
		"new_total": e.NewTotal,
		"source":    e.Source,
		"task_id":   e.TaskID,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, delta, credited, newTotal int, source, taskID string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID),
		UserID:    userID,
		Delta:     delta,
		Credited:  credited,
		NewTotal:  newTotal,
		Source:    source,
		TaskID:    taskID,
	}
}

// StreakUpdatedEvent is emitted when a user's day streak changes.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	Current       int    `json:"current"`
	Longest       int    `json:"longest"`
	WasReset      bool   `json:"was_reset"`
	ActivityDate  string `json:"activity_date"` // YYYY-MM-DD
	PreviousValue int    `json:"previous_value"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current":        e.Current,
		"longest":        e.Longest,
		"was_reset":      e.WasReset,
		"activity_date":  e.ActivityDate,
		"previous_value": e.PreviousValue,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, current, longest, previous int, wasReset bool, activityDate string) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID),
		UserID:        userID,
		Current:       current,
		Longest:       longest,
		WasReset:      wasReset,
		ActivityDate:  activityDate,
		PreviousValue: previous,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Task Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskCompletedEvent is emitted when a task reaches the completed state.
type TaskCompletedEvent struct {
	BaseEvent
	UserID         string        `json:"user_id"`
	TaskID         string        `json:"task_id"`
	Difficulty     string        `json:"difficulty"`
	XPCredited     int           `json:"xp_credited"`
	TimeSpent      time.Duration `json:"time_spent"`
	SolutionViewed bool          `json:"solution_viewed"`
	Score          *int          `json:"score,omitempty"` // nil for boolean completions
}

// Payload implements Event interface.
func (e TaskCompletedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id":         e.UserID,
		"task_id":         e.TaskID,
		"difficulty":      e.Difficulty,
		"xp_credited":     e.XPCredited,
		"time_spent":      e.TimeSpent.String(),
		"solution_viewed": e.SolutionViewed,
	}
	if e.Score != nil {
		p["score"] = *e.Score
	}
	return p
}

// NewTaskCompletedEvent creates a new TaskCompletedEvent.
func NewTaskCompletedEvent(userID, taskID, difficulty string, xpCredited int, timeSpent time.Duration, solutionViewed bool) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent:      NewBaseEvent(EventTaskCompleted, userID),
		UserID:         userID,
		TaskID:         taskID,
		Difficulty:     difficulty,
		XPCredited:     xpCredited,
		TimeSpent:      timeSpent,
		SolutionViewed: solutionViewed,
	}
}

// WithScore attaches the graded score to the event.
func (e TaskCompletedEvent) WithScore(score int) TaskCompletedEvent {
	e.Score = &score
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Goal Events
// ═══════════════════════════════════════════════════════════════════════════

// GoalFinalizedEvent is emitted when a goal period is frozen.
type GoalFinalizedEvent struct {
	BaseEvent
	UserID         string  `json:"user_id"`
	GoalID         string  `json:"goal_id"`
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	CompletionRate float64 `json:"completion_rate"`
	ActualTasks    int     `json:"actual_tasks"`
	TargetTasks    int     `json:"target_tasks"`
}

// Payload implements Event interface.
func (e GoalFinalizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"goal_id":         e.GoalID,
		"kind":            e.Kind,
		"status":          e.Status,
		"completion_rate": e.CompletionRate,
		"actual_tasks":    e.ActualTasks,
		"target_tasks":    e.TargetTasks,
	}
}

// NewGoalFinalizedEvent creates a new GoalFinalizedEvent.
func NewGoalFinalizedEvent(userID, goalID, kind, status string, rate float64, actual, target int) GoalFinalizedEvent {
	return GoalFinalizedEvent{
		BaseEvent:      NewBaseEvent(EventGoalFinalized, userID),
		UserID:         userID,
		GoalID:         goalID,
		Kind:           kind,
		Status:         status,
		CompletionRate: rate,
		ActualTasks:    actual,
		TargetTasks:    target,
	}
}

// GoalRetargetedEvent is emitted when adaptive retargeting changes a target.
type GoalRetargetedEvent struct {
	BaseEvent
	UserID      string  `json:"user_id"`
	Direction   string  `json:"direction"` // increase, decrease, maintain
	OldTarget   int     `json:"old_target"`
	NewTarget   int     `json:"new_target"`
	SuccessRate float64 `json:"success_rate"`
	Reason      string  `json:"reason"`
}

// Payload implements Event interface.
func (e GoalRetargetedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"direction":    e.Direction,
		"old_target":   e.OldTarget,
		"new_target":   e.NewTarget,
		"success_rate": e.SuccessRate,
		"reason":       e.Reason,
	}
}

// NewGoalRetargetedEvent creates a new GoalRetargetedEvent.
func NewGoalRetargetedEvent(userID, direction string, oldTarget, newTarget int, rate float64, reason string) GoalRetargetedEvent {
	return GoalRetargetedEvent{
		BaseEvent:   NewBaseEvent(EventGoalRetargeted, userID),
		UserID:      userID,
		Direction:   direction,
		OldTarget:   oldTarget,
		NewTarget:   newTarget,
		SuccessRate: rate,
		Reason:      reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when a user earns an achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	RewardKind    string `json:"reward_kind"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"reward_kind":    e.RewardKind,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, rewardKind string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:        userID,
		AchievementID: achievementID,
		RewardKind:    rewardKind,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionFinalizedEvent is emitted when a focus session is finalized.
type SessionFinalizedEvent struct {
	BaseEvent
	UserID          string        `json:"user_id"`
	SessionID       string        `json:"session_id"`
	Duration        time.Duration `json:"duration"`
	TasksCompleted  int           `json:"tasks_completed"`
	XPEarned        int           `json:"xp_earned"`
	Interruptions   int           `json:"interruptions"`
	EfficiencyScore float64       `json:"efficiency_score"`
	Quality         string        `json:"quality"`
}

// Payload implements Event interface.
func (e SessionFinalizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"session_id":       e.SessionID,
		"duration":         e.Duration.String(),
		"tasks_completed":  e.TasksCompleted,
		"xp_earned":        e.XPEarned,
		"interruptions":    e.Interruptions,
		"efficiency_score": e.EfficiencyScore,
		"quality":          e.Quality,
	}
}

// NewSessionFinalizedEvent creates a new SessionFinalizedEvent.
func NewSessionFinalizedEvent(userID, sessionID string, duration time.Duration, tasks, xp, interruptions int, efficiency float64, quality string) SessionFinalizedEvent {
	return SessionFinalizedEvent{
		BaseEvent:       NewBaseEvent(EventSessionFinalized, userID),
		UserID:          userID,
		SessionID:       sessionID,
		Duration:        duration,
		TasksCompleted:  tasks,
		XPEarned:        xp,
		Interruptions:   interruptions,
		EfficiencyScore: efficiency,
		Quality:         quality,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
