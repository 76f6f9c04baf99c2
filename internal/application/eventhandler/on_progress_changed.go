// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/learnquest/progress-engine/internal/application/query"
	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Drops the cached progress view whenever a mutation event touches anything
// the view shows. The next read rebuilds and re-caches it.
// ═══════════════════════════════════════════════════════════════════════════

// progressEvents are the event types that change the progress view.
var progressEvents = []shared.EventType{
	shared.EventProfileCreated,
	shared.EventXPGained,
	shared.EventXPSpent,
	shared.EventStreakUpdated,
	shared.EventGoalCreated,
	shared.EventGoalFinalized,
	shared.EventGoalRetargeted,
	shared.EventAchievementUnlocked,
	shared.EventSessionFinalized,
}

// OnProgressChangedHandler invalidates the progress cache.
type OnProgressChangedHandler struct {
	cache  query.ProgressCache
	logger *slog.Logger
}

// NewOnProgressChangedHandler creates the invalidation handler.
func NewOnProgressChangedHandler(cache query.ProgressCache, logger *slog.Logger) *OnProgressChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnProgressChangedHandler{
		cache:  cache,
		logger: logger.With("handler", "on_progress_changed"),
	}
}

// Handle implements shared.EventHandler. The aggregate ID of every progress
// event is the user ID.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	userID := event.AggregateID()
	if userID == "" {
		return nil
	}

	if err := h.cache.InvalidateProgress(context.Background(), userID); err != nil {
		// A stale cache entry expires on its own TTL; log and move on.
		h.logger.Warn("failed to invalidate progress cache",
			"user_id", userID,
			"event_type", string(event.EventType()),
			"error", err,
		)
	}
	return nil
}

// Register subscribes the handler to every progress-changing event type.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range progressEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
