package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE GOALS COMMAND
// Freezes expired goal periods, rolls the next period over, and runs the
// adaptive retargeting policy on daily goals. Invoked per user on demand and
// across all users by the scheduled sweep.
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGoalsCommand requests finalization of one user's expired goals.
type FinalizeGoalsCommand struct {
	UserID string

	// Today defaults to the current UTC day when zero.
	Today time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c FinalizeGoalsCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("finalize_goals: user_id is required")
	}
	return nil
}

// FinalizedGoal describes one frozen period and its successor.
type FinalizedGoal struct {
	Goal *goal.Goal
	Next *goal.Goal

	// Adjustment is the retargeting evaluation run for daily goals. Zero
	// value when the history was too short to evaluate.
	Adjustment goal.Adjustment
	Retargeted bool
}

// FinalizeGoalsResult contains everything the command froze.
type FinalizeGoalsResult struct {
	Finalized []FinalizedGoal
	Events    []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGoalsHandler handles goal finalization and rollover.
type FinalizeGoalsHandler struct {
	goalRepo       goal.Repository
	eventPublisher shared.EventPublisher
	locks          *userLocks
	log            *logger.Logger
}

// NewFinalizeGoalsHandler creates a new FinalizeGoalsHandler.
func NewFinalizeGoalsHandler(goalRepo goal.Repository, eventPublisher shared.EventPublisher, log *logger.Logger) *FinalizeGoalsHandler {
	return &FinalizeGoalsHandler{
		goalRepo:       goalRepo,
		eventPublisher: eventPublisher,
		locks:          newUserLocks(),
		log:            log,
	}
}

// Handle finalizes one user's expired goals.
func (h *FinalizeGoalsHandler) Handle(ctx context.Context, cmd FinalizeGoalsCommand) (*FinalizeGoalsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("finalize_goals: validation failed: %w", err)
	}

	today := cmd.Today
	if today.IsZero() {
		today = time.Now()
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	active, err := h.goalRepo.ListActive(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("finalize_goals: list active: %w", err)
	}

	result := &FinalizeGoalsResult{}
	for _, g := range active {
		if !g.Expired(today) {
			continue
		}
		fin, err := h.finalizeOne(ctx, g, today)
		if err != nil {
			return nil, err
		}
		result.Finalized = append(result.Finalized, fin)
		result.Events = append(result.Events, h.eventsFor(fin)...)
	}

	for _, e := range result.Events {
		_ = h.eventPublisher.Publish(e)
	}
	return result, nil
}

// Sweep finalizes expired goals across all users. Used by the scheduled job;
// a single failing user does not stop the sweep.
func (h *FinalizeGoalsHandler) Sweep(ctx context.Context, asOf time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	expired, err := h.goalRepo.ListExpiredActive(ctx, asOf, batchSize)
	if err != nil {
		return 0, fmt.Errorf("finalize_goals: list expired: %w", err)
	}

	finalized := 0
	for _, g := range expired {
		err := func() error {
			unlock := h.locks.Lock(g.UserID)
			defer unlock()

			// Reload under the lock; another command may have finalized it.
			fresh, err := h.goalRepo.GetByID(ctx, g.ID)
			if err != nil {
				return err
			}
			if fresh.Status.IsTerminal() {
				return nil
			}

			fin, err := h.finalizeOne(ctx, fresh, asOf)
			if err != nil {
				return err
			}
			finalized++
			for _, e := range h.eventsFor(fin) {
				_ = h.eventPublisher.Publish(e)
			}
			return nil
		}()
		if err != nil {
			h.log.Error("failed to finalize goal",
				logger.UserID(g.UserID), logger.String("goal_id", g.ID), logger.Err(err))
		}
	}
	return finalized, nil
}

// finalizeOne freezes a goal, creates its successor, and retargets daily
// goals from the finalized history. The successor always covers today: a
// finalization that ran late anchors it at the period containing today
// rather than at the long-expired next period.
func (h *FinalizeGoalsHandler) finalizeOne(ctx context.Context, g *goal.Goal, today time.Time) (FinalizedGoal, error) {
	g.Finalize()
	if err := h.goalRepo.Update(ctx, g); err != nil {
		return FinalizedGoal{}, fmt.Errorf("finalize_goals: save goal: %w", err)
	}

	next, err := g.NextPeriod(today)
	if err != nil {
		return FinalizedGoal{}, fmt.Errorf("finalize_goals: next period: %w", err)
	}

	fin := FinalizedGoal{Goal: g, Next: next}

	if g.Kind == goal.KindDaily {
		h.retarget(ctx, g.UserID, next, &fin)
	}

	if err := h.goalRepo.Create(ctx, next); err != nil {
		if shared.IsAlreadyExists(err) {
			// The next period was already opened by a concurrent command.
			fin.Next = nil
			return fin, nil
		}
		return FinalizedGoal{}, fmt.Errorf("finalize_goals: create next period: %w", err)
	}
	return fin, nil
}

// retarget runs the adjustment policy over the finalized daily history and
// applies the verdict to the successor goal. Too little history is a defined
// no-op; the evaluation itself is always logged when it happens.
func (h *FinalizeGoalsHandler) retarget(ctx context.Context, userID string, next *goal.Goal, fin *FinalizedGoal) {
	history, err := h.goalRepo.ListFinalizedDaily(ctx, userID, goal.HistoryWindow)
	if err != nil {
		h.log.Warn("failed to load retargeting history",
			logger.UserID(userID), logger.Err(err))
		return
	}

	adj, err := goal.EvaluateRetarget(userID, history, next.TargetTasks)
	if err != nil {
		if !shared.IsInsufficientSample(err) {
			h.log.Warn("retargeting evaluation failed",
				logger.UserID(userID), logger.Err(err))
		}
		return
	}

	if err := h.goalRepo.AppendAdjustment(ctx, adj); err != nil {
		h.log.Warn("failed to log retargeting adjustment",
			logger.UserID(userID), logger.Err(err))
	}
	fin.Adjustment = adj
	fin.Retargeted = adj.Changed()

	if adj.Changed() {
		// Keep the per-task XP planning value when the target moves.
		if next.TargetTasks > 0 {
			next.TargetXP = next.TargetXP / next.TargetTasks * adj.NewTarget
		}
		next.TargetTasks = adj.NewTarget
	}
}

// eventsFor builds the events one finalized goal produces.
func (h *FinalizeGoalsHandler) eventsFor(fin FinalizedGoal) []shared.Event {
	g := fin.Goal
	events := []shared.Event{
		shared.NewGoalFinalizedEvent(g.UserID, g.ID, string(g.Kind), string(g.Status),
			g.CompletionRate, g.ActualTasks, g.TargetTasks),
	}
	if fin.Retargeted {
		adj := fin.Adjustment
		events = append(events, shared.NewGoalRetargetedEvent(g.UserID, string(adj.Direction),
			adj.OldTarget, adj.NewTarget, adj.SuccessRate, adj.Reason))
	}
	return events
}
