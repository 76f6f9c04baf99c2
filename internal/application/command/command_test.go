package command

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ──────────────────────────────────────────────────────────────────────────────

type memProfiles struct {
	mu       sync.Mutex
	profiles map[profile.UserID]*profile.UserProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[profile.UserID]*profile.UserProfile)}
}

func (m *memProfiles) Create(_ context.Context, p *profile.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return shared.ErrProfileAlreadyExists
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *memProfiles) GetByID(_ context.Context, id profile.UserID) (*profile.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) Update(_ context.Context, p *profile.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *memProfiles) Mutate(ctx context.Context, id profile.UserID, fn func(p *profile.UserProfile) error) (*profile.UserProfile, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	return p, m.Update(ctx, p)
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]*task.Task)}
}

func (m *memTasks) Create(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *memTasks) GetByID(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return t, nil
}

func (m *memTasks) Update(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *memTasks) ListByUser(_ context.Context, userID string, from, to time.Time) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Task
	for _, t := range m.tasks {
		if t.UserID == userID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) CountByStatus(ctx context.Context, userID string, status task.Status, from, to time.Time) (int, error) {
	all, _ := m.ListByUser(ctx, userID, from, to)
	n := 0
	for _, t := range all {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memTasks) CompletionCountsByDifficulty(_ context.Context, userID string) (map[task.Difficulty]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[task.Difficulty]int)
	for _, t := range m.tasks {
		if t.UserID == userID && t.Status == task.StatusCompleted {
			out[t.Difficulty]++
		}
	}
	return out, nil
}

type memGoals struct {
	mu          sync.Mutex
	goals       map[string]*goal.Goal
	adjustments []goal.Adjustment
}

func newMemGoals() *memGoals {
	return &memGoals{goals: make(map[string]*goal.Goal)}
}

func (m *memGoals) Create(_ context.Context, g *goal.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.goals {
		if existing.UserID == g.UserID && existing.Kind == g.Kind &&
			existing.Status == goal.StatusActive && existing.Contains(g.PeriodStart) {
			return shared.ErrActiveGoalExists
		}
	}
	m.goals[g.ID] = g
	return nil
}

func (m *memGoals) GetByID(_ context.Context, id string) (*goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, shared.ErrGoalNotFound
	}
	return g, nil
}

func (m *memGoals) Update(_ context.Context, g *goal.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[g.ID] = g
	return nil
}

func (m *memGoals) GetActive(_ context.Context, userID string, kind goal.Kind, day time.Time) (*goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.goals {
		if g.UserID == userID && g.Kind == kind && g.Status == goal.StatusActive && g.Contains(day) {
			return g, nil
		}
	}
	return nil, shared.ErrGoalNotFound
}

func (m *memGoals) ListActive(_ context.Context, userID string) ([]*goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*goal.Goal
	for _, g := range m.goals {
		if g.UserID == userID && g.Status == goal.StatusActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGoals) ListExpiredActive(_ context.Context, asOf time.Time, limit int) ([]*goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*goal.Goal
	for _, g := range m.goals {
		if g.Status == goal.StatusActive && g.Expired(asOf) {
			out = append(out, g)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memGoals) ListFinalizedDaily(_ context.Context, userID string, limit int) ([]*goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*goal.Goal
	for _, g := range m.goals {
		if g.UserID == userID && g.Kind == goal.KindDaily && g.Status.IsTerminal() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memGoals) AppendAdjustment(_ context.Context, adj goal.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *memGoals) ListAdjustments(_ context.Context, userID string, limit int) ([]goal.Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []goal.Adjustment
	for i := len(m.adjustments) - 1; i >= 0 && len(out) < limit; i-- {
		if m.adjustments[i].UserID == userID {
			out = append(out, m.adjustments[i])
		}
	}
	return out, nil
}

type memActivity struct {
	mu        sync.Mutex
	records   []activity.CompletionRecord
	sessions  map[string]*activity.FocusSession
	snapshots map[string]activity.KPISnapshot
}

func newMemActivity() *memActivity {
	return &memActivity{
		sessions:  make(map[string]*activity.FocusSession),
		snapshots: make(map[string]activity.KPISnapshot),
	}
}

func (m *memActivity) AppendCompletion(_ context.Context, rec activity.CompletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memActivity) ListCompletions(_ context.Context, userID string, from, to time.Time) ([]activity.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []activity.CompletionRecord
	for _, r := range m.records {
		if r.UserID == userID && !r.CompletedAt.Before(from) && r.CompletedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memActivity) DistinctCompletionDays(ctx context.Context, userID string, from, to time.Time) (int, error) {
	recs, _ := m.ListCompletions(ctx, userID, from, to)
	days := make(map[time.Time]bool)
	for _, r := range recs {
		days[r.Day()] = true
	}
	return len(days), nil
}

func (m *memActivity) SolutionViewRate(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	recs, _ := m.ListCompletions(ctx, userID, from, to)
	if len(recs) == 0 {
		return 0, nil
	}
	viewed := 0
	for _, r := range recs {
		if r.SolutionViewed {
			viewed++
		}
	}
	return float64(viewed) / float64(len(recs)), nil
}

func (m *memActivity) CreateSession(_ context.Context, s *activity.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memActivity) GetSession(_ context.Context, id string) (*activity.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

func (m *memActivity) UpdateSession(_ context.Context, s *activity.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memActivity) ListFinalizedSessions(_ context.Context, userID string, from, to time.Time) ([]*activity.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*activity.FocusSession
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsFinalized() && !s.EndedAt.Before(from) && s.EndedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memActivity) CountSessionsByQuality(_ context.Context, userID string) (map[activity.Quality]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[activity.Quality]int)
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsFinalized() {
			out[s.Quality]++
		}
	}
	return out, nil
}

func (m *memActivity) WriteKPISnapshot(_ context.Context, snap activity.KPISnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snap.UserID + "|" + snap.Day.Format(time.DateOnly)
	if _, ok := m.snapshots[key]; ok {
		return nil
	}
	m.snapshots[key] = snap
	return nil
}

func (m *memActivity) ListKPISnapshots(_ context.Context, userID string, from, to time.Time) ([]activity.KPISnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []activity.KPISnapshot
	for _, s := range m.snapshots {
		if s.UserID == userID && !s.Day.Before(from) && s.Day.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

type memAchievements struct {
	mu     sync.Mutex
	earned []achievement.Earned
}

func (m *memAchievements) Award(_ context.Context, e achievement.Earned) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.earned {
		if existing.UserID == e.UserID && existing.AchievementID == e.AchievementID {
			return nil
		}
	}
	m.earned = append(m.earned, e)
	return nil
}

func (m *memAchievements) ListByUser(_ context.Context, userID string) ([]achievement.Earned, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []achievement.Earned
	for i := len(m.earned) - 1; i >= 0; i-- {
		if m.earned[i].UserID == userID {
			out = append(out, m.earned[i])
		}
	}
	return out, nil
}

func (m *memAchievements) EarnedSet(_ context.Context, userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, e := range m.earned {
		if e.UserID == userID {
			out[e.AchievementID] = true
		}
	}
	return out, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.EventType
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type stubGenerator struct {
	generated task.GeneratedTask
	err       error
}

func (s stubGenerator) Generate(context.Context, task.GenerateRequest) (task.GeneratedTask, error) {
	return s.generated, s.err
}

type stubEvaluator struct {
	eval task.Evaluation
	err  error
}

func (s stubEvaluator) Evaluate(context.Context, string, string, string) (task.Evaluation, error) {
	return s.eval, s.err
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	profiles *memProfiles
	tasks    *memTasks
	goals    *memGoals
	activity *memActivity
	earned   *memAchievements
	pub      *capturePublisher
	checker  *AchievementChecker
	log      *logger.Logger
}

func newFixture() *fixture {
	f := &fixture{
		profiles: newMemProfiles(),
		tasks:    newMemTasks(),
		goals:    newMemGoals(),
		activity: newMemActivity(),
		earned:   &memAchievements{},
		pub:      &capturePublisher{},
		log:      logger.Default(),
	}
	f.checker = NewAchievementChecker(
		achievement.NewEngine(achievement.DefaultDefinitions()),
		f.earned, f.tasks, f.activity)
	return f
}

func (f *fixture) seedUser(t *testing.T, userID string) *profile.UserProfile {
	t.Helper()
	p, err := profile.NewUserProfile(profile.UserID(userID))
	assert.NoError(t, err)
	assert.NoError(t, f.profiles.Create(context.Background(), p))
	return p
}

func (f *fixture) seedTask(t *testing.T, userID string, d task.Difficulty) *task.Task {
	t.Helper()
	tk, err := task.NewTask(userID, "prove the statement", "use induction", d)
	assert.NoError(t, err)
	assert.NoError(t, f.tasks.Create(context.Background(), tk))
	return tk
}

func (f *fixture) completeHandler() *CompleteTaskHandler {
	return NewCompleteTaskHandler(f.profiles, f.tasks, f.goals, f.activity,
		stubEvaluator{err: shared.ErrEvaluatorUnavailable}, f.checker, f.pub, f.log)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestOnboardCreatesProfileGoalsAndFirstTask(t *testing.T) {
	f := newFixture()
	h := NewOnboardUserHandler(f.profiles, f.goals, f.tasks,
		stubGenerator{err: shared.ErrGeneratorUnavailable}, f.pub, f.log)

	res, err := h.Handle(context.Background(), OnboardUserCommand{
		UserID:                  "user-1",
		Subject:                 "algebra",
		Motivation:              goal.LevelHigh,
		Urgency:                 goal.LevelMedium,
		WeeklyTimeBudgetMinutes: 420,
	})
	assert.NoError(t, err)

	assert.Equal(t, 1.0, res.Profile.XPMultiplier)
	assert.Equal(t, 4, res.DailyGoal.TargetTasks)
	assert.Equal(t, 28, res.WeeklyGoal.TargetTasks)
	assert.True(t, res.UsedFallbackTask)
	assert.NotEmpty(t, res.FirstTask.Text)
	assert.Equal(t, task.StatusNew, res.FirstTask.Status)
}

func TestOnboardRejectsDuplicateUser(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	h := NewOnboardUserHandler(f.profiles, f.goals, f.tasks, stubGenerator{}, f.pub, f.log)

	_, err := h.Handle(context.Background(), OnboardUserCommand{
		UserID:     "user-1",
		Motivation: goal.LevelMedium,
		Urgency:    goal.LevelMedium,
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestCompleteTaskCreditsEverything(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyEasy)

	daily, err := goal.NewDailyGoal("user-1", time.Now(), goal.Targets{Tasks: 3, XP: 450})
	assert.NoError(t, err)
	assert.NoError(t, f.goals.Create(context.Background(), daily))

	res, err := f.completeHandler().Handle(context.Background(), CompleteTaskCommand{
		UserID:    "user-1",
		TaskID:    tk.ID,
		TimeSpent: 5 * time.Minute,
	})
	assert.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, 50, res.XPCredited)
	assert.Equal(t, 50, res.NewTotalXP)
	assert.Equal(t, 1, res.CurrentStreak)

	assert.Equal(t, 1, daily.ActualTasks)
	assert.Equal(t, 50, daily.ActualXP)
	assert.Equal(t, 5, daily.ActualFocusMinutes)

	recs, _ := f.activity.ListCompletions(context.Background(), "user-1", time.Time{}, time.Now().Add(time.Hour))
	assert.Len(t, recs, 1)
	assert.Equal(t, 50, recs[0].XPCredited)

	// first task ever completed unlocks the starter achievement
	assert.Len(t, res.NewAchievements, 1)
	assert.Equal(t, "first_steps", res.NewAchievements[0].AchievementID)
	p, _ := f.profiles.GetByID(context.Background(), "user-1")
	assert.True(t, p.HasFeature("daily_insights"))

	assert.Contains(t, f.pub.types(), shared.EventTaskCompleted)
	assert.Contains(t, f.pub.types(), shared.EventXPGained)
	assert.Contains(t, f.pub.types(), shared.EventStreakUpdated)
	assert.Contains(t, f.pub.types(), shared.EventAchievementUnlocked)
}

func TestCompleteTaskAppliesMultiplier(t *testing.T) {
	f := newFixture()
	p := f.seedUser(t, "user-1")
	p.SetMultiplier(1.5)
	tk := f.seedTask(t, "user-1", task.DifficultyMedium)

	res, err := f.completeHandler().Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1",
		TaskID: tk.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, 225, res.XPCredited) // 150 × 1.5
}

func TestCompleteTaskBelowThresholdKeepsTaskOpen(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyHard)

	score := 40
	res, err := f.completeHandler().Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1",
		TaskID: tk.ID,
		Score:  &score,
	})
	assert.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Zero(t, res.XPCredited)
	assert.Equal(t, task.StatusInProgress, tk.Status)

	p, _ := f.profiles.GetByID(context.Background(), "user-1")
	assert.Equal(t, profile.XP(0), p.TotalXP)

	recs, _ := f.activity.ListCompletions(context.Background(), "user-1", time.Time{}, time.Now().Add(time.Hour))
	assert.Empty(t, recs)
}

func TestCompleteTaskEvaluatorOutageDegradesToUngraded(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyMedium)

	// evaluator stub in the fixture always fails
	res, err := f.completeHandler().Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1",
		TaskID: tk.ID,
		Answer: "my answer",
	})
	assert.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Nil(t, res.Score)
	assert.Equal(t, 150, res.XPCredited)
}

func TestCompleteTaskGradedThroughEvaluator(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyHard)

	h := NewCompleteTaskHandler(f.profiles, f.tasks, f.goals, f.activity,
		stubEvaluator{eval: task.Evaluation{Score: 80, Feedback: "solid"}}, f.checker, f.pub, f.log)

	res, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1",
		TaskID: tk.ID,
		Answer: "my answer",
	})
	assert.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 80, *res.Score)
	assert.Equal(t, "solid", res.Feedback)
	assert.Equal(t, 240, res.XPCredited) // 300 × 0.8
}

func TestCompleteTaskRejectsForeignTask(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	f.seedUser(t, "user-2")
	tk := f.seedTask(t, "user-2", task.DifficultyEasy)

	_, err := f.completeHandler().Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1",
		TaskID: tk.ID,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRerollSpendsAndSwapsTask(t *testing.T) {
	f := newFixture()
	p := f.seedUser(t, "user-1")
	p.ApplyXP(200, 1.0)
	tk := f.seedTask(t, "user-1", task.DifficultyMedium)

	h := NewRerollTaskHandler(f.profiles, f.tasks,
		stubGenerator{generated: task.GeneratedTask{Text: "fresh task", Solution: "fresh solution"}},
		f.pub, f.log, DefaultRerollTaskHandlerConfig())

	res, err := h.Handle(context.Background(), RerollTaskCommand{UserID: "user-1", TaskID: tk.ID})
	assert.NoError(t, err)

	assert.Equal(t, 100, res.CostPaid)
	assert.Equal(t, 100, res.NewTotalXP)
	assert.Equal(t, task.StatusSkipped, tk.Status)
	assert.Equal(t, "fresh task", res.NewTask.Text)
	assert.Equal(t, task.DifficultyMedium, res.NewTask.Difficulty)
	assert.NotEqual(t, tk.ID, res.NewTask.ID)
}

func TestRerollHonorsCostDiscount(t *testing.T) {
	f := newFixture()
	p := f.seedUser(t, "user-1")
	p.ApplyXP(100, 1.0)
	p.ApplyCostDiscount(RerollAction, 20)
	tk := f.seedTask(t, "user-1", task.DifficultyEasy)

	h := NewRerollTaskHandler(f.profiles, f.tasks,
		stubGenerator{generated: task.GeneratedTask{Text: "fresh"}},
		f.pub, f.log, DefaultRerollTaskHandlerConfig())

	res, err := h.Handle(context.Background(), RerollTaskCommand{UserID: "user-1", TaskID: tk.ID})
	assert.NoError(t, err)
	assert.Equal(t, 80, res.CostPaid)
	assert.Equal(t, 20, res.NewTotalXP)
}

func TestRerollInsufficientBalance(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyEasy)

	h := NewRerollTaskHandler(f.profiles, f.tasks, stubGenerator{}, f.pub, f.log,
		DefaultRerollTaskHandlerConfig())

	_, err := h.Handle(context.Background(), RerollTaskCommand{UserID: "user-1", TaskID: tk.ID})
	assert.True(t, shared.IsInsufficientBalance(err))
	assert.Equal(t, task.StatusNew, tk.Status)
}

func TestFinalizeGoalsRollsOverAndRetargets(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	// seven finalized daily periods, target hit every day
	for i := 8; i >= 2; i-- {
		g, err := goal.NewDailyGoal("user-1", today.AddDate(0, 0, -i), goal.Targets{Tasks: 3, XP: 450})
		assert.NoError(t, err)
		assert.NoError(t, g.RecordProgress(3, 450, 0))
		g.Finalize()
		f.goals.goals[g.ID] = g
	}

	// yesterday's goal is still active and due
	due, err := goal.NewDailyGoal("user-1", today.AddDate(0, 0, -1), goal.Targets{Tasks: 3, XP: 450})
	assert.NoError(t, err)
	assert.NoError(t, due.RecordProgress(3, 450, 0))
	assert.NoError(t, f.goals.Create(ctx, due))

	h := NewFinalizeGoalsHandler(f.goals, f.pub, f.log)
	res, err := h.Handle(ctx, FinalizeGoalsCommand{UserID: "user-1", Today: today})
	assert.NoError(t, err)
	assert.Len(t, res.Finalized, 1)

	fin := res.Finalized[0]
	assert.Equal(t, goal.StatusCompleted, fin.Goal.Status)
	assert.True(t, fin.Retargeted)
	assert.Equal(t, goal.DirectionIncrease, fin.Adjustment.Direction)
	assert.Equal(t, 4, fin.Next.TargetTasks)
	assert.Equal(t, 600, fin.Next.TargetXP) // per-task planning value kept
	assert.True(t, fin.Next.Contains(today))

	adjs, _ := f.goals.ListAdjustments(ctx, "user-1", 10)
	assert.Len(t, adjs, 1)

	assert.Contains(t, f.pub.types(), shared.EventGoalFinalized)
	assert.Contains(t, f.pub.types(), shared.EventGoalRetargeted)
}

func TestFinalizeGoalsTooLittleHistoryKeepsTarget(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	due, err := goal.NewDailyGoal("user-1", today.AddDate(0, 0, -1), goal.Targets{Tasks: 3, XP: 450})
	assert.NoError(t, err)
	assert.NoError(t, f.goals.Create(ctx, due))

	h := NewFinalizeGoalsHandler(f.goals, f.pub, f.log)
	res, err := h.Handle(ctx, FinalizeGoalsCommand{UserID: "user-1", Today: today})
	assert.NoError(t, err)
	assert.Len(t, res.Finalized, 1)

	fin := res.Finalized[0]
	assert.False(t, fin.Retargeted)
	assert.Equal(t, 3, fin.Next.TargetTasks)

	adjs, _ := f.goals.ListAdjustments(ctx, "user-1", 10)
	assert.Empty(t, adjs)
}

func TestFinalizeGoalsAfterGapOpensCurrentPeriod(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	// the last finalize ran three days ago; the stale goal is long expired
	stale, err := goal.NewDailyGoal("user-1", today.AddDate(0, 0, -3), goal.Targets{Tasks: 3, XP: 450})
	assert.NoError(t, err)
	assert.NoError(t, f.goals.Create(ctx, stale))

	h := NewFinalizeGoalsHandler(f.goals, f.pub, f.log)
	res, err := h.Handle(ctx, FinalizeGoalsCommand{UserID: "user-1", Today: today})
	assert.NoError(t, err)
	assert.Len(t, res.Finalized, 1)
	assert.True(t, res.Finalized[0].Next.Contains(today))

	current, err := f.goals.GetActive(ctx, "user-1", goal.KindDaily, today)
	assert.NoError(t, err)
	assert.Equal(t, res.Finalized[0].Next.ID, current.ID)
	assert.Equal(t, goal.StatusActive, current.Status)
}

func TestFinalizeGoalsIdempotentSweep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	due, err := goal.NewDailyGoal("user-1", today.AddDate(0, 0, -1), goal.Targets{Tasks: 3})
	assert.NoError(t, err)
	assert.NoError(t, f.goals.Create(ctx, due))

	h := NewFinalizeGoalsHandler(f.goals, f.pub, f.log)
	n, err := h.Sweep(ctx, today, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	// second sweep finds nothing due
	n, err = h.Sweep(ctx, today, 100)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionAttributedCompletionCountsMinutesOnce(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyEasy)
	ctx := context.Background()

	daily, err := goal.NewDailyGoal("user-1", time.Now(), goal.Targets{Tasks: 3, XP: 450})
	assert.NoError(t, err)
	assert.NoError(t, f.goals.Create(ctx, daily))

	sessions := NewFocusSessionHandler(f.profiles, f.activity, f.goals, f.checker, f.pub, f.log)
	started := time.Now().Add(-25 * time.Minute)
	s, err := sessions.HandleStart(ctx, StartFocusSessionCommand{
		UserID:          "user-1",
		PlannedDuration: 25 * time.Minute,
		StartedAt:       started,
	})
	assert.NoError(t, err)

	res, err := f.completeHandler().Handle(ctx, CompleteTaskCommand{
		UserID:    "user-1",
		TaskID:    tk.ID,
		TimeSpent: 25 * time.Minute,
		SessionID: s.ID,
	})
	assert.NoError(t, err)
	assert.True(t, res.Accepted)

	_, err = sessions.HandleFinalize(ctx, FinalizeFocusSessionCommand{
		UserID:    "user-1",
		SessionID: s.ID,
		EndedAt:   started.Add(25 * time.Minute),
	})
	assert.NoError(t, err)

	// task and XP credited at completion time, the 25 session minutes once
	// at finalize; not 25 from the task plus 25 from the session
	assert.Equal(t, 1, daily.ActualTasks)
	assert.Equal(t, 50, daily.ActualXP)
	assert.Equal(t, 25, daily.ActualFocusMinutes)
}

func TestFocusSessionLifecycle(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")

	h := NewFocusSessionHandler(f.profiles, f.activity, f.goals, f.checker, f.pub, f.log)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, err := h.HandleStart(ctx, StartFocusSessionCommand{
		UserID:          "user-1",
		PlannedDuration: 25 * time.Minute,
		StartedAt:       started,
	})
	assert.NoError(t, err)

	assert.NoError(t, h.HandleInterruption(ctx, RecordInterruptionCommand{UserID: "user-1", SessionID: s.ID}))

	assert.NoError(t, s.RecordTaskCompletion(300))
	assert.NoError(t, f.activity.UpdateSession(ctx, s))

	res, err := h.HandleFinalize(ctx, FinalizeFocusSessionCommand{
		UserID:    "user-1",
		SessionID: s.ID,
		EndedAt:   started.Add(20 * time.Minute),
	})
	assert.NoError(t, err)

	assert.True(t, res.Session.IsFinalized())
	assert.InDelta(t, 15.0, res.Session.EfficiencyScore, 1e-9)
	assert.Equal(t, activity.QualityGood, res.Session.Quality) // interrupted, cannot be excellent
	assert.Contains(t, f.pub.types(), shared.EventSessionFinalized)

	// finalizing twice fails
	_, err = h.HandleFinalize(ctx, FinalizeFocusSessionCommand{
		UserID:    "user-1",
		SessionID: s.ID,
		EndedAt:   started.Add(30 * time.Minute),
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyFinalized)
}

func TestTransitionTaskSkipAndTerminalImmutability(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "user-1")
	tk := f.seedTask(t, "user-1", task.DifficultyEasy)

	h := NewTransitionTaskHandler(f.tasks, f.pub)
	ctx := context.Background()

	res, err := h.Handle(ctx, TransitionTaskCommand{
		UserID: "user-1", TaskID: tk.ID, Action: ActionSkip, Reason: "too easy",
	})
	assert.NoError(t, err)
	assert.Equal(t, task.StatusSkipped, res.Task.Status)

	_, err = h.Handle(ctx, TransitionTaskCommand{
		UserID: "user-1", TaskID: tk.ID, Action: ActionStart,
	})
	assert.ErrorIs(t, err, shared.ErrTaskTerminal)
}
