package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnquest/progress-engine/internal/domain/achievement"
	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/goal"
	"github.com/learnquest/progress-engine/internal/domain/profile"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/pkg/timeutil"
)

// ──────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ──────────────────────────────────────────────────────────────────────────────

type memProfiles struct {
	byID map[profile.UserID]*profile.UserProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byID: make(map[profile.UserID]*profile.UserProfile)}
}

func (m *memProfiles) Create(_ context.Context, p *profile.UserProfile) error {
	m.byID[p.ID] = p
	return nil
}

func (m *memProfiles) GetByID(_ context.Context, id profile.UserID) (*profile.UserProfile, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) Update(_ context.Context, p *profile.UserProfile) error {
	m.byID[p.ID] = p
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
	return p, nil
}

type memGoals struct {
	goals       []*goal.Goal
	adjustments []goal.Adjustment
}

func (m *memGoals) Create(_ context.Context, g *goal.Goal) error {
	m.goals = append(m.goals, g)
	return nil
}

func (m *memGoals) GetByID(_ context.Context, id string) (*goal.Goal, error) {
	for _, g := range m.goals {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, shared.ErrGoalNotFound
}

func (m *memGoals) Update(_ context.Context, g *goal.Goal) error { return nil }

func (m *memGoals) GetActive(_ context.Context, userID string, kind goal.Kind, day time.Time) (*goal.Goal, error) {
	for _, g := range m.goals {
		if g.UserID == userID && g.Kind == kind && g.Status == goal.StatusActive &&
			!day.Before(g.PeriodStart) && day.Before(g.PeriodEnd) {
			return g, nil
		}
	}
	return nil, shared.ErrGoalNotFound
}

func (m *memGoals) ListActive(_ context.Context, userID string) ([]*goal.Goal, error) {
	return nil, nil
}

func (m *memGoals) ListExpiredActive(_ context.Context, asOf time.Time, limit int) ([]*goal.Goal, error) {
	return nil, nil
}

func (m *memGoals) ListFinalizedDaily(_ context.Context, userID string, limit int) ([]*goal.Goal, error) {
	return nil, nil
}

func (m *memGoals) AppendAdjustment(_ context.Context, adj goal.Adjustment) error {
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *memGoals) ListAdjustments(_ context.Context, userID string, limit int) ([]goal.Adjustment, error) {
	var out []goal.Adjustment
	for i := len(m.adjustments) - 1; i >= 0 && len(out) < limit; i-- {
		if m.adjustments[i].UserID == userID {
			out = append(out, m.adjustments[i])
		}
	}
	return out, nil
}

type memAchievements struct {
	earned []achievement.Earned
}

func (m *memAchievements) Award(_ context.Context, e achievement.Earned) error {
	m.earned = append(m.earned, e)
	return nil
}

func (m *memAchievements) ListByUser(_ context.Context, userID string) ([]achievement.Earned, error) {
	var out []achievement.Earned
	for _, e := range m.earned {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAchievements) EarnedSet(_ context.Context, userID string) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, e := range m.earned {
		if e.UserID == userID {
			set[e.AchievementID] = true
		}
	}
	return set, nil
}

type memActivity struct {
	snapshots []activity.KPISnapshot
}

func (m *memActivity) AppendCompletion(_ context.Context, rec activity.CompletionRecord) error {
	return nil
}

func (m *memActivity) ListCompletions(_ context.Context, userID string, from, to time.Time) ([]activity.CompletionRecord, error) {
	return nil, nil
}

func (m *memActivity) DistinctCompletionDays(_ context.Context, userID string, from, to time.Time) (int, error) {
	return 0, nil
}

func (m *memActivity) SolutionViewRate(_ context.Context, userID string, from, to time.Time) (float64, error) {
	return 0, nil
}

func (m *memActivity) CreateSession(_ context.Context, s *activity.FocusSession) error { return nil }

func (m *memActivity) GetSession(_ context.Context, id string) (*activity.FocusSession, error) {
	return nil, shared.ErrSessionNotFound
}

func (m *memActivity) UpdateSession(_ context.Context, s *activity.FocusSession) error { return nil }

func (m *memActivity) ListFinalizedSessions(_ context.Context, userID string, from, to time.Time) ([]*activity.FocusSession, error) {
	return nil, nil
}

func (m *memActivity) CountSessionsByQuality(_ context.Context, userID string) (map[activity.Quality]int, error) {
	return map[activity.Quality]int{}, nil
}

func (m *memActivity) WriteKPISnapshot(_ context.Context, snap activity.KPISnapshot) error {
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memActivity) ListKPISnapshots(_ context.Context, userID string, from, to time.Time) ([]activity.KPISnapshot, error) {
	var out []activity.KPISnapshot
	for _, s := range m.snapshots {
		if s.UserID == userID && !s.Day.Before(from) && s.Day.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// countingCache tracks hits, stores, and invalidations.
type countingCache struct {
	views         map[string]*ProgressView
	gets          int
	sets          int
	invalidations int
}

func newCountingCache() *countingCache {
	return &countingCache{views: make(map[string]*ProgressView)}
}

func (c *countingCache) GetProgress(_ context.Context, userID string) (*ProgressView, error) {
	c.gets++
	view, ok := c.views[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return view, nil
}

func (c *countingCache) SetProgress(_ context.Context, view *ProgressView) error {
	c.sets++
	c.views[view.UserID] = view
	return nil
}

func (c *countingCache) InvalidateProgress(_ context.Context, userID string) error {
	c.invalidations++
	delete(c.views, userID)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// GetProgress
// ──────────────────────────────────────────────────────────────────────────────

func seedProgressFixture(t *testing.T) (*memProfiles, *memGoals, *memAchievements) {
	t.Helper()

	profiles := newMemProfiles()
	goals := &memGoals{}
	earned := &memAchievements{}

	p, err := profile.NewUserProfile("user-1")
	require.NoError(t, err)
	p.TotalXP = 450
	require.NoError(t, profiles.Create(context.Background(), p))

	g, err := goal.NewDailyGoal("user-1", time.Now(), goal.Targets{Tasks: 4, XP: 600})
	require.NoError(t, err)
	g.ActualTasks = 6
	g.ActualXP = 480
	require.NoError(t, goals.Create(context.Background(), g))

	return profiles, goals, earned
}

func progressHandler(profiles *memProfiles, goals *memGoals, earned *memAchievements, cache ProgressCache) *GetProgressHandler {
	engine := achievement.NewEngine(achievement.DefaultDefinitions())
	return NewGetProgressHandler(profiles, goals, earned, engine, cache)
}

func TestGetProgressBuildsView(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	h := progressHandler(profiles, goals, earned, nil)

	view, err := h.Handle(context.Background(), GetProgressQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, "user-1", view.UserID)
	assert.Equal(t, 450, view.TotalXP)
	require.NotNil(t, view.DailyGoal)
	assert.Equal(t, 4, view.DailyGoal.TargetTasks)
	assert.Equal(t, 6, view.DailyGoal.ActualTasks)
	assert.Equal(t, 100, view.DailyGoal.ProgressPercent, "over-achievement caps at 100")
	assert.True(t, view.DailyGoal.TargetReached)
	assert.Nil(t, view.WeeklyGoal)
	assert.Empty(t, view.Achievements)
}

func TestGetProgressUnknownUser(t *testing.T) {
	h := progressHandler(newMemProfiles(), &memGoals{}, &memAchievements{}, nil)

	_, err := h.Handle(context.Background(), GetProgressQuery{UserID: "ghost"})

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetProgressPopulatesAndServesCache(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	cache := newCountingCache()
	h := progressHandler(profiles, goals, earned, cache)

	first, err := h.Handle(context.Background(), GetProgressQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Second read must come from the cache, not a rebuild.
	second, err := h.Handle(context.Background(), GetProgressQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
}

func TestGetProgressBypassCache(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	cache := newCountingCache()
	h := progressHandler(profiles, goals, earned, cache)

	_, err := h.Handle(context.Background(), GetProgressQuery{UserID: "user-1"})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), GetProgressQuery{UserID: "user-1", BypassCache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.gets, "bypass must not read the cache")
	assert.Equal(t, 2, cache.sets, "fresh view still refreshes the cache")
}

func TestGetProgressOptionalSectionsSkipCache(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	earned.earned = append(earned.earned, achievement.Earned{
		UserID:        "user-1",
		AchievementID: "first_steps",
		EarnedAt:      time.Now(),
		Reward:        achievement.Reward{Kind: achievement.RewardXPMultiplier, Factor: 1.1},
	})
	cache := newCountingCache()
	h := progressHandler(profiles, goals, earned, cache)

	view, err := h.Handle(context.Background(), GetProgressQuery{
		UserID:              "user-1",
		IncludeAchievements: true,
	})

	require.NoError(t, err)
	require.Len(t, view.Achievements, 1)
	assert.Equal(t, "first_steps", view.Achievements[0].AchievementID)
	assert.NotEmpty(t, view.Achievements[0].Name, "definition metadata joined in")
	assert.Zero(t, cache.gets)
	assert.Zero(t, cache.sets, "variable-shape views are never cached")
}

func TestGetProgressIncludesAdjustments(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	goals.adjustments = append(goals.adjustments, goal.Adjustment{
		UserID:      "user-1",
		Direction:   goal.DirectionIncrease,
		OldTarget:   4,
		NewTarget:   5,
		SuccessRate: 0.9,
		Reason:      "sustained overperformance",
		At:          time.Now(),
	})
	h := progressHandler(profiles, goals, earned, nil)

	view, err := h.Handle(context.Background(), GetProgressQuery{
		UserID:             "user-1",
		IncludeAdjustments: true,
	})

	require.NoError(t, err)
	require.Len(t, view.Adjustments, 1)
	assert.Equal(t, string(goal.DirectionIncrease), view.Adjustments[0].Direction)
	assert.Equal(t, 5, view.Adjustments[0].NewTarget)
}

func TestGetProgressStreakAtRisk(t *testing.T) {
	profiles, goals, earned := seedProgressFixture(t)
	p := profiles.byID["user-1"]
	p.Streak.Current = 5
	p.Streak.Longest = 9
	p.Streak.LastActivityDate = timeutil.ToDay(time.Now().AddDate(0, 0, -1))
	h := progressHandler(profiles, goals, earned, nil)

	view, err := h.Handle(context.Background(), GetProgressQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 5, view.CurrentStreak)
	assert.True(t, view.StreakAtRisk, "no activity today with a running streak")
}

func TestGetProgressRejectsEmptyUser(t *testing.T) {
	h := progressHandler(newMemProfiles(), &memGoals{}, &memAchievements{}, nil)

	_, err := h.Handle(context.Background(), GetProgressQuery{})

	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ──────────────────────────────────────────────────────────────────────────────
// GetKPIs
// ──────────────────────────────────────────────────────────────────────────────

func TestGetKPIsReturnsTrendWithinWindow(t *testing.T) {
	repo := &memActivity{}
	today := timeutil.ToDay(time.Now())
	for _, ago := range []int{1, 3, 20} {
		snap, err := activity.NewKPISnapshot("user-1", today.AddDate(0, 0, -ago), 12.5, 0.8, 11, 0.7)
		require.NoError(t, err)
		require.NoError(t, repo.WriteKPISnapshot(context.Background(), snap))
	}
	h := NewGetKPIsHandler(repo, activity.NewAnalytics(repo, nil))

	result, err := h.Handle(context.Background(), GetKPIsQuery{UserID: "user-1", Days: 14})

	require.NoError(t, err)
	assert.Len(t, result.Trend, 2, "the 20-day-old snapshot falls outside the window")
	assert.Equal(t, 12.5, result.Trend[0].LearningEfficiency)
	assert.Nil(t, result.Live)
}

func TestGetKPIsClampsWindow(t *testing.T) {
	q := GetKPIsQuery{UserID: "user-1", Days: 400}
	require.NoError(t, q.Validate())
	assert.Equal(t, 90, q.Days)

	q = GetKPIsQuery{UserID: "user-1"}
	require.NoError(t, q.Validate())
	assert.Equal(t, 14, q.Days)
}

// ──────────────────────────────────────────────────────────────────────────────
// GetInsights
// ──────────────────────────────────────────────────────────────────────────────

func TestGetInsightsOnQuietWindow(t *testing.T) {
	h := NewGetInsightsHandler(nil, &memActivity{})

	result, err := h.Handle(context.Background(), GetInsightsQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, activity.DefaultConsistencyWindowDays, result.WindowDays)
	// No completions and no sessions: the generator stays quiet rather than
	// inventing observations.
	for _, insight := range result.Insights {
		assert.NotEmpty(t, insight)
	}
}
