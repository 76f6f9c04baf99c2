package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
)

func startedSession(t *testing.T) *FocusSession {
	t.Helper()
	s, err := StartFocusSession("user-1", 25*time.Minute, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	return s
}

func TestStartFocusSessionValidation(t *testing.T) {
	_, err := StartFocusSession("", 25*time.Minute, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = StartFocusSession("user-1", 0, time.Now())
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestSessionFinalizeDerivesEfficiencyAndQuality(t *testing.T) {
	s := startedSession(t)
	assert.NoError(t, s.RecordTaskCompletion(150))
	assert.NoError(t, s.RecordTaskCompletion(150))

	// 300 XP over 20 minutes: 15 XP/min, no interruptions
	err := s.Finalize(s.StartedAt.Add(20 * time.Minute))
	assert.NoError(t, err)
	assert.True(t, s.IsFinalized())
	assert.InDelta(t, 15.0, s.EfficiencyScore, 1e-9)
	assert.Equal(t, QualityExcellent, s.Quality)
}

func TestSessionFinalizeExactlyOnce(t *testing.T) {
	s := startedSession(t)
	assert.NoError(t, s.Finalize(s.StartedAt.Add(10*time.Minute)))

	err := s.Finalize(s.StartedAt.Add(20 * time.Minute))
	assert.ErrorIs(t, err, shared.ErrAlreadyFinalized)

	assert.ErrorIs(t, s.RecordInterruption(), shared.ErrAlreadyFinalized)
	assert.ErrorIs(t, s.RecordTaskCompletion(50), shared.ErrAlreadyFinalized)
}

func TestSessionFinalizeRejectsEndBeforeStart(t *testing.T) {
	s := startedSession(t)
	err := s.Finalize(s.StartedAt.Add(-time.Minute))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.False(t, s.IsFinalized())
}

func TestQualityFor(t *testing.T) {
	cases := []struct {
		efficiency    float64
		interruptions int
		want          Quality
	}{
		{16, 0, QualityExcellent},
		{15, 0, QualityExcellent},
		{16, 1, QualityGood}, // interrupted sessions cannot be excellent
		{12, 0, QualityGood},
		{10, 3, QualityGood},
		{7, 0, QualityAverage},
		{5, 2, QualityAverage},
		{4.9, 0, QualityPoor},
		{0, 0, QualityPoor},
	}
	for _, tc := range cases {
		got := QualityFor(tc.efficiency, tc.interruptions)
		assert.Equal(t, tc.want, got, "efficiency=%.1f interruptions=%d", tc.efficiency, tc.interruptions)
	}
}

func TestEfficiencyOf(t *testing.T) {
	assert.Equal(t, 0.0, EfficiencyOf(nil))

	s1 := startedSession(t)
	s1.RecordTaskCompletion(100)
	s1.Finalize(s1.StartedAt.Add(10 * time.Minute))

	s2 := startedSession(t)
	s2.RecordTaskCompletion(200)
	s2.Finalize(s2.StartedAt.Add(20 * time.Minute))

	running := startedSession(t)
	running.RecordTaskCompletion(999)

	// 300 XP over 30 minutes; the running session is excluded
	got := EfficiencyOf([]*FocusSession{s1, s2, running})
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestCompletionRateOf(t *testing.T) {
	assert.Equal(t, 0.0, CompletionRateOf(0, 0))
	assert.InDelta(t, 0.75, CompletionRateOf(3, 4), 1e-9)
	assert.InDelta(t, 1.0, CompletionRateOf(4, 4), 1e-9)
}

func TestConsistencyOf(t *testing.T) {
	assert.Equal(t, 0.0, ConsistencyOf(3, 0))
	assert.InDelta(t, 5.0/7.0, ConsistencyOf(5, 7), 1e-9)
}

func TestNewCompletionRecord(t *testing.T) {
	rec, err := NewCompletionRecord("user-1", "task-1", task.DifficultyEasy, 50, 4*time.Minute, false, time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), rec.Day())

	_, err = NewCompletionRecord("", "task-1", task.DifficultyEasy, 50, 0, false, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewCompletionRecord("user-1", "task-1", task.DifficultyEasy, -1, 0, false, time.Now())
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestAvgTaskMinutesOf(t *testing.T) {
	assert.Equal(t, 0.0, AvgTaskMinutesOf(nil))

	mk := func(d time.Duration) CompletionRecord {
		rec, _ := NewCompletionRecord("user-1", "task-1", task.DifficultyEasy, 50, d, false, time.Now())
		return rec
	}
	got := AvgTaskMinutesOf([]CompletionRecord{mk(4 * time.Minute), mk(8 * time.Minute)})
	assert.InDelta(t, 6.0, got, 1e-9)
}

func TestGenerateInsightsSkew(t *testing.T) {
	insights := GenerateInsights(InsightInputs{
		CompletionsByDifficulty: map[task.Difficulty]int{
			task.DifficultyEasy: 8, task.DifficultyMedium: 1, task.DifficultyHard: 1,
		},
		Consistency: 0.5,
	})
	assert.Len(t, insights, 1)
	assert.Contains(t, insights[0], "easy")
}

func TestGenerateInsightsSolutionReliance(t *testing.T) {
	insights := GenerateInsights(InsightInputs{
		CompletionsByDifficulty: map[task.Difficulty]int{
			task.DifficultyEasy: 2, task.DifficultyMedium: 2, task.DifficultyHard: 2,
		},
		SolutionViewRate: 0.67,
		Consistency:      0.5,
	})
	assert.Len(t, insights, 1)
	assert.Contains(t, insights[0], "solution")
}

func TestGenerateInsightsEmptyHistory(t *testing.T) {
	assert.Empty(t, GenerateInsights(InsightInputs{}))
}
