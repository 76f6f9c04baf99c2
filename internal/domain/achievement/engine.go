package achievement

import (
	"time"

	"github.com/learnquest/progress-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// StatsSnapshot is the read-only aggregate every predicate evaluates
// against. It is assembled freshly before each check; predicates never reach
// into live entities.
type StatsSnapshot struct {
	TotalXP        int
	CurrentStreak  int
	LongestStreak  int
	TasksCompleted int

	// CompletionsByDifficulty holds all-time completed counts per tier.
	CompletionsByDifficulty map[task.Difficulty]int

	// SessionQualityCounts holds finalized focus sessions per quality
	// tier name (excellent, good, average, poor).
	SessionQualityCounts map[string]int

	// LearningEfficiency is XP per focus minute over the recent window.
	LearningEfficiency float64
}

// BalancedDifficultyRatio is the minimum least/most completed tier ratio for
// the balanced-difficulty predicate.
const BalancedDifficultyRatio = 0.5

// IsBalancedAcrossDifficulties reports breadth across tiers: true when all
// three tiers have at least one completion and the least-completed tier has
// at least half as many completions as the most-completed one.
func (s StatsSnapshot) IsBalancedAcrossDifficulties() bool {
	if len(s.CompletionsByDifficulty) < len(task.AllDifficulties()) {
		return false
	}

	min, max := -1, 0
	for _, d := range task.AllDifficulties() {
		count := s.CompletionsByDifficulty[d]
		if count == 0 {
			return false
		}
		if min == -1 || count < min {
			min = count
		}
		if count > max {
			max = count
		}
	}
	return float64(min)/float64(max) >= BalancedDifficultyRatio
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS & ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Predicate decides whether an achievement is currently satisfied.
type Predicate func(s StatsSnapshot) bool

// Definition is one row of the declarative achievement table.
type Definition struct {
	ID          string
	Name        string
	Description string
	Predicate   Predicate
	Reward      Reward
}

// Earned is the append-only record of one awarded achievement. A given
// achievement ID is earned by a user at most once, ever.
type Earned struct {
	UserID        string
	AchievementID string
	EarnedAt      time.Time
	Reward        Reward
}

// Engine evaluates the definition table against a stats snapshot.
type Engine struct {
	definitions []Definition
}

// NewEngine creates an engine over the given definition table.
func NewEngine(definitions []Definition) *Engine {
	return &Engine{definitions: definitions}
}

// Definitions returns the table.
func (e *Engine) Definitions() []Definition {
	return e.definitions
}

// Find returns the definition with the given ID, or false.
func (e *Engine) Find(id string) (Definition, bool) {
	for _, d := range e.definitions {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Evaluate returns the definitions that are newly satisfied: predicate true
// against the snapshot and not already in the earned set. Each returned
// definition is independent; evaluation order carries no meaning.
func (e *Engine) Evaluate(stats StatsSnapshot, earned map[string]bool) []Definition {
	var newly []Definition
	for _, def := range e.definitions {
		if earned[def.ID] {
			continue
		}
		if def.Predicate(stats) {
			newly = append(newly, def)
		}
	}
	return newly
}
