package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_user_profiles",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_tasks",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_goals",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_activity",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
		{
			Version: 5,
			Name:    "create_achievements",
			UpSQL:   migration005Up,
			DownSQL: migration005Down,
		},
	}
}

const migration001Up = `
CREATE TABLE user_profiles (
	user_id            TEXT PRIMARY KEY,
	total_xp           INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
	streak_current     INTEGER NOT NULL DEFAULT 0,
	streak_longest     INTEGER NOT NULL DEFAULT 0,
	last_activity_date DATE,
	xp_multiplier      DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	cost_modifiers     JSONB NOT NULL DEFAULT '{}',
	features           JSONB NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration001Down = `DROP TABLE IF EXISTS user_profiles;`

const migration002Up = `
CREATE TABLE tasks (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	text          TEXT NOT NULL,
	solution      TEXT NOT NULL DEFAULT '',
	difficulty    TEXT NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
	status        TEXT NOT NULL CHECK (status IN ('new', 'in_progress', 'completed', 'skipped', 'failed')),
	attempt_count INTEGER NOT NULL DEFAULT 0,
	time_spent_s  BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX idx_tasks_user_created ON tasks (user_id, created_at DESC);
CREATE INDEX idx_tasks_user_status ON tasks (user_id, status);

CREATE TABLE task_transitions (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES tasks(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_task_transitions_task ON task_transitions (task_id, occurred_at);
`

const migration002Down = `
DROP TABLE IF EXISTS task_transitions;
DROP TABLE IF EXISTS tasks;
`

const migration003Up = `
CREATE TABLE goals (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	kind                 TEXT NOT NULL CHECK (kind IN ('daily', 'weekly')),
	period_start         DATE NOT NULL,
	period_end           DATE NOT NULL,
	target_tasks         INTEGER NOT NULL CHECK (target_tasks >= 1),
	target_xp            INTEGER NOT NULL DEFAULT 0,
	target_focus_minutes INTEGER NOT NULL DEFAULT 0,
	actual_tasks         INTEGER NOT NULL DEFAULT 0,
	actual_xp            INTEGER NOT NULL DEFAULT 0,
	actual_focus_minutes INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL CHECK (status IN ('active', 'completed', 'failed')),
	completion_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finalized_at         TIMESTAMPTZ
);

-- At most one active goal per (user, kind).
CREATE UNIQUE INDEX uq_goals_one_active ON goals (user_id, kind) WHERE status = 'active';
CREATE INDEX idx_goals_user_kind_period ON goals (user_id, kind, period_start DESC);
CREATE INDEX idx_goals_expired ON goals (period_end) WHERE status = 'active';

CREATE TABLE goal_adjustments (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	direction    TEXT NOT NULL CHECK (direction IN ('increase', 'decrease', 'maintain')),
	old_target   INTEGER NOT NULL,
	new_target   INTEGER NOT NULL,
	success_rate DOUBLE PRECISION NOT NULL,
	sample_size  INTEGER NOT NULL,
	reason       TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_goal_adjustments_user ON goal_adjustments (user_id, occurred_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS goal_adjustments;
DROP TABLE IF EXISTS goals;
`

const migration004Up = `
CREATE TABLE completion_records (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	task_id         TEXT NOT NULL,
	difficulty      TEXT NOT NULL,
	xp_credited     INTEGER NOT NULL CHECK (xp_credited >= 0),
	time_spent_s    BIGINT NOT NULL DEFAULT 0,
	solution_viewed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_completion_records_user ON completion_records (user_id, completed_at DESC);

CREATE TABLE focus_sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	planned_s        BIGINT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ,
	interruptions    INTEGER NOT NULL DEFAULT 0,
	tasks_completed  INTEGER NOT NULL DEFAULT 0,
	xp_earned        INTEGER NOT NULL DEFAULT 0,
	efficiency_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_focus_sessions_user ON focus_sessions (user_id, ended_at DESC);

CREATE TABLE kpi_snapshots (
	user_id             TEXT NOT NULL,
	day                 DATE NOT NULL,
	learning_efficiency DOUBLE PRECISION NOT NULL,
	completion_rate     DOUBLE PRECISION NOT NULL,
	avg_task_minutes    DOUBLE PRECISION NOT NULL,
	consistency         DOUBLE PRECISION NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, day)
);
`

const migration004Down = `
DROP TABLE IF EXISTS kpi_snapshots;
DROP TABLE IF EXISTS focus_sessions;
DROP TABLE IF EXISTS completion_records;
`

const migration005Up = `
CREATE TABLE earned_achievements (
	user_id        TEXT NOT NULL,
	achievement_id TEXT NOT NULL,
	reward         JSONB NOT NULL,
	earned_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, achievement_id)
);
`

const migration005Down = `DROP TABLE IF EXISTS earned_achievements;`
