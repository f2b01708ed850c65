package store

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_key TEXT PRIMARY KEY,
	summary     TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_messages (
	id           TEXT PRIMARY KEY,
	session_key  TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_call_id TEXT NOT NULL DEFAULT '',
	bot_name     TEXT NOT NULL DEFAULT '',
	timestamp    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_messages_key_seq ON session_messages(session_key, seq);
`

const workLogSchema = `
CREATE TABLE IF NOT EXISTS session_log (
	id          TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	query       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL DEFAULT '',
	room_id     TEXT NOT NULL DEFAULT '',
	coordinator TEXT NOT NULL DEFAULT '',
	participants TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS log_entry (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	step_no           INTEGER NOT NULL,
	timestamp         TEXT NOT NULL,
	level             TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	bot_name          TEXT NOT NULL DEFAULT '',
	triggered_by      TEXT NOT NULL DEFAULT '',
	message           TEXT NOT NULL DEFAULT '',
	details_json      TEXT NOT NULL DEFAULT '{}',
	confidence        REAL,
	duration_ms       INTEGER,
	tool_name         TEXT NOT NULL DEFAULT '',
	tool_input        TEXT NOT NULL DEFAULT '',
	tool_output       TEXT NOT NULL DEFAULT '',
	tool_status       TEXT NOT NULL DEFAULT '',
	mentions          TEXT NOT NULL DEFAULT '',
	response_to_step  INTEGER,
	coordinator_mode  INTEGER NOT NULL DEFAULT 0,
	escalation        INTEGER NOT NULL DEFAULT 0,
	shareable         INTEGER NOT NULL DEFAULT 0,
	insight_category  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_log_entry_session ON log_entry(session_id, step_no);
CREATE INDEX IF NOT EXISTS idx_log_entry_room ON log_entry(session_id);

CREATE TABLE IF NOT EXISTS rooms (
	id                   TEXT PRIMARY KEY,
	kind                 TEXT NOT NULL,
	participants         TEXT NOT NULL DEFAULT '',
	owner                TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	coordinator_mode     INTEGER NOT NULL DEFAULT 0,
	escalation_threshold TEXT NOT NULL DEFAULT 'medium'
);

CREATE TABLE IF NOT EXISTS role_card_proposals (
	id        TEXT PRIMARY KEY,
	bot       TEXT NOT NULL,
	diff      TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	accepted  INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS heartbeat_ticks (
	tick_id     TEXT PRIMARY KEY,
	bot_name    TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	triggered_by TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	results_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_heartbeat_ticks_bot ON heartbeat_ticks(bot_name, started_at);

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	bot_name      TEXT PRIMARY KEY,
	state         TEXT NOT NULL DEFAULT 'closed',
	failure_count INTEGER NOT NULL DEFAULT 0,
	opened_at     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	name       TEXT PRIMARY KEY,
	expr       TEXT NOT NULL,
	tz         TEXT NOT NULL DEFAULT 'UTC',
	message    TEXT NOT NULL,
	channel    TEXT NOT NULL DEFAULT '',
	chat_id    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_run_at TEXT NOT NULL DEFAULT ''
);
`

const memorySchema = `
CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	content          TEXT NOT NULL,
	source_bot       TEXT NOT NULL DEFAULT '',
	timestamp        TEXT NOT NULL,
	confidence       REAL NOT NULL DEFAULT 1.0,
	embedding        BLOB,
	extraction_status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(extraction_status);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	aliases        TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL DEFAULT '',
	embedding      BLOB,
	last_seen      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(canonical_name);

CREATE TABLE IF NOT EXISTS edges (
	id                TEXT PRIMARY KEY,
	subject_entity    TEXT NOT NULL,
	predicate         TEXT NOT NULL,
	object_entity     TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 1.0,
	evidence_event_ids TEXT NOT NULL DEFAULT '',
	UNIQUE(subject_entity, predicate, object_entity)
);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	object     TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	source     TEXT NOT NULL DEFAULT '',
	UNIQUE(subject, predicate, object)
);

CREATE TABLE IF NOT EXISTS summary_nodes (
	id               TEXT PRIMARY KEY,
	parent_id        TEXT NOT NULL DEFAULT '',
	scope            TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT '',
	staleness_counter INTEGER NOT NULL DEFAULT 0,
	events_covered   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_summary_nodes_parent ON summary_nodes(parent_id);

CREATE TABLE IF NOT EXISTS learnings (
	id            TEXT PRIMARY KEY,
	owner_bot     TEXT NOT NULL,
	text          TEXT NOT NULL,
	category      TEXT NOT NULL,
	confidence    REAL NOT NULL,
	relevance_score REAL NOT NULL DEFAULT 1.0,
	source        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	last_used_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_learnings_owner ON learnings(owner_bot);
`

const learningSchema = `
CREATE TABLE IF NOT EXISTS queued_packages (
	id                TEXT PRIMARY KEY,
	category          TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL,
	confidence        REAL NOT NULL,
	scope             TEXT NOT NULL,
	applicable_rooms  TEXT NOT NULL DEFAULT '',
	applicable_bots   TEXT NOT NULL DEFAULT '',
	source_bot        TEXT NOT NULL,
	source_room       TEXT NOT NULL DEFAULT '',
	evidence          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'queued',
	distributed_to    TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_packages_status ON queued_packages(status, created_at);
`

const toolOutputSchema = `
CREATE TABLE IF NOT EXISTS tool_outputs (
	id              TEXT PRIMARY KEY,
	tool_name       TEXT NOT NULL,
	full_output     TEXT NOT NULL,
	context_summary TEXT NOT NULL DEFAULT '',
	session_key     TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	accessed_count  INTEGER NOT NULL DEFAULT 0,
	char_count      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tool_outputs_session ON tool_outputs(session_key);
`
