package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	backend       TEXT NOT NULL,
	instance      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	resource_kind TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	project_id    TEXT NOT NULL DEFAULT '',
	actor         TEXT NOT NULL DEFAULT '',
	occurred_at   DATETIME NOT NULL,
	changes       TEXT NOT NULL DEFAULT '{}',
	raw           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS snapshots (
	backend    TEXT NOT NULL,
	instance   TEXT NOT NULL,
	issue_id   TEXT NOT NULL,
	project_id TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'open',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (backend, instance, issue_id)
);

CREATE INDEX IF NOT EXISTS idx_events_backend ON events(backend, instance);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots(backend, instance, project_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
