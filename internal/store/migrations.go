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

CREATE TABLE IF NOT EXISTS namespaces (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	last_sync  DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	job         TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	mail_count  INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_account_started
	ON sync_runs(account_id, started_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_sync_runs_error
	ON sync_runs(account_id, error) WHERE error != '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
