package db

// migrationsSQL is the cache schema. Statements are idempotent so InitDB
// can run on every open.
const migrationsSQL = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	layout TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	record_count INTEGER NOT NULL DEFAULT 0,
	header BLOB,
	UNIQUE(name, version, layout)
);

CREATE TABLE IF NOT EXISTS records (
	config_id INTEGER NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	spoken_language TEXT NOT NULL DEFAULT '',
	signed_language TEXT NOT NULL DEFAULT '',
	pose BLOB NOT NULL,
	PRIMARY KEY (config_id, id)
);
`
