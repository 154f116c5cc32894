package storage

import (
	"context"
	"fmt"
)

// targetSchemaVersion is the newest schema this build understands.
const targetSchemaVersion = 1

// migrations[i] upgrades the schema from version i to i+1. Entries are only
// ever appended so existing databases keep their queued envelopes.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL UNIQUE,
		model TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		serial TEXT NOT NULL DEFAULT '',
		descriptor TEXT NOT NULL DEFAULT '',
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		remote_id TEXT NOT NULL DEFAULT '',
		locked_fields TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS metrics_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		page_count INTEGER,
		status TEXT NOT NULL,
		error_detail TEXT NOT NULL DEFAULT '',
		supply_levels TEXT NOT NULL DEFAULT '{}',
		raw TEXT NOT NULL DEFAULT '{}',
		FOREIGN KEY (device_id) REFERENCES devices(id)
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_history_device_ts ON metrics_history(device_id, ts);

	CREATE TABLE IF NOT EXISTS outbound_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS agent_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return unavailable("create schema_version", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return unavailable("read schema version", err)
	}

	if current > targetSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, targetSchemaVersion)
	}
	if current == targetSchemaVersion {
		s.log.Debug("Schema is up to date", "version", current)
		return nil
	}

	for v := current; v < targetSchemaVersion; v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return unavailable("begin migration", err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return unavailable(fmt.Sprintf("apply migration %d", v+1), err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", v+1, toUnix(s.now())); err != nil {
			_ = tx.Rollback()
			return unavailable("record schema version", err)
		}
		if err := tx.Commit(); err != nil {
			return unavailable("commit migration", err)
		}
		s.log.Info("Schema migrated", "version", v+1)
	}
	return nil
}
