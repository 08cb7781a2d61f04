package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		chat_id         INTEGER PRIMARY KEY,
		language        TEXT    NOT NULL DEFAULT '',
		format_style    TEXT    NOT NULL DEFAULT 'plain',
		default_mode    TEXT    NOT NULL DEFAULT 'transcribe',
		banned_at       TEXT,
		logging_enabled INTEGER NOT NULL DEFAULT 1,
		created_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		edited_at       TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE TABLE IF NOT EXISTS media_requests (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id           INTEGER NOT NULL REFERENCES chats(chat_id) ON DELETE CASCADE,
		user_id           INTEGER NOT NULL,
		message_id        INTEGER NOT NULL,
		forward_chat_id   INTEGER NOT NULL DEFAULT 0,
		is_forward        INTEGER NOT NULL DEFAULT 0,
		mode              TEXT    NOT NULL,
		media_type        TEXT    NOT NULL,
		logged_message_id INTEGER NOT NULL DEFAULT 0,
		file_id           TEXT    NOT NULL,
		file_type         TEXT    NOT NULL DEFAULT '',
		file_size         INTEGER NOT NULL DEFAULT 0,
		duration          INTEGER NOT NULL DEFAULT 0,
		response          TEXT    NOT NULL DEFAULT '',
		error             TEXT    NOT NULL DEFAULT '',
		language          TEXT    NOT NULL DEFAULT '',
		download_ms       INTEGER NOT NULL DEFAULT 0,
		api_ms            INTEGER NOT NULL DEFAULT 0,
		total_ms          INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_media_requests_user ON media_requests(user_id)`,

	`CREATE INDEX IF NOT EXISTS idx_media_requests_chat ON media_requests(chat_id)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}
