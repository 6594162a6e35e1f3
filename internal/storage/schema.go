// Copyright 2026 rtlforge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"database/sql"
	"os"
	"strconv"
	"strings"
)

const SchemaVersion = "1"

const BlobChunkSize = 16384 // 16KB chunks for database-backed blobs

// Default busy_timeout in milliseconds (30 seconds)
const DefaultBusyTimeout = 30000

// EnvBusyTimeout overrides the configured busy_timeout for every connection.
const EnvBusyTimeout = "RTLFORGE_BUSY_TIMEOUT"

// GetBusyTimeout returns the busy_timeout to use.
// Priority: env > configured > default
func GetBusyTimeout(configured int) int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	if configured > 0 {
		return configured
	}
	return DefaultBusyTimeout
}

// BuildDSN builds the libsql DSN for a local database file.
func BuildDSN(path string) string {
	return "file:" + path
}

// Schema SQL for the metadata database
const metadataSchema = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    private INTEGER NOT NULL DEFAULT 0,
    number INTEGER NOT NULL,
    top_module TEXT NOT NULL DEFAULT '',
    top_entry_id TEXT NOT NULL DEFAULT '',
    root_id TEXT NOT NULL DEFAULT '',
    build_id TEXT NOT NULL DEFAULT '',
    software_id TEXT NOT NULL DEFAULT '',
    hex_id TEXT NOT NULL DEFAULT '',
    ipcores_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    UNIQUE (owner, name)
);

-- Entry tree; parent_id is '' only for the root
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL,
    parent_id TEXT NOT NULL,
    title TEXT NOT NULL,
    handler TEXT NOT NULL,
    access TEXT NOT NULL,
    provenance TEXT NOT NULL,
    anchor INTEGER NOT NULL DEFAULT 0,
    included INTEGER NOT NULL DEFAULT 1,
    state TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id, deleted, ordinal);
CREATE INDEX IF NOT EXISTS idx_entries_repo ON entries(repository_id, deleted);
CREATE INDEX IF NOT EXISTS idx_entries_deleted_at ON entries(deleted, deleted_at);

-- Live sibling titles are unique; soft-deleted rows never block a title
CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_live_title ON entries(repository_id, parent_id, title) WHERE deleted = 0;

-- One live root per repository
CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_root ON entries(repository_id) WHERE handler = 'root' AND deleted = 0;

CREATE TABLE IF NOT EXISTS file_contents (
    entry_id TEXT PRIMARY KEY,
    handle TEXT NOT NULL,
    size INTEGER NOT NULL,
    sha256 TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sequences (
    scope TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_releases (
    handle TEXT PRIMARY KEY,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    next_attempt_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_releases_due ON pending_releases(next_attempt_at);

-- Database-backed content store
CREATE TABLE IF NOT EXISTS blobs (
    handle TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    size INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blob_chunks (
    handle TEXT NOT NULL,
    chunk_idx INTEGER NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (handle, chunk_idx)
);
`

const initSchemaInfo = `
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', ?);
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('type', 'rtlforge');
INSERT OR IGNORE INTO schema_info (key, value) VALUES ('created_at', datetime('now'));
`

// execStatements executes multiple SQL statements separated by semicolons.
// libsql driver doesn't support multi-statement Exec, so we split and execute individually.
func execStatements(db *sql.DB, sqlScript string, args ...interface{}) error {
	statements := splitStatements(sqlScript)
	argIdx := 0
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		placeholders := strings.Count(stmt, "?")
		stmtArgs := args[argIdx : argIdx+placeholders]
		argIdx += placeholders
		if _, err := db.Exec(stmt, stmtArgs...); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
