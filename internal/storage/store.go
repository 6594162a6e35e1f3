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

// Package storage is the libsql-backed metadata store: repositories, the
// entry tree, file content records, sequences and the deferred release queue.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"rtlforge/internal/model"
	"rtlforge/internal/util"
)

// Store is a metadata database opened from one local file.
type Store struct {
	path string
	db   *sql.DB
	bun  *bun.DB
}

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly via SQL statements after the connection is opened.
func applyPragmas(db *sql.DB, busyTimeout int) error {
	// busy_timeout goes first so journal_mode=WAL waits for the lock
	// instead of failing with "database is locked".
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", GetBusyTimeout(busyTimeout))); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA cache_size = -8000"); err != nil {
		return fmt.Errorf("failed to set cache_size: %w", err)
	}
	return nil
}

// Open opens the metadata database at path, creating it and its schema if
// needed. busyTimeout is in milliseconds; 0 selects the default.
func Open(path string, busyTimeout int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer connection keeps libsql from tripping over its own locks.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db, busyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	// Create schema (execute statements individually for libsql compatibility)
	if err := execStatements(db, metadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := execStatements(db, initSchemaInfo, SchemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema info: %w", err)
	}

	s := &Store{
		path: path,
		db:   db,
		bun:  bun.NewDB(db, sqlitedialect.New()),
	}

	fileType, err := s.schemaInfo(context.Background(), "type")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema info: %w", err)
	}
	if fileType != "rtlforge" {
		db.Close()
		return nil, fmt.Errorf("not an rtlforge database (type=%s)", fileType)
	}
	log.WithField("path", path).Debug("storage: opened metadata database")
	return s, nil
}

// Close checkpoints the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	// PRAGMA wal_checkpoint returns rows, so Query() not Exec()
	if err := execPragma(s.db, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warnf("storage: WAL checkpoint failed: %v", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the Bun database handle.
func (s *Store) DB() *bun.DB {
	return s.bun
}

func (s *Store) schemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := s.bun.NewSelect().Model(&info).Where("key = ?", key).Scan(ctx)
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// Update runs fn inside one transaction. Everything fn does through tx
// commits or rolls back together. The whole transaction is retried when
// the database is locked, so fn must not have side effects outside tx.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx model.MetaTx) error) error {
	return util.Retry(ctx, func() error {
		return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, &txn{idb: tx})
		})
	}, util.MetadataRetryOptions(ctx)...)
}
