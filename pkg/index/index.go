// Copyright 2026 TrustLabs
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
//
// SPDX-License-Identifier: Apache-2.0

// Package index owns the persistent code index: the mapping from function
// names to their files/classes, and the call edges extracted from chunk
// bodies. The index is a rebuildable derived artifact; dropping it and
// re-indexing always reproduces it.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FunctionRow is one (function, file) record.
type FunctionRow struct {
	FunctionName string
	FilePath     string
	ClassName    string
	Language     string
}

// EdgeRow is one stored call edge. The caller is a chunk ID
// (file::class::function); the callee is a bare name.
type EdgeRow struct {
	CallerID   string
	CalleeName string
	Confidence float64
}

// Index is the SQLite-backed code index.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the index at path, migrating legacy schemas.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open code index: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db, logger: logger}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema, dropping the legacy layout (function_name as
// the sole primary key) when found. Data is rebuildable, so drop-and-create
// is the whole migration story.
func (i *Index) migrate() error {
	var legacySchema string
	err := i.db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type='table' AND name='code_index'",
	).Scan(&legacySchema)
	if err == nil && strings.Contains(legacySchema, "function_name TEXT PRIMARY KEY") {
		i.logger.Info("index.schema.migrate", "reason", "legacy function_name primary key")
		if _, err := i.db.Exec("DROP TABLE code_index"); err != nil {
			return fmt.Errorf("drop legacy code_index: %w", err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS code_index (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			function_name TEXT NOT NULL,
			file_path     TEXT NOT NULL,
			language      TEXT NOT NULL,
			class_name    TEXT,
			last_indexed  TIMESTAMP,
			UNIQUE(function_name, file_path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_function_name ON code_index(function_name)`,
		`CREATE INDEX IF NOT EXISTS idx_file_path ON code_index(file_path)`,
		`CREATE TABLE IF NOT EXISTS call_edges (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			caller     TEXT NOT NULL,
			callee     TEXT NOT NULL,
			confidence REAL DEFAULT 1.0,
			UNIQUE(caller, callee)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := i.db.Exec(stmt); err != nil {
			return fmt.Errorf("create index schema: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (i *Index) Close() error { return i.db.Close() }

// Truncate empties both tables ahead of a rebuild.
func (i *Index) Truncate(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, "DELETE FROM code_index"); err != nil {
		return fmt.Errorf("truncate code_index: %w", err)
	}
	if _, err := i.db.ExecContext(ctx, "DELETE FROM call_edges"); err != nil {
		return fmt.Errorf("truncate call_edges: %w", err)
	}
	return nil
}

// InsertFunction records one (function, file) pair. A duplicate insert whose
// class is non-empty while the stored row's class is empty updates the row:
// implementation sections arrive after forward declarations and carry the
// qualifier.
func (i *Index) InsertFunction(ctx context.Context, row FunctionRow) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := i.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO code_index (function_name, file_path, language, class_name, last_indexed)
		 VALUES (?, ?, ?, ?, ?)`,
		row.FunctionName, row.FilePath, row.Language, row.ClassName, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert function %s: %w", row.FunctionName, err)
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		return true, nil
	}

	if row.ClassName != "" {
		_, err = i.db.ExecContext(ctx,
			`UPDATE code_index SET class_name = ?
			 WHERE function_name = ? AND file_path = ?
			   AND (class_name IS NULL OR class_name = '')`,
			row.ClassName, row.FunctionName, row.FilePath,
		)
		if err != nil {
			return false, fmt.Errorf("backfill class for %s: %w", row.FunctionName, err)
		}
	}
	return false, nil
}

// InsertEdge records one call edge; duplicates on (caller, callee) are
// ignored. Reports whether a row was written.
func (i *Index) InsertEdge(ctx context.Context, row EdgeRow) (bool, error) {
	result, err := i.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO call_edges (caller, callee, confidence) VALUES (?, ?, ?)",
		row.CallerID, row.CalleeName, row.Confidence,
	)
	if err != nil {
		return false, fmt.Errorf("insert edge %s -> %s: %w", row.CallerID, row.CalleeName, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Lookup resolves a function name to its file path: exact match first, then
// case-insensitive. Empty string means not found.
func (i *Index) Lookup(ctx context.Context, functionName string) (string, error) {
	name := strings.TrimSpace(functionName)

	var path string
	err := i.db.QueryRowContext(ctx,
		"SELECT file_path FROM code_index WHERE function_name = ? LIMIT 1", name,
	).Scan(&path)
	if err == nil {
		return path, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup %s: %w", name, err)
	}

	err = i.db.QueryRowContext(ctx,
		"SELECT file_path FROM code_index WHERE LOWER(function_name) = LOWER(?) LIMIT 1", name,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", name, err)
	}
	return path, nil
}

// Functions returns all rows, optionally filtered by a file-path prefix
// (project scoping).
func (i *Index) Functions(ctx context.Context, pathPrefix string) ([]FunctionRow, error) {
	query := "SELECT function_name, file_path, COALESCE(class_name, ''), language FROM code_index"
	var args []any
	if pathPrefix != "" {
		query += " WHERE file_path LIKE ?"
		args = append(args, pathPrefix+"%")
	}
	query += " ORDER BY id"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var out []FunctionRow
	for rows.Next() {
		var r FunctionRow
		if err := rows.Scan(&r.FunctionName, &r.FilePath, &r.ClassName, &r.Language); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Edges returns all stored call edges in insertion order. Insertion order is
// the source-side execution order used by the verification stage.
func (i *Index) Edges(ctx context.Context) ([]EdgeRow, error) {
	rows, err := i.db.QueryContext(ctx,
		"SELECT caller, callee, confidence FROM call_edges ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var r EdgeRow
		if err := rows.Scan(&r.CallerID, &r.CalleeName, &r.Confidence); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EdgesFrom returns stored edges whose caller's function portion matches
// name case-insensitively.
func (i *Index) EdgesFrom(ctx context.Context, callerName string) ([]EdgeRow, error) {
	all, err := i.Edges(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(strings.TrimSpace(callerName))

	var out []EdgeRow
	for _, e := range all {
		_, _, fn := ParseChunkID(e.CallerID)
		if strings.ToUpper(fn) == want {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats reports row counts for the status surface.
func (i *Index) Stats(ctx context.Context) (functions, edges int, err error) {
	if err = i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM code_index").Scan(&functions); err != nil {
		return 0, 0, err
	}
	if err = i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM call_edges").Scan(&edges); err != nil {
		return 0, 0, err
	}
	return functions, edges, nil
}

// ParseChunkID splits a chunk ID (file::class::function) into its parts.
// The class segment may be empty; a malformed ID yields best-effort parts.
func ParseChunkID(chunkID string) (filePath, className, functionName string) {
	parts := strings.Split(chunkID, "::")
	if len(parts) >= 1 {
		filePath = strings.TrimSpace(parts[0])
	}
	if len(parts) >= 3 {
		className = strings.TrimSpace(parts[1])
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(parts[i]); s != "" {
			functionName = s
			break
		}
	}
	if functionName == filePath {
		functionName = ""
	}
	return filePath, className, functionName
}
