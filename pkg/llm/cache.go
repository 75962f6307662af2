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

package llm

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the persistent content-hash response cache. Entries survive
// across runs and are invalidated naturally when the prompt version changes
// (the version is part of the key).
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open llm cache: %w", err)
	}
	// Writers are serialized by the store; last write wins is acceptable
	// because identical keys always carry identical payloads.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS llm_call_cache (
			content_hash TEXT PRIMARY KEY,
			result_json  TEXT NOT NULL,
			model        TEXT,
			created_at   TEXT
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create llm cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// CacheKey composes the md5 key from prompt version, content, and language.
func CacheKey(promptVersion, content, language string) string {
	sum := md5.Sum([]byte(promptVersion + content + language))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result JSON for key, if present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var result string
	err := c.db.QueryRowContext(ctx,
		"SELECT result_json FROM llm_call_cache WHERE content_hash = ?", key,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("llm cache get: %w", err)
	}
	return result, true, nil
}

// Put stores a result under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key, resultJSON, model string) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO llm_call_cache (content_hash, result_json, model, created_at) VALUES (?, ?, ?, ?)",
		key, resultJSON, model, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("llm cache put: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
