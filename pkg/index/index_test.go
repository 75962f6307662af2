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

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/chunker"
	"github.com/trustlabs/trustbot/pkg/extract"
	"github.com/trustlabs/trustbot/pkg/llm"
	"github.com/trustlabs/trustbot/pkg/profile"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestInsertFunctionUniqueness(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	inserted, err := idx.InsertFunction(ctx, FunctionRow{FunctionName: "Save", FilePath: "u.pas", Language: "delphi"})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Duplicate (name, file) is ignored.
	inserted, err = idx.InsertFunction(ctx, FunctionRow{FunctionName: "Save", FilePath: "u.pas", Language: "delphi"})
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same name, different file: new row.
	inserted, err = idx.InsertFunction(ctx, FunctionRow{FunctionName: "Save", FilePath: "v.pas", Language: "delphi"})
	require.NoError(t, err)
	assert.True(t, inserted)

	funcs, err := idx.Functions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, funcs, 2)
}

func TestInsertFunctionClassBackfill(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	// Forward declaration arrives first, without a class.
	_, err := idx.InsertFunction(ctx, FunctionRow{FunctionName: "DoWork", FilePath: "main.pas", Language: "delphi"})
	require.NoError(t, err)

	// Implementation arrives with the qualifier: the row is updated.
	_, err = idx.InsertFunction(ctx, FunctionRow{FunctionName: "DoWork", FilePath: "main.pas", Language: "delphi", ClassName: "TForm1"})
	require.NoError(t, err)

	funcs, err := idx.Functions(ctx, "")
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "TForm1", funcs[0].ClassName)
}

func TestLookupCaseInsensitiveFallback(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	_, err := idx.InsertFunction(ctx, FunctionRow{FunctionName: "SaveData", FilePath: "u.pas", Language: "delphi"})
	require.NoError(t, err)

	path, err := idx.Lookup(ctx, "SaveData")
	require.NoError(t, err)
	assert.Equal(t, "u.pas", path)

	path, err = idx.Lookup(ctx, "SAVEDATA")
	require.NoError(t, err)
	assert.Equal(t, "u.pas", path)

	path, err = idx.Lookup(ctx, "Missing")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestEdgeUniquenessAndEdgesFrom(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	written, err := idx.InsertEdge(ctx, EdgeRow{CallerID: "u.pas::TForm1::OnClick", CalleeName: "Save", Confidence: 0.9})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = idx.InsertEdge(ctx, EdgeRow{CallerID: "u.pas::TForm1::OnClick", CalleeName: "Save", Confidence: 0.8})
	require.NoError(t, err)
	assert.False(t, written, "(caller, callee) is unique")

	_, err = idx.InsertEdge(ctx, EdgeRow{CallerID: "u.pas::TForm1::OnClick", CalleeName: "Load", Confidence: 0.7})
	require.NoError(t, err)

	edges, err := idx.EdgesFrom(ctx, "onclick")
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	edges, err = idx.EdgesFrom(ctx, "Save")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestLegacySchemaMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	legacy, err := Open(path, nil)
	require.NoError(t, err)
	_, err = legacy.db.Exec("DROP TABLE code_index")
	require.NoError(t, err)
	_, err = legacy.db.Exec("CREATE TABLE code_index (function_name TEXT PRIMARY KEY, file_path TEXT)")
	require.NoError(t, err)
	_, err = legacy.db.Exec("INSERT INTO code_index VALUES ('Old', 'old.pas')")
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	idx, err := Open(path, nil)
	require.NoError(t, err)
	defer idx.Close()

	funcs, err := idx.Functions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, funcs, "legacy table is dropped and recreated")

	_, err = idx.InsertFunction(context.Background(), FunctionRow{FunctionName: "New", FilePath: "n.pas", Language: "delphi"})
	assert.NoError(t, err)
}

func TestParseChunkID(t *testing.T) {
	file, class, fn := ParseChunkID("src/u.pas::TForm1::OnClick")
	assert.Equal(t, "src/u.pas", file)
	assert.Equal(t, "TForm1", class)
	assert.Equal(t, "OnClick", fn)

	file, class, fn = ParseChunkID("src/u.pas::::OnClick")
	assert.Equal(t, "src/u.pas", file)
	assert.Empty(t, class)
	assert.Equal(t, "OnClick", fn)
}

var errModelOffline = errors.New("model offline")

func buildFixtureTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.py": "def main():\n    helper()\n    util()\n",
		"lib.py":  "def helper():\n    util()\n\ndef util():\n    pass\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func newTestBuilder(t *testing.T, idx *Index) *Builder {
	t.Helper()
	registry := profile.NewRegistry(nil)
	ch := chunker.New(registry, nil)
	ch.SetTreeSitter(false)

	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, errModelOffline // force regex fallback, deterministic
		},
	}
	client := llm.NewClient(provider, llm.ClientConfig{MaxConcurrent: 2, CallTimeout: time.Second}, nil)
	ex := extract.New(client, nil, registry, nil)
	return NewBuilder(idx, ch, ex, nil, nil)
}

func TestBuilderIdempotent(t *testing.T) {
	dir := buildFixtureTree(t)
	idx := openTestIndex(t)
	builder := newTestBuilder(t, idx)
	ctx := context.Background()

	first, err := builder.Build(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Files)
	assert.Equal(t, 3, first.Functions)
	require.Greater(t, first.Edges, 0)

	funcsFirst, err := idx.Functions(ctx, "")
	require.NoError(t, err)
	edgesFirst, err := idx.Edges(ctx)
	require.NoError(t, err)

	second, err := builder.Build(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, first.Functions, second.Functions)
	assert.Equal(t, first.Edges, second.Edges)

	funcsSecond, err := idx.Functions(ctx, "")
	require.NoError(t, err)
	edgesSecond, err := idx.Edges(ctx)
	require.NoError(t, err)

	assert.Equal(t, funcsFirst, funcsSecond, "re-indexing an unchanged tree is a no-op")
	assert.Equal(t, edgesFirst, edgesSecond)
}

func TestBuilderStoresExpectedEdges(t *testing.T) {
	dir := buildFixtureTree(t)
	idx := openTestIndex(t)
	builder := newTestBuilder(t, idx)
	ctx := context.Background()

	_, err := builder.Build(ctx, dir)
	require.NoError(t, err)

	edges, err := idx.EdgesFrom(ctx, "main")
	require.NoError(t, err)

	callees := map[string]bool{}
	for _, e := range edges {
		callees[e.CalleeName] = true
	}
	assert.True(t, callees["helper"])
	assert.True(t, callees["util"])
}
