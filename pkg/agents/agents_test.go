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

package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trustbottesting "github.com/trustlabs/trustbot/internal/testing"
	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/index"
	"github.com/trustlabs/trustbot/pkg/kg"
	"github.com/trustlabs/trustbot/pkg/llm"
)

// fakeStore is an in-memory kg.Store.
type fakeStore struct {
	flows  map[string]*kg.FlowGraph
	failed bool
}

func (f *fakeStore) FlowByKey(ctx context.Context, key string) (*kg.ExecutionFlow, error) {
	if fg, ok := f.flows[key]; ok {
		return fg.Flow, nil
	}
	return nil, fmt.Errorf("%w: %q", kg.ErrFlowNotFound, key)
}

func (f *fakeStore) FlowGraphByKey(ctx context.Context, key string) (*kg.FlowGraph, error) {
	if f.failed {
		return nil, fmt.Errorf("connection refused")
	}
	if fg, ok := f.flows[key]; ok {
		return fg, nil
	}
	return nil, fmt.Errorf("%w: %q", kg.ErrFlowNotFound, key)
}

func (f *fakeStore) FlowsByProject(ctx context.Context, projectID, runID int64) ([]kg.ExecutionFlow, error) {
	var out []kg.ExecutionFlow
	for _, fg := range f.flows {
		out = append(out, *fg.Flow)
	}
	return out, nil
}

func sampleFlowGraph() *kg.FlowGraph {
	return &kg.FlowGraph{
		Flow: &kg.ExecutionFlow{Key: "flow-1", Name: "Save flow"},
		Snippets: map[string]*kg.Snippet{
			"s1": {Key: "s1", FunctionName: "TForm1.OnClick", ClassName: "TForm1", FilePath: `C:\app\u.pas`, StartsFlow: true},
			"s2": {Key: "s2", FunctionName: "TForm1.Save", ClassName: "TForm1", FilePath: `C:\app\u.pas`},
		},
		Calls: []kg.FlowCall{
			{CallerKey: "s1", CalleeKey: "s2", ExecutionOrder: 1},
		},
		EntryPoints: []string{"s1"},
	}
}

func TestKGFetcher(t *testing.T) {
	store := &fakeStore{flows: map[string]*kg.FlowGraph{"flow-1": sampleFlowGraph()}}
	fetcher := NewKGFetcher(store, nil)

	out, err := fetcher.Fetch(context.Background(), "flow-1")
	require.NoError(t, err)

	assert.Equal(t, graph.SourceKG, out.Source)
	assert.Equal(t, "TForm1.OnClick", out.RootFunction)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, "TForm1.OnClick", out.Edges[0].Caller)
	assert.Equal(t, "TForm1.Save", out.Edges[0].Callee)
	assert.Equal(t, graph.MethodKG, out.Edges[0].Method)
	assert.Equal(t, 1.0, out.Edges[0].Confidence)
	assert.Equal(t, "C:/app/u.pas", out.Edges[0].CallerFile, "paths are normalized to forward slashes")
	assert.Equal(t, "C:/app/u.pas", out.Metadata["root_file_path"])
	assert.Equal(t, "TForm1", out.Metadata["root_class_name"])
}

func TestKGFetcherFlowNotFound(t *testing.T) {
	fetcher := NewKGFetcher(&fakeStore{flows: map[string]*kg.FlowGraph{}}, nil)
	_, err := fetcher.Fetch(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, kg.ErrFlowNotFound)
}

func seedIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := trustbottesting.SetupTestIndex(t)

	trustbottesting.InsertTestFunction(t, idx, "OnClick", "src/u.pas", "TForm1")
	trustbottesting.InsertTestFunction(t, idx, "Save", "src/u.pas", "TForm1")
	trustbottesting.InsertTestFunction(t, idx, "Save", "other/v.pas", "TOther")
	trustbottesting.InsertTestFunction(t, idx, "Log", "src/log.pas", "")

	trustbottesting.InsertTestEdge(t, idx, "src/u.pas::TForm1::OnClick", "Save", 0.9)
	trustbottesting.InsertTestEdge(t, idx, "src/u.pas::TForm1::Save", "Log", 0.8)
	trustbottesting.InsertTestEdge(t, idx, "src/u.pas::TForm1::Save", "Ghost", 0.6)
	// Cycle back to the root.
	trustbottesting.InsertTestEdge(t, idx, "src/log.pas::::Log", "OnClick", 0.5)
	return idx
}

func TestSourceBuilderBFS(t *testing.T) {
	builder := NewSourceBuilder(seedIndex(t), nil)

	out, err := builder.Build(context.Background(), BuildRequest{
		FlowID:       "flow-1",
		RootFunction: "TForm1.OnClick",
		RootClass:    "TForm1",
		RootFile:     `C:\app\src\u.pas`,
	})
	require.NoError(t, err)

	assert.Equal(t, graph.SourceIndex, out.Source)
	assert.Equal(t, "OnClick", out.RootFunction, "qualified root resolves to its bare form")
	assert.Equal(t, "bare_name+class", out.Metadata["resolved_via"])
	assert.Equal(t, true, out.Metadata["root_found_in_index"])

	// OnClick -> Save, Save -> Log, Log -> OnClick (cycle, visited set stops it).
	require.Len(t, out.Edges, 3)
	assert.Equal(t, []string{"Ghost"}, out.UnresolvedCallees)

	for _, e := range out.Edges {
		assert.Equal(t, graph.MethodRegex, e.Method)
		assert.GreaterOrEqual(t, e.Depth, 1)
	}

	first := out.Edges[0]
	assert.Equal(t, "OnClick", first.Caller)
	assert.Equal(t, "Save", first.Callee)
	assert.Equal(t, "src/u.pas", first.CalleeFile, "callee file backfilled from the function map")
	assert.Equal(t, "TForm1", first.CalleeClass)
}

func TestSourceBuilderFileHintDisambiguation(t *testing.T) {
	builder := NewSourceBuilder(seedIndex(t), nil)

	out, err := builder.Build(context.Background(), BuildRequest{
		FlowID:       "flow-2",
		RootFunction: "Save",
		HintFiles:    map[string]struct{}{`C:\remote\other\v.pas`: {}},
	})
	require.NoError(t, err)

	assert.Equal(t, "exact+file_hint", out.Metadata["resolved_via"])
	assert.Equal(t, "other/v.pas", out.Metadata["resolved_root_file"])
}

func TestSourceBuilderRootNotFound(t *testing.T) {
	builder := NewSourceBuilder(seedIndex(t), nil)

	out, err := builder.Build(context.Background(), BuildRequest{
		FlowID:       "flow-3",
		RootFunction: "DoesNotExist",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Edges)
	assert.Equal(t, "not_found", out.Metadata["resolved_via"])
	assert.Equal(t, false, out.Metadata["root_found_in_index"])
}

func TestLLMSourceBuilderSkipsModelWhenRuleSucceeds(t *testing.T) {
	var calls int32
	client := llm.NewClient(&llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			atomic.AddInt32(&calls, 1)
			return &llm.ChatResponse{}, nil
		},
	}, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	idx := seedIndex(t)
	hybrid := NewLLMSourceBuilder(NewSourceBuilder(idx, nil), client, NewToolbelt(idx, ""), nil)

	out, err := hybrid.Build(context.Background(), BuildRequest{FlowID: "f", RootFunction: "OnClick"})
	require.NoError(t, err)
	assert.Equal(t, "rule_based", out.Metadata["agent_type"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "model is consulted only when the rule path fails")
}

func TestLLMSourceBuilderResolvesViaTools(t *testing.T) {
	step := int32(0)
	client := llm.NewClient(&llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			switch atomic.AddInt32(&step, 1) {
			case 1:
				return &llm.ChatResponse{Message: llm.Message{Role: "assistant",
					Content: `{"tool": "search_functions", "args": {"fragment": "click"}}`}}, nil
			default:
				return &llm.ChatResponse{Message: llm.Message{Role: "assistant",
					Content: `{"final": {"root_function": "OnClick", "resolved_via": "llm_search", "edges": [{"caller": "OnClick", "callee": "Save", "confidence": 0.9}], "unresolved": [], "observations": ["root name was misspelled in the KG"]}}`}}, nil
			}
		},
	}, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	idx := seedIndex(t)
	hybrid := NewLLMSourceBuilder(NewSourceBuilder(idx, nil), client, NewToolbelt(idx, ""), nil)

	out, err := hybrid.Build(context.Background(), BuildRequest{FlowID: "f", RootFunction: "OnClik"}) // misspelled
	require.NoError(t, err)
	assert.Equal(t, "llm_resolved", out.Metadata["agent_type"])
	assert.Equal(t, "OnClick", out.RootFunction)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, graph.MethodLLMPrimary, out.Edges[0].Method)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&step), int32(2))
}

func TestToolbeltRejectsAbsolutePaths(t *testing.T) {
	idx, err := index.Open(filepath.Join(t.TempDir(), "i.db"), nil)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	// A KG-shaped absolute path smuggled into the index.
	_, err = idx.InsertFunction(ctx, index.FunctionRow{FunctionName: "Evil", FilePath: `C:\remote\evil.pas`, Language: "delphi"})
	require.NoError(t, err)

	tb := NewToolbelt(idx, t.TempDir())
	result := tb.Dispatch(ctx, "read_function", map[string]any{"name": "Evil"})
	assert.Contains(t, result, "error")
	assert.Contains(t, result, "non-relative")
}

func TestToolbeltSearchAndEdges(t *testing.T) {
	idx := seedIndex(t)
	tb := NewToolbelt(idx, "")
	ctx := context.Background()

	result := tb.Dispatch(ctx, "search_functions", map[string]any{"fragment": "save"})
	assert.Contains(t, result, "Save")
	assert.Contains(t, result, "src/u.pas")

	result = tb.Dispatch(ctx, "edges_from", map[string]any{"caller": "OnClick"})
	assert.Contains(t, result, "Save")

	result = tb.Dispatch(ctx, "no_such_tool", nil)
	assert.Contains(t, result, "unknown tool")
}
