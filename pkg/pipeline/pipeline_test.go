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

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/agents"
	"github.com/trustlabs/trustbot/pkg/analyze"
	"github.com/trustlabs/trustbot/pkg/graph"
)

// fakeKG returns a canned graph per flow key, or an error.
type fakeKG struct {
	graphs map[string]*graph.Output
	errs   map[string]error
}

func (f *fakeKG) Fetch(ctx context.Context, flowKey string) (*graph.Output, error) {
	if err, ok := f.errs[flowKey]; ok {
		return nil, err
	}
	if g, ok := f.graphs[flowKey]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("flow %q not found", flowKey)
}

// fakeSource records requests and returns a canned graph.
type fakeSource struct {
	mu       sync.Mutex
	requests []agents.BuildRequest
	output   *graph.Output
}

func (f *fakeSource) Build(ctx context.Context, req agents.BuildRequest) (*graph.Output, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	out := *f.output
	out.FlowID = req.FlowID
	return &out, nil
}

func kgGraphFixture(flowKey string) *graph.Output {
	return &graph.Output{
		FlowID:       flowKey,
		Source:       graph.SourceKG,
		RootFunction: "main",
		Edges: []graph.CallEdge{
			{Caller: "main", Callee: "helper", CallerFile: "app.py", CalleeFile: "lib.py", Method: graph.MethodKG, Confidence: 1.0},
			{Caller: "main", Callee: "ghost", CallerFile: "app.py", CalleeFile: "gone.py", Method: graph.MethodKG, Confidence: 1.0},
		},
		Metadata: map[string]any{
			"root_file_path":  "src/app.py",
			"root_class_name": "",
		},
	}
}

func srcGraphFixture() *graph.Output {
	return &graph.Output{
		Source:       graph.SourceIndex,
		RootFunction: "main",
		Edges: []graph.CallEdge{
			{Caller: "main", Callee: "helper", CallerFile: "app.py", CalleeFile: "lib.py", Method: graph.MethodRegex, Confidence: 0.9},
		},
		Metadata: map[string]any{
			"root_found_in_index":     true,
			"root_has_outgoing_edges": true,
			"resolved_via":            "exact",
		},
	}
}

func newTestPipeline(kg *fakeKG, src *fakeSource) *Pipeline {
	return New(kg, src, analyze.NewRuleAnalyzer(nil), nil, nil, nil)
}

func TestValidateFlowStages(t *testing.T) {
	kg := &fakeKG{graphs: map[string]*graph.Output{"flow-1": kgGraphFixture("flow-1")}}
	src := &fakeSource{output: srcGraphFixture()}
	p := newTestPipeline(kg, src)

	fr, err := p.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)

	// KG root info and file hints were forwarded to the source agent.
	require.Len(t, src.requests, 1)
	assert.Equal(t, "main", src.requests[0].RootFunction)
	assert.Equal(t, "src/app.py", src.requests[0].RootFile)
	assert.Contains(t, src.requests[0].HintFiles, "app.py")
	assert.Contains(t, src.requests[0].HintFiles, "gone.py")

	// One confirmed, one phantom, analysis ran.
	assert.Len(t, fr.Result.ConfirmedEdges, 1)
	assert.Len(t, fr.Result.PhantomEdges, 1)
	require.NotNil(t, fr.Analysis)
	assert.NotEmpty(t, fr.Report)
	assert.Contains(t, fr.Report, "Phantom")
	assert.Equal(t, 0.5, fr.Result.FlowTrust)
}

func TestValidateFlowNoAnalysisWhenClean(t *testing.T) {
	kgGraph := kgGraphFixture("flow-1")
	kgGraph.Edges = kgGraph.Edges[:1] // drop the phantom
	kg := &fakeKG{graphs: map[string]*graph.Output{"flow-1": kgGraph}}
	src := &fakeSource{output: srcGraphFixture()}
	p := newTestPipeline(kg, src)

	fr, err := p.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Nil(t, fr.Analysis, "analysis only runs for non-trivial diffs")
	assert.Equal(t, 1.0, fr.Result.FlowTrust)
}

func TestValidateFlowsErrorStub(t *testing.T) {
	// S6: three flows, the middle one fails during KG fetch.
	kg := &fakeKG{
		graphs: map[string]*graph.Output{
			"k1": kgGraphFixture("k1"),
			"k3": kgGraphFixture("k3"),
		},
		errs: map[string]error{"k2": fmt.Errorf("connection refused")},
	}
	src := &fakeSource{output: srcGraphFixture()}
	p := newTestPipeline(kg, src)

	results := p.ValidateFlows(context.Background(), []string{"k1", "k2", "k3"}, 2, nil)

	require.Len(t, results, 3)
	assert.Equal(t, "k1", results[0].FlowKey)
	assert.Equal(t, "k2", results[1].FlowKey)
	assert.Equal(t, "k3", results[2].FlowKey)

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[2].Err)

	stub := results[1]
	require.Error(t, stub.Err)
	assert.Equal(t, 0.0, stub.Result.FlowTrust)
	assert.Equal(t, 0.0, stub.Result.GraphTrust)
	assert.Contains(t, stub.Result.Metadata["error"], "connection refused")
}

func TestValidateFlowsProgressCallback(t *testing.T) {
	kg := &fakeKG{graphs: map[string]*graph.Output{"k1": kgGraphFixture("k1")}}
	src := &fakeSource{output: srcGraphFixture()}
	p := newTestPipeline(kg, src)

	var mu sync.Mutex
	var stages []string
	progress := func(flowIndex, flowCount int, stage, message string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
		assert.Equal(t, 0, flowIndex)
		assert.Equal(t, 1, flowCount)
	}

	results := p.ValidateFlows(context.Background(), []string{"k1"}, 1, progress)
	require.Len(t, results, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, stages, StageKG)
	assert.Contains(t, stages, StageSource)
	assert.Contains(t, stages, StageVerify)
	assert.Equal(t, StageDone, stages[len(stages)-1])
}

func TestValidateFlowsResultsInInputOrder(t *testing.T) {
	graphs := make(map[string]*graph.Output)
	keys := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("flow-%d", i)
		keys = append(keys, key)
		graphs[key] = kgGraphFixture(key)
	}
	p := newTestPipeline(&fakeKG{graphs: graphs}, &fakeSource{output: srcGraphFixture()})

	results := p.ValidateFlows(context.Background(), keys, 3, nil)
	require.Len(t, results, len(keys))
	for i, r := range results {
		assert.Equal(t, keys[i], r.FlowKey)
		assert.Equal(t, keys[i], r.Result.FlowID)
	}
}

func TestAggregate(t *testing.T) {
	kg := &fakeKG{
		graphs: map[string]*graph.Output{"k1": kgGraphFixture("k1")},
		errs:   map[string]error{"k2": fmt.Errorf("boom")},
	}
	p := newTestPipeline(kg, &fakeSource{output: srcGraphFixture()})

	results := p.ValidateFlows(context.Background(), []string{"k1", "k2"}, 2, nil)
	agg := Aggregate(results)

	assert.Equal(t, 2, agg["flows"])
	assert.Equal(t, 1, agg["flows_validated"])
	assert.Equal(t, 1, agg["flows_failed"])
	assert.Equal(t, 1, agg["confirmed_edges"])
	assert.Equal(t, 1, agg["phantom_edges"])
	assert.Equal(t, 0.5, agg["avg_flow_trust"])
}

func TestMarkdownReport(t *testing.T) {
	result := &graph.VerificationResult{
		FlowID:    "flow-1",
		FlowTrust: 0.5,
		ConfirmedEdges: []graph.VerifiedEdge{
			{Caller: "MAIN", Callee: "HELPER", Trust: 0.95, Details: "Full match (name + class + file)"},
		},
		PhantomEdges: []graph.VerifiedEdge{
			{Caller: "MAIN", Callee: "GHOST", Details: "In KG only - not found in indexed codebase"},
		},
	}

	md := MarkdownReport(result, nil)
	assert.Contains(t, md, "# Validation Report: flow-1")
	assert.Contains(t, md, "| Confirmed | 1 |")
	assert.Contains(t, md, "`MAIN` -> `GHOST`")

	assert.Equal(t, md, MarkdownReport(result, nil), "report is deterministic")
}
