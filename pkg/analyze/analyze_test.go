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

package analyze

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/llm"
)

func phantomResult(edges ...graph.VerifiedEdge) *graph.VerificationResult {
	return &graph.VerificationResult{
		FlowID:       "flow-1",
		PhantomEdges: edges,
	}
}

func TestRuleAnalyzerQualifiedVsBare(t *testing.T) {
	result := phantomResult(graph.VerifiedEdge{
		Caller: "TFORM1.ONCLICK", Callee: "TFORM1.SAVE",
		Classification: graph.Phantom, Trust: 0.2,
	})
	srcGraph := &graph.Output{Metadata: map[string]any{
		"root_found_in_index":     true,
		"root_has_outgoing_edges": true,
		"resolved_via":            "bare_name",
	}}

	analysis, err := NewRuleAnalyzer(nil).Analyze(context.Background(), result, nil, srcGraph)
	require.NoError(t, err)

	require.Len(t, analysis.PhantomReasons, 1)
	assert.Equal(t, CauseQualifiedVsBare, analysis.PhantomReasons[0].Cause)
	assert.Contains(t, analysis.PhantomReasons[0].Reason, "ONCLICK -> SAVE")
	assert.Contains(t, analysis.SystemicPatterns[0], "qualified vs bare")
	assert.True(t, analysis.Root.FoundInIndex)
	assert.Contains(t, analysis.Root.Message, "bare_name")
}

func TestRuleAnalyzerRootNotFound(t *testing.T) {
	result := phantomResult(graph.VerifiedEdge{
		Caller: "MAIN", Callee: "HELPER", Classification: graph.Phantom, Trust: 0.2,
	})
	srcGraph := &graph.Output{Metadata: map[string]any{
		"root_found_in_index": false,
		"resolved_via":        "not_found",
	}}

	analysis, err := NewRuleAnalyzer(nil).Analyze(context.Background(), result, nil, srcGraph)
	require.NoError(t, err)

	assert.False(t, analysis.Root.FoundInIndex)
	require.Len(t, analysis.PhantomReasons, 1)
	assert.Equal(t, CauseWrongScope, analysis.PhantomReasons[0].Cause)
	assert.NotEmpty(t, analysis.RecommendedActions)
}

func TestRuleAnalyzerRenamedCallee(t *testing.T) {
	result := phantomResult(graph.VerifiedEdge{
		Caller: "MAIN", Callee: "OLDNAME", Classification: graph.Phantom, Trust: 0.2,
	})
	srcGraph := &graph.Output{
		UnresolvedCallees: []string{"OldName"},
		Metadata: map[string]any{
			"root_found_in_index":     true,
			"root_has_outgoing_edges": true,
		},
	}

	analysis, err := NewRuleAnalyzer(nil).Analyze(context.Background(), result, nil, srcGraph)
	require.NoError(t, err)
	require.Len(t, analysis.PhantomReasons, 1)
	assert.Equal(t, CauseRenamedRemoved, analysis.PhantomReasons[0].Cause)
}

func TestRuleAnalyzerMissingCauses(t *testing.T) {
	result := &graph.VerificationResult{
		FlowID: "flow-1",
		MissingEdges: []graph.VerifiedEdge{
			{Caller: "A", Callee: "LOWCONF", Classification: graph.Missing},
			{Caller: "A", Callee: "EXTRA", Classification: graph.Missing},
			{Caller: "OUTSIDER", Callee: "OTHER", Classification: graph.Missing},
		},
	}
	kgGraph := &graph.Output{Edges: []graph.CallEdge{{Caller: "A", Callee: "B"}}}
	srcGraph := &graph.Output{
		Edges: []graph.CallEdge{
			{Caller: "A", Callee: "LOWCONF", Confidence: 0.55},
			{Caller: "A", Callee: "EXTRA", Confidence: 0.9},
			{Caller: "OUTSIDER", Callee: "OTHER", Confidence: 0.9},
		},
		Metadata: map[string]any{"root_found_in_index": true, "root_has_outgoing_edges": true},
	}

	analysis, err := NewRuleAnalyzer(nil).Analyze(context.Background(), result, kgGraph, srcGraph)
	require.NoError(t, err)
	require.Len(t, analysis.MissingReasons, 3)
	assert.Equal(t, CauseOverReporting, analysis.MissingReasons[0].Cause)
	assert.Equal(t, CauseNotInKGFlow, analysis.MissingReasons[1].Cause)
	assert.Equal(t, CauseFlowScopeFiltered, analysis.MissingReasons[2].Cause)
}

func TestLLMAnalyzerParsesFinal(t *testing.T) {
	final := `{"final": {"phantom_reasons": [{"caller": "A", "callee": "B", "cause": "extraction_gap", "reason": "dynamic", "fix_suggestion": "check profile"}], "missing_reasons": [], "systemic_patterns": ["p"], "recommended_actions": ["r"]}}`
	client := llm.NewClient(&llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: final}}, nil
		},
	}, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	analyzer := NewLLMAnalyzer(client, nil, nil)
	// nil toolbelt is fine when the model never calls a tool
	result := phantomResult(graph.VerifiedEdge{Caller: "A", Callee: "B", Classification: graph.Phantom})

	analysis, err := analyzer.Analyze(context.Background(), result, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "llm", analysis.AgentType)
	require.Len(t, analysis.PhantomReasons, 1)
	assert.Equal(t, CauseExtractionGap, analysis.PhantomReasons[0].Cause)
}

func TestLLMAnalyzerFallsBackOnError(t *testing.T) {
	client := llm.NewClient(&llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, fmt.Errorf("model offline")
		},
	}, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	analyzer := NewLLMAnalyzer(client, nil, nil)
	result := phantomResult(graph.VerifiedEdge{
		Caller: "TFORM1.A", Callee: "B", Classification: graph.Phantom,
	})

	analysis, err := analyzer.Analyze(context.Background(), result, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rule_based", analysis.AgentType, "failure falls back to the rule-based analyzer")
	require.Len(t, analysis.PhantomReasons, 1)
}

func TestAnalyzerNoDiscrepancies(t *testing.T) {
	analysis, err := NewRuleAnalyzer(nil).Analyze(context.Background(),
		&graph.VerificationResult{FlowID: "f"}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, analysis.PhantomReasons)
	assert.Empty(t, analysis.MissingReasons)
}
