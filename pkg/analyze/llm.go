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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trustlabs/trustbot/pkg/agents"
	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/llm"
)

const maxAnalysisIterations = 15
const maxEdgesInPrompt = 20

const analysisSystem = `You are a code-analysis agent explaining call-graph validation discrepancies.
Phantom edges exist in the knowledge graph but not in the indexed source;
missing edges exist in the source but not in the knowledge graph. Use the
tools to read index entries and source bodies when that settles a question.

Per phantom edge choose one cause: qualified_vs_bare_naming,
wrong_project_scope, callee_renamed_or_removed, dynamic_or_indirect_call,
form_binding_not_indexed, extraction_gap.
Per missing edge choose one: flow_scope_filtered, call_not_in_kg_flow,
extractor_over_reporting.

To call a tool, respond with ONE JSON object: {"tool": "...", "args": {...}}
When done, respond with ONE JSON object:
{"final": {"phantom_reasons": [{"caller": "...", "callee": "...", "cause": "...", "reason": "...", "fix_suggestion": "..."}], "missing_reasons": [...], "systemic_patterns": ["..."], "recommended_actions": ["..."]}}

`

// LLMAnalyzer consults the model with the agents toolbelt; any failure falls
// back to the rule-based analyzer, so Analyze never returns an error from
// the model path.
type LLMAnalyzer struct {
	client   *llm.Client
	toolbelt *agents.Toolbelt
	fallback *RuleAnalyzer
	logger   *slog.Logger
}

// NewLLMAnalyzer builds the LLM-assisted analyzer.
func NewLLMAnalyzer(client *llm.Client, toolbelt *agents.Toolbelt, logger *slog.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMAnalyzer{
		client:   client,
		toolbelt: toolbelt,
		fallback: NewRuleAnalyzer(logger),
		logger:   logger,
	}
}

// Analyze implements Analyzer.
func (a *LLMAnalyzer) Analyze(ctx context.Context, result *graph.VerificationResult, kgGraph, srcGraph *graph.Output) (*Analysis, error) {
	if len(result.PhantomEdges) == 0 && len(result.MissingEdges) == 0 {
		return &Analysis{AgentType: "llm", Root: rootAnalysisFromGraph(srcGraph)}, nil
	}

	analysis := a.consult(ctx, result, srcGraph)
	if analysis == nil {
		a.logger.Warn("analyze.llm_fallback", "flow", result.FlowID)
		return a.fallback.Analyze(ctx, result, kgGraph, srcGraph)
	}
	analysis.AgentType = "llm"
	analysis.Root = rootAnalysisFromGraph(srcGraph)
	return analysis, nil
}

func (a *LLMAnalyzer) consult(ctx context.Context, result *graph.VerificationResult, srcGraph *graph.Output) *Analysis {
	messages := []llm.Message{
		{Role: "system", Content: analysisSystem + a.toolbelt.Describe()},
		{Role: "user", Content: buildAnalysisPrompt(result, srcGraph)},
	}

	for i := 0; i < maxAnalysisIterations; i++ {
		resp, err := a.client.Chat(ctx, llm.ChatRequest{Messages: messages, Temperature: 0})
		if err != nil {
			a.logger.Warn("analyze.llm_error", "err", err)
			return nil
		}

		var step struct {
			Tool  string         `json:"tool"`
			Args  map[string]any `json:"args"`
			Final *Analysis      `json:"final"`
		}
		if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Message.Content)), &step); err != nil {
			a.logger.Warn("analyze.llm_parse_error", "err", err)
			return nil
		}

		if step.Final != nil {
			return step.Final
		}
		if step.Tool == "" {
			return nil
		}
		toolResult := a.toolbelt.Dispatch(ctx, step.Tool, step.Args)
		messages = append(messages, resp.Message, llm.Message{Role: "user", Content: toolResult})
	}

	a.logger.Warn("analyze.llm_max_iterations")
	return nil
}

func buildAnalysisPrompt(result *graph.VerificationResult, srcGraph *graph.Output) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execution flow: %s\n", result.FlowID)
	fmt.Fprintf(&sb, "Trust: flow=%.2f graph=%.2f\n", result.FlowTrust, result.GraphTrust)
	fmt.Fprintf(&sb, "Confirmed: %d, Phantom: %d, Missing: %d\n",
		len(result.ConfirmedEdges), len(result.PhantomEdges), len(result.MissingEdges))

	if srcGraph != nil {
		fmt.Fprintf(&sb, "\nSource root: %s\n", srcGraph.RootFunction)
		fmt.Fprintf(&sb, "Root found in index: %v\n", srcGraph.Metadata["root_found_in_index"])
		fmt.Fprintf(&sb, "Resolved via: %v\n", srcGraph.Metadata["resolved_via"])
	}

	// File paths shrink to basenames: phantom edges can carry remote-shaped
	// KG paths that must not look resolvable.
	if len(result.PhantomEdges) > 0 {
		fmt.Fprintf(&sb, "\nPHANTOM EDGES (%d total):\n", len(result.PhantomEdges))
		for i, e := range result.PhantomEdges {
			if i >= maxEdgesInPrompt {
				fmt.Fprintf(&sb, "(... %d more)\n", len(result.PhantomEdges)-maxEdgesInPrompt)
				break
			}
			fmt.Fprintf(&sb, "- %s -> %s (files: %s, %s)\n",
				e.Caller, e.Callee, graph.FileBase(e.CallerFile), graph.FileBase(e.CalleeFile))
		}
	}
	if len(result.MissingEdges) > 0 {
		fmt.Fprintf(&sb, "\nMISSING EDGES (%d total):\n", len(result.MissingEdges))
		for i, e := range result.MissingEdges {
			if i >= maxEdgesInPrompt {
				fmt.Fprintf(&sb, "(... %d more)\n", len(result.MissingEdges)-maxEdgesInPrompt)
				break
			}
			fmt.Fprintf(&sb, "- %s -> %s\n", e.Caller, e.Callee)
		}
	}
	if len(result.UnresolvedCallees) > 0 {
		fmt.Fprintf(&sb, "\nUnresolved callees: %v\n", result.UnresolvedCallees)
	}
	return sb.String()
}

func rootAnalysisFromGraph(srcGraph *graph.Output) RootAnalysis {
	if srcGraph == nil || srcGraph.Metadata == nil {
		return RootAnalysis{ResolvedVia: "unknown", Message: "No source graph metadata available."}
	}
	return rootAnalysis(srcGraph.Metadata)
}
