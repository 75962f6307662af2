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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/kg"
	"github.com/trustlabs/trustbot/pkg/llm"
)

// maxToolIterations bounds the tool loop for the LLM-assisted agents.
const maxToolIterations = 10

const codebaseAgentSystem = `You are a code-analysis agent reconstructing a call graph from a code index.
The deterministic resolver failed to find the root function or produced no
edges. Use the tools to locate the root (names may be qualified Class.Method
on one side and bare on the other), then follow edges_from to build the
graph.

When done, respond with ONE JSON object (no fences):
{"final": {"root_function": "...", "resolved_via": "...", "edges": [{"caller": "...", "callee": "...", "caller_file": "", "callee_file": "", "caller_class": "", "callee_class": "", "depth": 1, "confidence": 0.85}], "unresolved": [], "observations": ["..."]}}

To call a tool, respond with ONE JSON object:
{"tool": "search_functions", "args": {"fragment": "save"}}

`

const kgAgentSystem = `You are a graph-interpretation agent. Given an execution flow's participant
snippets and CALLS relationships from a knowledge graph, identify the root
(entry point) and emit the canonical call graph.

Respond with ONE JSON object (no fences):
{"root_function": "...", "edges": [{"caller": "...", "callee": "...", "caller_file": "", "callee_file": "", "caller_class": "", "callee_class": ""}], "observations": ["..."]}`

// llmEdge is the JSON edge shape the models return.
type llmEdge struct {
	Caller      string  `json:"caller"`
	Callee      string  `json:"callee"`
	CallerFile  string  `json:"caller_file"`
	CalleeFile  string  `json:"callee_file"`
	CallerClass string  `json:"caller_class"`
	CalleeClass string  `json:"callee_class"`
	Depth       int     `json:"depth"`
	Confidence  float64 `json:"confidence"`
}

// =============================================================================
// LLM-ASSISTED KG FETCHER
// =============================================================================

// LLMKGFetcher asks the model to interpret the raw flow graph; any failure
// (call, parse, empty result) falls back to the deterministic fetcher.
type LLMKGFetcher struct {
	store    kg.Store
	client   *llm.Client
	fallback *KGFetcher
	logger   *slog.Logger
}

// NewLLMKGFetcher builds the LLM-assisted fetcher.
func NewLLMKGFetcher(store kg.Store, client *llm.Client, logger *slog.Logger) *LLMKGFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMKGFetcher{
		store:    store,
		client:   client,
		fallback: NewKGFetcher(store, logger),
		logger:   logger,
	}
}

// Fetch implements KGDeriver.
func (f *LLMKGFetcher) Fetch(ctx context.Context, flowKey string) (*graph.Output, error) {
	fg, err := f.store.FlowGraphByKey(ctx, flowKey)
	if err != nil {
		return nil, fmt.Errorf("fetch flow graph: %w", err)
	}

	output, llmErr := f.interpret(ctx, flowKey, fg)
	if llmErr != nil {
		f.logger.Warn("agents.kg.llm_fallback", "flow", flowKey, "err", llmErr)
		return f.fallback.Fetch(ctx, flowKey)
	}
	output.Metadata["agent_type"] = "llm"
	return output, nil
}

func (f *LLMKGFetcher) interpret(ctx context.Context, flowKey string, fg *kg.FlowGraph) (*graph.Output, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execution flow: %s\n\nPARTICIPANTS:\n", flowKey)
	for _, s := range fg.Snippets {
		fmt.Fprintf(&sb, "- key=%s function=%s class=%s file=%s starts_flow=%v\n",
			s.Key, s.FunctionName, s.ClassName, s.FilePath, s.StartsFlow)
	}
	sb.WriteString("\nCALLS:\n")
	for _, c := range fg.Calls {
		fmt.Fprintf(&sb, "- %s -> %s (execution_order=%d)\n", c.CallerKey, c.CalleeKey, c.ExecutionOrder)
	}

	resp, err := f.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: kgAgentSystem},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		RootFunction string    `json:"root_function"`
		Edges        []llmEdge `json:"edges"`
		Observations []string  `json:"observations"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Message.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse kg agent response: %w", err)
	}
	if parsed.RootFunction == "" || len(parsed.Edges) == 0 {
		return nil, fmt.Errorf("kg agent returned empty graph")
	}

	edges := make([]graph.CallEdge, 0, len(parsed.Edges))
	for _, e := range parsed.Edges {
		edges = append(edges, graph.CallEdge{
			Caller:      e.Caller,
			Callee:      e.Callee,
			CallerFile:  graph.NormalizePath(e.CallerFile),
			CalleeFile:  graph.NormalizePath(e.CalleeFile),
			CallerClass: e.CallerClass,
			CalleeClass: e.CalleeClass,
			Depth:       1,
			Method:      graph.MethodKG,
			Confidence:  1.0,
		})
	}

	rootFile, rootClass := "", ""
	if len(fg.EntryPoints) > 0 {
		if root := fg.Snippets[fg.EntryPoints[0]]; root != nil {
			rootFile = graph.NormalizePath(root.FilePath)
			rootClass = root.ClassName
		}
	}

	return &graph.Output{
		FlowID:       flowKey,
		Source:       graph.SourceKG,
		RootFunction: parsed.RootFunction,
		Edges:        edges,
		Metadata: map[string]any{
			"root_file_path":  rootFile,
			"root_class_name": rootClass,
			"total_nodes":     len(fg.Snippets),
			"observations":    parsed.Observations,
		},
	}, nil
}

// =============================================================================
// HYBRID SOURCE BUILDER
// =============================================================================

// LLMSourceBuilder is the hybrid SourceDeriver: the deterministic BFS runs
// first (pure data lookups, no model), and the model is consulted only when
// that path finds no root or produces zero edges.
type LLMSourceBuilder struct {
	rule     *SourceBuilder
	client   *llm.Client
	toolbelt *Toolbelt
	logger   *slog.Logger
}

// NewLLMSourceBuilder builds the hybrid agent.
func NewLLMSourceBuilder(rule *SourceBuilder, client *llm.Client, toolbelt *Toolbelt, logger *slog.Logger) *LLMSourceBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMSourceBuilder{rule: rule, client: client, toolbelt: toolbelt, logger: logger}
}

// Build implements SourceDeriver.
func (b *LLMSourceBuilder) Build(ctx context.Context, req BuildRequest) (*graph.Output, error) {
	output, err := b.rule.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	rootFound, _ := output.Metadata["root_found_in_index"].(bool)
	if rootFound && len(output.Edges) > 0 {
		output.Metadata["agent_type"] = "rule_based"
		return output, nil
	}

	b.logger.Info("agents.source.llm_resolve",
		"flow", req.FlowID,
		"root_found", rootFound,
		"rule_edges", len(output.Edges),
	)

	resolved := b.resolveWithTools(ctx, req, output.Metadata)
	if resolved != nil && len(resolved.Edges) > len(output.Edges) {
		resolved.Metadata["agent_type"] = "llm_resolved"
		return resolved, nil
	}

	output.Metadata["agent_type"] = "rule_based"
	return output, nil
}

func (b *LLMSourceBuilder) resolveWithTools(ctx context.Context, req BuildRequest, ruleMeta map[string]any) *graph.Output {
	hintNames := make([]string, 0, len(req.HintFiles))
	for h := range req.HintFiles {
		hintNames = append(hintNames, graph.FileBase(h))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Execution flow: %s\nRoot function: %s\n", req.FlowID, req.RootFunction)
	if req.RootClass != "" {
		fmt.Fprintf(&sb, "Root class: %s\n", req.RootClass)
	}
	if req.RootFile != "" {
		fmt.Fprintf(&sb, "Root filename (reference only): %s\n", graph.FileBase(req.RootFile))
	}
	fmt.Fprintf(&sb, "Rule-based agent found root in index: %v\n", ruleMeta["root_found_in_index"])
	fmt.Fprintf(&sb, "Sample indexed functions: %v\n", ruleMeta["sample_index_functions"])
	fmt.Fprintf(&sb, "Sample edge callers: %v\n", ruleMeta["sample_edge_callers"])
	if len(hintNames) > 0 {
		fmt.Fprintf(&sb, "KG-side filenames (reference only): %v\n", hintNames)
	}

	messages := []llm.Message{
		{Role: "system", Content: codebaseAgentSystem + b.toolbelt.Describe()},
		{Role: "user", Content: sb.String()},
	}

	for i := 0; i < maxToolIterations; i++ {
		resp, err := b.client.Chat(ctx, llm.ChatRequest{Messages: messages, Temperature: 0})
		if err != nil {
			b.logger.Warn("agents.source.llm_error", "err", err)
			return nil
		}

		var step struct {
			Tool  string         `json:"tool"`
			Args  map[string]any `json:"args"`
			Final *struct {
				RootFunction string    `json:"root_function"`
				ResolvedVia  string    `json:"resolved_via"`
				Edges        []llmEdge `json:"edges"`
				Unresolved   []string  `json:"unresolved"`
				Observations []string  `json:"observations"`
			} `json:"final"`
		}
		if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Message.Content)), &step); err != nil {
			b.logger.Warn("agents.source.llm_parse_error", "err", err)
			return nil
		}

		if step.Final != nil {
			edges := make([]graph.CallEdge, 0, len(step.Final.Edges))
			for _, e := range step.Final.Edges {
				depth := e.Depth
				if depth < 1 {
					depth = 1
				}
				conf := e.Confidence
				if conf <= 0 || conf > 1 {
					conf = 0.85
				}
				edges = append(edges, graph.CallEdge{
					Caller:      e.Caller,
					Callee:      e.Callee,
					CallerFile:  e.CallerFile,
					CalleeFile:  e.CalleeFile,
					CallerClass: e.CallerClass,
					CalleeClass: e.CalleeClass,
					Depth:       depth,
					Method:      graph.MethodLLMPrimary,
					Confidence:  conf,
				})
			}
			root := step.Final.RootFunction
			if root == "" {
				root = req.RootFunction
			}
			return &graph.Output{
				FlowID:            req.FlowID,
				Source:            graph.SourceIndex,
				RootFunction:      root,
				Edges:             edges,
				UnresolvedCallees: step.Final.Unresolved,
				Metadata: map[string]any{
					"original_root": req.RootFunction,
					"resolved_root": root,
					"resolved_via":  nonEmpty(step.Final.ResolvedVia, "llm_agent"),
					"observations":  step.Final.Observations,
				},
			}
		}

		if step.Tool == "" {
			b.logger.Warn("agents.source.llm_no_action")
			return nil
		}
		result := b.toolbelt.Dispatch(ctx, step.Tool, step.Args)
		messages = append(messages, resp.Message, llm.Message{Role: "user", Content: result})
	}

	b.logger.Warn("agents.source.llm_max_iterations")
	return nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
