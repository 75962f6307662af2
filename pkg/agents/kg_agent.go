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
	"log/slog"

	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/kg"
)

// KGDeriver produces the knowledge-graph side of the dual derivation.
type KGDeriver interface {
	Fetch(ctx context.Context, flowKey string) (*graph.Output, error)
}

// KGFetcher is the deterministic KGDeriver: three fixed queries, no model.
type KGFetcher struct {
	store  kg.Store
	logger *slog.Logger
}

// NewKGFetcher builds the deterministic fetcher.
func NewKGFetcher(store kg.Store, logger *slog.Logger) *KGFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KGFetcher{store: store, logger: logger}
}

// Fetch reconstructs the flow's call graph from the store. Every edge gets
// extraction method "kg" and confidence 1.0.
func (f *KGFetcher) Fetch(ctx context.Context, flowKey string) (*graph.Output, error) {
	fg, err := f.store.FlowGraphByKey(ctx, flowKey)
	if err != nil {
		return nil, fmt.Errorf("fetch flow graph: %w", err)
	}

	rootFunction := ""
	rootFile := ""
	rootClass := ""
	if len(fg.EntryPoints) > 0 {
		if root := fg.Snippets[fg.EntryPoints[0]]; root != nil {
			rootFunction = root.DisplayName()
			rootFile = graph.NormalizePath(root.FilePath)
			rootClass = root.ClassName
		}
	}
	if rootFunction == "" {
		rootFunction = "unknown"
	}

	// The execution_order property is optional on CALLS edges; the ordering
	// check downstream skips flows that never set it.
	hasOrder := false
	for _, call := range fg.Calls {
		if call.ExecutionOrder > 0 {
			hasOrder = true
			break
		}
	}

	edges := make([]graph.CallEdge, 0, len(fg.Calls))
	for _, call := range fg.Calls {
		caller := fg.Snippets[call.CallerKey]
		callee := fg.Snippets[call.CalleeKey]

		edge := graph.CallEdge{
			Caller:     call.CallerKey,
			Callee:     call.CalleeKey,
			Depth:      1,
			Method:     graph.MethodKG,
			Confidence: 1.0,
		}
		if caller != nil {
			edge.Caller = caller.DisplayName()
			edge.CallerFile = graph.NormalizePath(caller.FilePath)
			edge.CallerClass = caller.ClassName
		}
		if callee != nil {
			edge.Callee = callee.DisplayName()
			edge.CalleeFile = graph.NormalizePath(callee.FilePath)
			edge.CalleeClass = callee.ClassName
		}
		edges = append(edges, edge)
	}

	output := &graph.Output{
		FlowID:       flowKey,
		Source:       graph.SourceKG,
		RootFunction: rootFunction,
		Edges:        edges,
		Metadata: map[string]any{
			"root_file_path":        rootFile,
			"root_class_name":       rootClass,
			"total_nodes":           len(fg.Snippets),
			"entry_points":          len(fg.EntryPoints),
			"execution_order_known": hasOrder,
		},
	}

	f.logger.Info("agents.kg.fetched",
		"flow", flowKey,
		"edges", len(edges),
		"root", rootFunction,
	)
	return output, nil
}
