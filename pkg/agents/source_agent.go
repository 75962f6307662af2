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
	"path"
	"sort"
	"strings"

	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/index"
)

// maxTraversalDepth caps the BFS so cyclic or degenerate edge data cannot
// run away.
const maxTraversalDepth = 50

// BuildRequest carries the root identified by the KG side plus resolution
// hints. HintFiles are the file paths seen in the KG graph.
type BuildRequest struct {
	FlowID       string
	RootFunction string
	RootClass    string
	RootFile     string
	HintFiles    map[string]struct{}
}

// SourceDeriver produces the source-index side of the dual derivation.
type SourceDeriver interface {
	Build(ctx context.Context, req BuildRequest) (*graph.Output, error)
}

// SourceBuilder is the deterministic SourceDeriver: resolve the root in the
// code index, then BFS over the stored call edges.
type SourceBuilder struct {
	index  *index.Index
	logger *slog.Logger
}

// NewSourceBuilder builds the deterministic source agent.
func NewSourceBuilder(idx *index.Index, logger *slog.Logger) *SourceBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceBuilder{index: idx, logger: logger}
}

type candidate struct {
	name      string
	filePath  string
	className string
}

type indexedEdge struct {
	callerName  string
	calleeName  string
	callerFile  string
	calleeFile  string
	callerClass string
	calleeClass string
	confidence  float64
}

// Build walks the index from the resolved root. Callees with no function row
// land in UnresolvedCallees; metadata carries the resolution diagnostics the
// analyzer feeds on.
func (b *SourceBuilder) Build(ctx context.Context, req BuildRequest) (*graph.Output, error) {
	funcs, err := b.index.Functions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load index functions: %w", err)
	}
	edgeRows, err := b.index.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index edges: %w", err)
	}

	// Function map keyed by uppercase bare name.
	byName := make(map[string][]candidate, len(funcs))
	for _, f := range funcs {
		key := strings.ToUpper(strings.TrimSpace(f.FunctionName))
		byName[key] = append(byName[key], candidate{
			name:      f.FunctionName,
			filePath:  f.FilePath,
			className: f.ClassName,
		})
	}

	// Edge map keyed by uppercase bare caller name, preserving insertion
	// order (the source-side execution order).
	edgeMap := make(map[string][]indexedEdge)
	for _, row := range edgeRows {
		callerFile, callerClass, callerName := index.ParseChunkID(row.CallerID)

		// Callees are usually stored as bare names; a chunk-ID shape also
		// carries file and class.
		var calleeFile, calleeClass, calleeName string
		if strings.Contains(row.CalleeName, "::") {
			calleeFile, calleeClass, calleeName = index.ParseChunkID(row.CalleeName)
		}
		if calleeName == "" {
			calleeName = strings.TrimSpace(row.CalleeName)
			calleeFile, calleeClass = "", ""
		}
		key := strings.ToUpper(callerName)
		edgeMap[key] = append(edgeMap[key], indexedEdge{
			callerName:  callerName,
			calleeName:  calleeName,
			callerFile:  callerFile,
			calleeFile:  calleeFile,
			callerClass: callerClass,
			calleeClass: calleeClass,
			confidence:  row.Confidence,
		})
	}

	rootName, rootCand, resolvedVia := b.resolveRoot(req, byName)
	rootKey := strings.ToUpper(rootName)
	_, rootInIndex := byName[rootKey]
	rootOutgoing := len(edgeMap[rootKey])

	if !rootInIndex {
		b.logger.Warn("agents.source.root_missing",
			"root", req.RootFunction,
			"index_functions", len(funcs),
		)
	}
	if rootOutgoing == 0 {
		b.logger.Warn("agents.source.root_no_edges",
			"root", req.RootFunction,
			"index_edges", len(edgeRows),
		)
	}

	var (
		edges      []graph.CallEdge
		unresolved []string
	)
	visited := make(map[string]struct{})
	unresolvedSeen := make(map[string]struct{})

	type frame struct {
		name  string
		depth int
	}
	queue := []frame{{name: rootName, depth: 1}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > maxTraversalDepth {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(cur.name))
		if _, done := visited[key]; done {
			continue
		}
		visited[key] = struct{}{}

		callerFile, callerClass := lookupFileClass(byName, key)

		for _, e := range edgeMap[key] {
			calleeKey := strings.ToUpper(strings.TrimSpace(e.calleeName))

			calleeFile := e.calleeFile
			calleeClass := e.calleeClass
			if calleeFile == "" || calleeClass == "" {
				f, c := lookupFileClass(byName, calleeKey)
				if calleeFile == "" {
					calleeFile = f
				}
				if calleeClass == "" {
					calleeClass = c
				}
			}

			if calleeFile == "" {
				if _, dup := unresolvedSeen[calleeKey]; !dup {
					unresolvedSeen[calleeKey] = struct{}{}
					unresolved = append(unresolved, e.calleeName)
				}
				continue
			}

			cf := e.callerFile
			if cf == "" {
				cf = callerFile
			}
			cc := e.callerClass
			if cc == "" {
				cc = callerClass
			}

			edges = append(edges, graph.CallEdge{
				Caller:      cur.name,
				Callee:      e.calleeName,
				CallerFile:  cf,
				CalleeFile:  calleeFile,
				CallerClass: cc,
				CalleeClass: calleeClass,
				Depth:       cur.depth,
				Method:      graph.MethodRegex,
				Confidence:  e.confidence,
			})

			queue = append(queue, frame{name: e.calleeName, depth: cur.depth + 1})
		}
	}

	output := &graph.Output{
		FlowID:            req.FlowID,
		Source:            graph.SourceIndex,
		RootFunction:      rootName,
		Edges:             edges,
		UnresolvedCallees: unresolved,
		Metadata: map[string]any{
			"index_functions":         len(funcs),
			"index_edges":             len(edgeRows),
			"root_found_in_index":     rootInIndex,
			"root_has_outgoing_edges": rootOutgoing > 0,
			"root_outgoing_count":     rootOutgoing,
			"resolved_via":            resolvedVia,
			"resolved_root_file":      rootCand.filePath,
			"resolved_root_class":     rootCand.className,
			"sample_index_functions":  sampleKeys(byName),
			"sample_edge_callers":     sampleEdgeKeys(edgeMap),
			"total_nodes":             countNodes(edges),
		},
	}

	b.logger.Info("agents.source.built",
		"flow", req.FlowID,
		"root", rootName,
		"resolved_via", resolvedVia,
		"edges", len(edges),
		"unresolved", len(unresolved),
	)
	return output, nil
}

// resolveRoot tries, in order: the exact name, its bare form, a candidate
// whose class matches, and finally prefers candidates sharing a directory
// prefix with the KG-side file hints.
func (b *SourceBuilder) resolveRoot(req BuildRequest, byName map[string][]candidate) (string, candidate, string) {
	tryName := func(name string) ([]candidate, bool) {
		c, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
		return c, ok
	}

	name := req.RootFunction
	via := "exact"
	candidates, found := tryName(name)
	if !found && graph.IsQualified(req.RootFunction) {
		bare := strings.TrimSpace(req.RootFunction[strings.LastIndex(req.RootFunction, ".")+1:])
		if c, ok := tryName(bare); ok {
			name, candidates, found, via = bare, c, true, "bare_name"
		}
	}
	if !found {
		return req.RootFunction, candidate{}, "not_found"
	}

	if req.RootClass != "" {
		var classMatched []candidate
		for _, c := range candidates {
			if strings.EqualFold(c.className, req.RootClass) {
				classMatched = append(classMatched, c)
			}
		}
		if len(classMatched) > 0 {
			candidates = classMatched
			via += "+class"
		}
	}

	if len(candidates) > 1 {
		hints := make([]string, 0, len(req.HintFiles)+1)
		if req.RootFile != "" {
			hints = append(hints, req.RootFile)
		}
		for h := range req.HintFiles {
			hints = append(hints, h)
		}
		sort.Strings(hints)

		if picked, ok := preferByFileHint(candidates, hints); ok {
			candidates = []candidate{picked}
			via += "+file_hint"
		}
	}

	return name, candidates[0], via
}

// preferByFileHint picks the candidate whose directory shares the longest
// prefix with any hint path; basename equality wins outright.
func preferByFileHint(candidates []candidate, hints []string) (candidate, bool) {
	best := -1
	bestScore := 0
	for i, c := range candidates {
		candPath := graph.NormalizePath(c.filePath)
		for _, h := range hints {
			hintPath := graph.NormalizePath(h)
			score := 0
			if strings.EqualFold(path.Base(candPath), path.Base(hintPath)) {
				score = 1000
			} else {
				score = len(commonDirPrefix(path.Dir(candPath), path.Dir(hintPath)))
			}
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
	}
	if best < 0 {
		return candidate{}, false
	}
	return candidates[best], true
}

func commonDirPrefix(a, b string) string {
	aParts := strings.Split(strings.ToLower(a), "/")
	bParts := strings.Split(strings.ToLower(b), "/")
	var common []string
	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		if aParts[i] != bParts[i] {
			break
		}
		common = append(common, aParts[i])
	}
	return strings.Join(common, "/")
}

func lookupFileClass(byName map[string][]candidate, upperKey string) (string, string) {
	if cands, ok := byName[upperKey]; ok && len(cands) > 0 {
		return cands[0].filePath, cands[0].className
	}
	return "", ""
}

func countNodes(edges []graph.CallEdge) int {
	nodes := make(map[string]struct{})
	for _, e := range edges {
		nodes[strings.ToUpper(e.Caller)] = struct{}{}
		nodes[strings.ToUpper(e.Callee)] = struct{}{}
	}
	return len(nodes)
}

const diagnosticSampleSize = 15

func sampleKeys(byName map[string][]candidate) []string {
	keys := make([]string, 0, len(byName))
	for k := range byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > diagnosticSampleSize {
		keys = keys[:diagnosticSampleSize]
	}
	return keys
}

func sampleEdgeKeys(edgeMap map[string][]indexedEdge) []string {
	keys := make([]string, 0, len(edgeMap))
	for k := range edgeMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > diagnosticSampleSize {
		keys = keys[:diagnosticSampleSize]
	}
	return keys
}
