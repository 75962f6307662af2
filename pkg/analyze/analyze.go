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

// Package analyze explains verification discrepancies: why each phantom and
// missing edge likely exists and what to do about it.
//
// Output is structured only; rendering prose is the report layer's job. The
// rule-based analyzer pattern-matches on name shapes, file basenames, and
// the source agent's resolution metadata. The LLM-assisted analyzer can
// additionally read indexed source through the agents toolbelt and falls
// back to the rule-based result on any failure.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trustlabs/trustbot/pkg/graph"
)

// Root causes for phantom edges.
const (
	CauseQualifiedVsBare = "qualified_vs_bare_naming"
	CauseWrongScope      = "wrong_project_scope"
	CauseRenamedRemoved  = "callee_renamed_or_removed"
	CauseDynamicCall     = "dynamic_or_indirect_call"
	CauseFormBinding     = "form_binding_not_indexed"
	CauseExtractionGap   = "extraction_gap"
)

// Root causes for missing edges.
const (
	CauseFlowScopeFiltered = "flow_scope_filtered"
	CauseNotInKGFlow       = "call_not_in_kg_flow"
	CauseOverReporting     = "extractor_over_reporting"
)

// EdgeReason is one explained discrepancy.
type EdgeReason struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Cause  string `json:"cause"`
	Reason string `json:"reason"`
	Fix    string `json:"fix_suggestion"`
}

// RootAnalysis reports how the source agent fared resolving the root.
type RootAnalysis struct {
	FoundInIndex     bool   `json:"found_in_index"`
	HasOutgoingEdges bool   `json:"has_outgoing_edges"`
	ResolvedVia      string `json:"resolved_via"`
	Message          string `json:"message"`
}

// Analysis is the full structured analyzer output.
type Analysis struct {
	PhantomReasons     []EdgeReason `json:"phantom_reasons"`
	MissingReasons     []EdgeReason `json:"missing_reasons"`
	Root               RootAnalysis `json:"root_analysis"`
	SystemicPatterns   []string     `json:"systemic_patterns"`
	RecommendedActions []string     `json:"recommended_actions"`
	AgentType          string       `json:"agent_type"`
}

// Analyzer explains a verification result. Both graphs' metadata are inputs;
// either graph may be nil.
type Analyzer interface {
	Analyze(ctx context.Context, result *graph.VerificationResult, kgGraph, srcGraph *graph.Output) (*Analysis, error)
}

// RuleAnalyzer is the deterministic Analyzer.
type RuleAnalyzer struct {
	logger *slog.Logger
}

// NewRuleAnalyzer builds the deterministic analyzer.
func NewRuleAnalyzer(logger *slog.Logger) *RuleAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleAnalyzer{logger: logger}
}

// Analyze implements Analyzer. Never fails.
func (a *RuleAnalyzer) Analyze(ctx context.Context, result *graph.VerificationResult, kgGraph, srcGraph *graph.Output) (*Analysis, error) {
	analysis := &Analysis{AgentType: "rule_based"}

	srcMeta := map[string]any{}
	if srcGraph != nil && srcGraph.Metadata != nil {
		srcMeta = srcGraph.Metadata
	}

	analysis.Root = rootAnalysis(srcMeta)
	patterns := newStringSet()

	if !analysis.Root.FoundInIndex {
		patterns.add("root not in index (name or project scope)")
		analysis.RecommendedActions = append(analysis.RecommendedActions,
			"Rebuild the code index from the same project the KG flow describes; check that the root's file is inside the indexed tree.")
	} else if !analysis.Root.HasOutgoingEdges {
		patterns.add("root has no outgoing edges in index")
		analysis.RecommendedActions = append(analysis.RecommendedActions,
			"Re-run indexing so calls from the root are extracted; check the language profile's call patterns.")
	}

	unresolved := make(map[string]struct{})
	if srcGraph != nil {
		for _, u := range srcGraph.UnresolvedCallees {
			unresolved[strings.ToUpper(u)] = struct{}{}
		}
	}
	srcFiles := make(map[string]struct{})
	if srcGraph != nil {
		for f := range srcGraph.Files() {
			srcFiles[graph.FileBase(f)] = struct{}{}
		}
	}
	formHandlers := collectFormHandlers(srcMeta)

	for _, e := range result.PhantomEdges {
		reason := a.explainPhantom(e, unresolved, srcFiles, formHandlers, analysis.Root)
		analysis.PhantomReasons = append(analysis.PhantomReasons, reason)
		switch reason.Cause {
		case CauseQualifiedVsBare:
			patterns.add("qualified vs bare naming (KG Class.Method vs index Method)")
		case CauseWrongScope:
			patterns.add("KG files not present in indexed tree")
		case CauseFormBinding:
			patterns.add("form-bound handlers missing from the index")
		case CauseRenamedRemoved:
			patterns.add("callees unresolved in the indexed tree")
		}
	}

	for _, e := range result.MissingEdges {
		reason := a.explainMissing(e, kgGraph, srcGraph)
		analysis.MissingReasons = append(analysis.MissingReasons, reason)
		if reason.Cause == CauseNotInKGFlow {
			patterns.add("source calls absent from the KG flow")
		}
	}

	analysis.SystemicPatterns = patterns.items
	analysis.RecommendedActions = append(analysis.RecommendedActions, recommend(analysis)...)

	a.logger.Info("analyze.complete",
		"flow", result.FlowID,
		"phantom_reasons", len(analysis.PhantomReasons),
		"missing_reasons", len(analysis.MissingReasons),
		"patterns", len(analysis.SystemicPatterns),
	)
	return analysis, nil
}

func (a *RuleAnalyzer) explainPhantom(e graph.VerifiedEdge, unresolved, srcFiles map[string]struct{}, formHandlers map[string]struct{}, root RootAnalysis) EdgeReason {
	reason := EdgeReason{Caller: e.Caller, Callee: e.Callee}

	calleeUpper := strings.ToUpper(strings.TrimSpace(e.Callee))
	switch {
	case graph.IsQualified(e.Caller) || graph.IsQualified(e.Callee):
		reason.Cause = CauseQualifiedVsBare
		reason.Reason = fmt.Sprintf(
			"The KG uses a qualified name while the index stores bare names; under bare names this edge is %s -> %s.",
			graph.BareName(e.Caller), graph.BareName(e.Callee))
		reason.Fix = "Bare-name matching already runs at the name-only tier; if the edge is still phantom the index lacks this call (wrong scope or extraction gap)."
	case len(srcFiles) > 0 && e.CallerFile != "" && !inSet(srcFiles, graph.FileBase(e.CallerFile)):
		reason.Cause = CauseWrongScope
		reason.Reason = fmt.Sprintf("The caller's file %s does not appear in the indexed tree.", graph.FileBase(e.CallerFile))
		reason.Fix = "Index the folder containing this file, or scope the validation to the project the index covers."
	case inSet(formHandlers, calleeUpper):
		reason.Cause = CauseFormBinding
		reason.Reason = "The callee is bound through a form descriptor; the binding is known but the handler body was not indexed."
		reason.Fix = "Re-index with form-descriptor files included so handler chunks exist."
	case inSet(unresolved, calleeUpper):
		reason.Cause = CauseRenamedRemoved
		reason.Reason = "The callee name is referenced by the source graph but resolves to no indexed function; it was likely renamed or removed."
		reason.Fix = "Confirm the function still exists under this name; update the KG or the alias table."
	case !root.FoundInIndex:
		reason.Cause = CauseWrongScope
		reason.Reason = "The flow's root was not found in the index, so no source-side edges could confirm anything."
		reason.Fix = "Rebuild the index from the project this flow belongs to."
	default:
		reason.Cause = CauseExtractionGap
		reason.Reason = "No matching call was extracted from the source; the call may be dynamic/indirect or the extractor missed it."
		reason.Fix = "Check the language profile's call patterns for this call style; dynamic dispatch cannot be confirmed statically."
	}
	return reason
}

func (a *RuleAnalyzer) explainMissing(e graph.VerifiedEdge, kgGraph, srcGraph *graph.Output) EdgeReason {
	reason := EdgeReason{Caller: e.Caller, Callee: e.Callee}

	kgHasCaller := false
	if kgGraph != nil {
		callerBare := graph.BareName(e.Caller)
		for _, kgEdge := range kgGraph.Edges {
			if graph.BareName(kgEdge.Caller) == callerBare || graph.BareName(kgEdge.Callee) == callerBare {
				kgHasCaller = true
				break
			}
		}
	}

	// Low-confidence source edges (bare-identifier scans) are the usual
	// over-reporting suspects.
	confidence := 1.0
	if srcGraph != nil {
		callerBare, calleeBare := graph.BareName(e.Caller), graph.BareName(e.Callee)
		for _, se := range srcGraph.Edges {
			if graph.BareName(se.Caller) == callerBare && graph.BareName(se.Callee) == calleeBare {
				confidence = se.Confidence
				break
			}
		}
	}

	switch {
	case confidence < 0.6:
		reason.Cause = CauseOverReporting
		reason.Reason = fmt.Sprintf("The source edge was extracted at low confidence (%.2f); bare-identifier scans can over-report.", confidence)
		reason.Fix = "Inspect the chunk before treating this as a KG gap."
	case kgHasCaller:
		reason.Cause = CauseNotInKGFlow
		reason.Reason = "The caller participates in the flow but the KG records no such call; the flow definition may be incomplete."
		reason.Fix = "Review whether this call belongs to the flow; if so, the KG extraction missed it."
	default:
		reason.Cause = CauseFlowScopeFiltered
		reason.Reason = "The caller is not a participant of this flow; the source walk crossed a flow boundary."
		reason.Fix = "No KG change needed unless the flow should include this branch."
	}
	return reason
}

func rootAnalysis(meta map[string]any) RootAnalysis {
	root := RootAnalysis{ResolvedVia: "unknown"}
	if v, ok := meta["root_found_in_index"].(bool); ok {
		root.FoundInIndex = v
	}
	if v, ok := meta["root_has_outgoing_edges"].(bool); ok {
		root.HasOutgoingEdges = v
	}
	if v, ok := meta["resolved_via"].(string); ok && v != "" {
		root.ResolvedVia = v
	}

	switch {
	case !root.FoundInIndex:
		root.Message = "Root function from the KG was not found in the code index."
	case !root.HasOutgoingEdges:
		root.Message = "Root was found but has no outgoing call edges stored."
	default:
		root.Message = fmt.Sprintf("Root resolved via: %s.", root.ResolvedVia)
	}
	return root
}

func recommend(analysis *Analysis) []string {
	var actions []string
	for _, p := range analysis.SystemicPatterns {
		switch {
		case strings.Contains(p, "qualified vs bare"):
			actions = append(actions, "Add alias-table entries (or rely on bare-name tiers) for qualified KG names.")
		case strings.Contains(p, "not present in indexed tree"):
			actions = append(actions, "Verify the index was built from the same repository snapshot the KG describes.")
		case strings.Contains(p, "unresolved"):
			actions = append(actions, "Reconcile renamed or deleted functions between the KG and the source tree.")
		}
	}
	return actions
}

func collectFormHandlers(meta map[string]any) map[string]struct{} {
	handlers := make(map[string]struct{})
	if v, ok := meta["form_event_handlers"].([]string); ok {
		for _, h := range v {
			handlers[strings.ToUpper(h)] = struct{}{}
		}
	}
	return handlers
}

func inSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

type stringSet struct {
	items []string
	seen  map[string]struct{}
}

func newStringSet() *stringSet {
	return &stringSet{seen: make(map[string]struct{})}
}

func (s *stringSet) add(v string) {
	if _, dup := s.seen[v]; dup {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
