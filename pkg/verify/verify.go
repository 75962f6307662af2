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

// Package verify diffs the two normalized call graphs and produces the
// per-edge classifications and trust scores.
//
// Matching runs in three tiers, each KG edge claiming the first tier that
// succeeds: the full six-field identity, name+file ignoring class (with a
// bare-name variant for qualified KG names), and name-only as the fallback.
// The diff operates over flat edge sets, so cycles in either graph are
// irrelevant here.
package verify

import (
	"log/slog"
	"strings"

	"github.com/trustlabs/trustbot/pkg/graph"
)

// Trust baselines by extraction method, multiplied by the tier factor.
const (
	trustKG          = 0.95
	trustRegex       = 0.90
	trustLLMPrimary  = 0.80
	trustLLMFallback = 0.70
	trustDefault     = 0.75

	trustPhantom = 0.20

	tierFullFactor     = 1.00
	tierNameFileFactor = 0.95
	tierBareFactor     = 0.98
	tierNameOnlyFactor = 0.80

	// Phantom edges carry partial aggregate weight: some (form-binding
	// chunks, dynamic dispatch) are structurally unverifiable.
	phantomWeight = 0.5
)

// Verifier diffs graphs. Stateless; safe for concurrent use.
type Verifier struct {
	logger *slog.Logger
}

// New creates a Verifier.
func New(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{logger: logger}
}

// Verify compares the KG graph against the source graph. Both inputs must
// already be normalized. Deterministic: identical inputs yield identical
// classifications and tier counts.
func (v *Verifier) Verify(kgGraph, srcGraph *graph.Output) *graph.VerificationResult {
	kgNames := orderedNameKeys(kgGraph)
	srcNameSet := srcGraph.ComparableEdges()
	srcBareSet := bareNameSet(srcNameSet)

	kgFull := orderedFullKeys(kgGraph)
	srcFullSet := srcGraph.FullKeys()
	srcNameFileSet := nameFileSet(srcFullSet)
	srcBareNameFileSet := bareNameFileSet(srcFullSet)

	// Method per KG (caller, callee) name pair, for the trust baseline.
	methods := make(map[graph.NameKey]graph.ExtractionMethod, len(kgGraph.Edges))
	for _, e := range kgGraph.Edges {
		methods[nameKeyOf(e)] = e.Method
	}

	var (
		confirmed  []graph.VerifiedEdge
		phantom    []graph.VerifiedEdge
		missing    []graph.VerifiedEdge
		conflicted []graph.VerifiedEdge
	)

	matchedFull := make(map[graph.FullKey]struct{})
	tierFull, tierNameFile, tierNameOnly := 0, 0, 0

	// Tier 1: full six-field match.
	for _, fk := range kgFull {
		if _, ok := srcFullSet[fk]; !ok {
			continue
		}
		nk := graph.NameKey{Caller: fk.Caller, Callee: fk.Callee}
		confirmed = append(confirmed, graph.VerifiedEdge{
			Caller:         fk.Caller,
			Callee:         fk.Callee,
			CallerFile:     fk.CallerFile,
			CalleeFile:     fk.CalleeFile,
			Classification: graph.Confirmed,
			Trust:          baseline(methods[nk]) * tierFullFactor,
			Details:        "Full match (name + class + file)",
		})
		matchedFull[fk] = struct{}{}
		tierFull++
	}

	// Tier 2: name + file, ignoring class; bare-name variant for qualified
	// KG names referencing the same file.
	matchedNameFile := make(map[graph.NameFileKey]struct{})
	for _, fk := range kgFull {
		if _, done := matchedFull[fk]; done {
			continue
		}
		nfk := graph.NameFileKey{Caller: fk.Caller, CallerFile: fk.CallerFile, Callee: fk.Callee, CalleeFile: fk.CalleeFile}
		if _, dup := matchedNameFile[nfk]; dup {
			continue
		}
		bare := graph.NameFileKey{
			Caller:     graph.BareName(nfk.Caller),
			CallerFile: nfk.CallerFile,
			Callee:     graph.BareName(nfk.Callee),
			CalleeFile: nfk.CalleeFile,
		}

		_, exact := srcNameFileSet[nfk]
		_, bareHit := srcBareNameFileSet[bare]
		if !exact && !bareHit {
			continue
		}

		nk := graph.NameKey{Caller: nfk.Caller, Callee: nfk.Callee}
		trust := baseline(methods[nk]) * tierNameFileFactor
		details := "Matched on name + file (class mismatch or missing)"
		if bareHit && !exact {
			trust *= tierBareFactor
			details = "Matched on bare name + file (qualified name reduced to bare)"
		}
		confirmed = append(confirmed, graph.VerifiedEdge{
			Caller:         nfk.Caller,
			Callee:         nfk.Callee,
			CallerFile:     nfk.CallerFile,
			CalleeFile:     nfk.CalleeFile,
			Classification: graph.Confirmed,
			Trust:          trust,
			Details:        details,
		})
		matchedNameFile[nfk] = struct{}{}
		tierNameFile++
	}

	// Tier 3: name-only fallback, exact or bare.
	confirmedNames := make(map[graph.NameKey]struct{}, len(confirmed))
	for _, e := range confirmed {
		confirmedNames[graph.NameKey{Caller: e.Caller, Callee: e.Callee}] = struct{}{}
	}
	for _, nk := range kgNames {
		if _, done := confirmedNames[nk]; done {
			continue
		}
		bare := graph.NameKey{Caller: graph.BareName(nk.Caller), Callee: graph.BareName(nk.Callee)}
		_, exact := srcNameSet[nk]
		_, bareHit := srcBareSet[bare]
		if !exact && !bareHit {
			continue
		}

		details := "Matched on function name only (file/class not compared)"
		if bareHit && !exact {
			details = "Matched on bare name (qualified KG name vs bare index name)"
		}
		confirmed = append(confirmed, graph.VerifiedEdge{
			Caller:         nk.Caller,
			Callee:         nk.Callee,
			Classification: graph.Confirmed,
			Trust:          baseline(methods[nk]) * tierNameOnlyFactor,
			Details:        details,
		})
		confirmedNames[nk] = struct{}{}
		tierNameOnly++
	}

	// Phantom: KG edges unmatched at every tier.
	for _, nk := range kgNames {
		if _, done := confirmedNames[nk]; done {
			continue
		}
		phantom = append(phantom, graph.VerifiedEdge{
			Caller:         nk.Caller,
			Callee:         nk.Callee,
			Classification: graph.Phantom,
			Trust:          trustPhantom,
			Details:        "In KG only - not found in indexed codebase",
		})
	}

	// Missing: source edges not covered by any confirmation, bare forms
	// included so bare-matched pairs are not double-reported.
	confirmedBare := make(map[graph.NameKey]struct{}, len(confirmed))
	for _, e := range confirmed {
		confirmedBare[graph.NameKey{Caller: graph.BareName(e.Caller), Callee: graph.BareName(e.Callee)}] = struct{}{}
	}
	for _, nk := range orderedNameKeys(srcGraph) {
		if _, done := confirmedNames[nk]; done {
			continue
		}
		bare := graph.NameKey{Caller: graph.BareName(nk.Caller), Callee: graph.BareName(nk.Callee)}
		if _, done := confirmedBare[bare]; done {
			continue
		}
		missing = append(missing, graph.VerifiedEdge{
			Caller:         nk.Caller,
			Callee:         nk.Callee,
			Classification: graph.Missing,
			Trust:          0.0,
			Details:        "In indexed codebase only - not in KG graph",
		})
	}

	orderMatches, orderMismatches := compareExecutionOrder(kgGraph, srcGraph)

	// Aggregates.
	weightedSum, weightedCount := 0.0, 0.0
	for _, e := range confirmed {
		weightedSum += e.Trust
		weightedCount += 1.0
	}
	for _, e := range phantom {
		weightedSum += e.Trust * phantomWeight
		weightedCount += phantomWeight
	}
	graphTrust := 0.0
	if weightedCount > 0 {
		graphTrust = weightedSum / weightedCount
	}

	totalKG := len(kgNames)
	if totalKG < 1 {
		totalKG = 1
	}
	flowTrust := float64(len(confirmed)) / float64(totalKG)
	if flowTrust > 1.0 {
		flowTrust = 1.0
	}

	result := &graph.VerificationResult{
		FlowID:            kgGraph.FlowID,
		GraphTrust:        graphTrust,
		FlowTrust:         flowTrust,
		ConfirmedEdges:    confirmed,
		PhantomEdges:      phantom,
		MissingEdges:      missing,
		ConflictedEdges:   conflicted,
		UnresolvedCallees: srcGraph.UnresolvedCallees,
		Metadata: map[string]any{
			"kg_edges":                 len(kgNames),
			"source_edges":             len(srcNameSet),
			"confirmed":                len(confirmed),
			"phantom":                  len(phantom),
			"missing":                  len(missing),
			"match_full":               tierFull,
			"match_name_file":          tierNameFile,
			"match_name_only":          tierNameOnly,
			"execution_order_matches":  orderMatches,
			"execution_order_mismatch": orderMismatches,
		},
	}

	v.logger.Info("verify.complete",
		"flow", kgGraph.FlowID,
		"confirmed", len(confirmed),
		"tier_full", tierFull,
		"tier_name_file", tierNameFile,
		"tier_name_only", tierNameOnly,
		"phantom", len(phantom),
		"missing", len(missing),
		"flow_trust", flowTrust,
	)
	return result
}

// compareExecutionOrder checks, for each caller present in both graphs with
// at least two common callees, whether their relative order agrees. KG order
// comes from the edge list (sorted by the stored execution_order); source
// order is index insertion order. Flows whose KG side never sets the order
// property are skipped entirely.
func compareExecutionOrder(kgGraph, srcGraph *graph.Output) (int, []graph.OrderMismatch) {
	if known, ok := kgGraph.Metadata["execution_order_known"].(bool); ok && !known {
		return 0, nil
	}

	kgOrder := callerOrder(kgGraph)
	srcOrder := callerOrder(srcGraph)

	matches := 0
	var mismatches []graph.OrderMismatch

	for _, caller := range orderedCallers(kgGraph) {
		kgCallees := kgOrder[caller]
		srcCallees, ok := srcOrder[caller]
		if !ok {
			srcCallees, ok = srcOrder[graph.BareName(caller)]
		}
		if !ok {
			continue
		}

		srcPos := make(map[string]int, len(srcCallees))
		for i, c := range srcCallees {
			srcPos[c] = i
		}

		var common []string
		for _, c := range kgCallees {
			if _, in := srcPos[c]; in {
				common = append(common, c)
			}
		}
		if len(common) < 2 {
			matches++
			continue
		}

		sortedBySrc := make([]string, len(common))
		copy(sortedBySrc, common)
		for i := 1; i < len(sortedBySrc); i++ {
			for j := i; j > 0 && srcPos[sortedBySrc[j-1]] > srcPos[sortedBySrc[j]]; j-- {
				sortedBySrc[j-1], sortedBySrc[j] = sortedBySrc[j], sortedBySrc[j-1]
			}
		}

		if equalStrings(common, sortedBySrc) {
			matches++
		} else {
			mismatches = append(mismatches, graph.OrderMismatch{
				Caller:     caller,
				KGOrder:    common,
				IndexOrder: sortedBySrc,
			})
		}
	}
	return matches, mismatches
}

func callerOrder(o *graph.Output) map[string][]string {
	order := make(map[string][]string)
	for _, e := range o.Edges {
		caller := strings.ToUpper(strings.TrimSpace(e.Caller))
		callee := strings.ToUpper(strings.TrimSpace(e.Callee))
		if !containsString(order[caller], callee) {
			order[caller] = append(order[caller], callee)
		}
	}
	return order
}

func orderedCallers(o *graph.Output) []string {
	var callers []string
	seen := make(map[string]struct{})
	for _, e := range o.Edges {
		caller := strings.ToUpper(strings.TrimSpace(e.Caller))
		if _, dup := seen[caller]; !dup {
			seen[caller] = struct{}{}
			callers = append(callers, caller)
		}
	}
	return callers
}

func baseline(method graph.ExtractionMethod) float64 {
	switch method {
	case graph.MethodKG:
		return trustKG
	case graph.MethodRegex:
		return trustRegex
	case graph.MethodLLMPrimary:
		return trustLLMPrimary
	case graph.MethodLLMFallback:
		return trustLLMFallback
	default:
		return trustDefault
	}
}

func nameKeyOf(e graph.CallEdge) graph.NameKey {
	return graph.NameKey{
		Caller: strings.ToUpper(strings.TrimSpace(e.Caller)),
		Callee: strings.ToUpper(strings.TrimSpace(e.Callee)),
	}
}

// orderedNameKeys returns the distinct name pairs in first-seen edge order,
// keeping the diff deterministic without sorting.
func orderedNameKeys(o *graph.Output) []graph.NameKey {
	var keys []graph.NameKey
	seen := make(map[graph.NameKey]struct{})
	for _, e := range o.Edges {
		nk := nameKeyOf(e)
		if _, dup := seen[nk]; !dup {
			seen[nk] = struct{}{}
			keys = append(keys, nk)
		}
	}
	return keys
}

func orderedFullKeys(o *graph.Output) []graph.FullKey {
	var keys []graph.FullKey
	seen := make(map[graph.FullKey]struct{})
	for _, e := range o.Edges {
		fk := graph.FullKey{
			Caller:      strings.ToUpper(strings.TrimSpace(e.Caller)),
			CallerClass: strings.ToUpper(strings.TrimSpace(e.CallerClass)),
			CallerFile:  graph.FileBase(e.CallerFile),
			Callee:      strings.ToUpper(strings.TrimSpace(e.Callee)),
			CalleeClass: strings.ToUpper(strings.TrimSpace(e.CalleeClass)),
			CalleeFile:  graph.FileBase(e.CalleeFile),
		}
		if _, dup := seen[fk]; !dup {
			seen[fk] = struct{}{}
			keys = append(keys, fk)
		}
	}
	return keys
}

func nameFileSet(full map[graph.FullKey]struct{}) map[graph.NameFileKey]struct{} {
	set := make(map[graph.NameFileKey]struct{}, len(full))
	for fk := range full {
		set[graph.NameFileKey{Caller: fk.Caller, CallerFile: fk.CallerFile, Callee: fk.Callee, CalleeFile: fk.CalleeFile}] = struct{}{}
	}
	return set
}

func bareNameFileSet(full map[graph.FullKey]struct{}) map[graph.NameFileKey]struct{} {
	set := make(map[graph.NameFileKey]struct{}, len(full))
	for fk := range full {
		set[graph.NameFileKey{
			Caller:     graph.BareName(fk.Caller),
			CallerFile: fk.CallerFile,
			Callee:     graph.BareName(fk.Callee),
			CalleeFile: fk.CalleeFile,
		}] = struct{}{}
	}
	return set
}

func bareNameSet(names map[graph.NameKey]struct{}) map[graph.NameKey]struct{} {
	set := make(map[graph.NameKey]struct{}, len(names))
	for nk := range names {
		set[graph.NameKey{Caller: graph.BareName(nk.Caller), Callee: graph.BareName(nk.Callee)}] = struct{}{}
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
