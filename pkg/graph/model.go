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

package graph

import "strings"

// Source identifies which derivation produced a graph.
type Source string

const (
	// SourceKG marks a graph fetched from the knowledge-graph store.
	SourceKG Source = "kg"

	// SourceIndex marks a graph reconstructed from the code index.
	SourceIndex Source = "source"
)

// ExtractionMethod records how a call edge was discovered.
type ExtractionMethod string

const (
	MethodKG          ExtractionMethod = "kg"
	MethodRegex       ExtractionMethod = "regex"
	MethodLLMPrimary  ExtractionMethod = "llm_primary"
	MethodLLMFallback ExtractionMethod = "llm_fallback"
)

// Classification is the verification verdict for a single edge.
type Classification string

const (
	// Confirmed edges exist in both graphs (matched at some tier).
	Confirmed Classification = "confirmed"

	// Phantom edges exist in the KG only.
	Phantom Classification = "phantom"

	// Missing edges exist in the source index only.
	Missing Classification = "missing"

	// Conflicted edges agree on names but carry contradictory file/class
	// metadata that no tier can reconcile.
	Conflicted Classification = "conflicted"
)

// CallEdge is a single edge in the shared call-graph format.
type CallEdge struct {
	Caller      string           `json:"caller"`
	Callee      string           `json:"callee"`
	CallerFile  string           `json:"caller_file,omitempty"`
	CalleeFile  string           `json:"callee_file,omitempty"`
	CallerClass string           `json:"caller_class,omitempty"`
	CalleeClass string           `json:"callee_class,omitempty"`
	Depth       int              `json:"depth"`
	Method      ExtractionMethod `json:"extraction_method"`
	Confidence  float64          `json:"confidence"`
}

// Output is the shared graph format emitted by both derivation agents.
type Output struct {
	FlowID            string         `json:"execution_flow_id"`
	Source            Source         `json:"source"`
	RootFunction      string         `json:"root_function"`
	Edges             []CallEdge     `json:"edges"`
	UnresolvedCallees []string       `json:"unresolved_callees,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// NameKey is an uppercase (caller, callee) pair used for name-only matching.
type NameKey struct {
	Caller string
	Callee string
}

// FullKey is the six-field edge identity used for tier-1 matching.
type FullKey struct {
	Caller      string
	CallerClass string
	CallerFile  string
	Callee      string
	CalleeClass string
	CalleeFile  string
}

// NameFileKey drops the class fields for tier-2 matching.
type NameFileKey struct {
	Caller     string
	CallerFile string
	Callee     string
	CalleeFile string
}

// ComparableEdges returns the set of uppercase (caller, callee) pairs.
func (o *Output) ComparableEdges() map[NameKey]struct{} {
	set := make(map[NameKey]struct{}, len(o.Edges))
	for _, e := range o.Edges {
		set[NameKey{upperTrim(e.Caller), upperTrim(e.Callee)}] = struct{}{}
	}
	return set
}

// FullKeys returns the set of six-field keys over all edges. File paths are
// reduced to their basenames so KG-side remote paths compare against
// index-relative paths.
func (o *Output) FullKeys() map[FullKey]struct{} {
	set := make(map[FullKey]struct{}, len(o.Edges))
	for _, e := range o.Edges {
		set[FullKey{
			Caller:      upperTrim(e.Caller),
			CallerClass: upperTrim(e.CallerClass),
			CallerFile:  FileBase(e.CallerFile),
			Callee:      upperTrim(e.Callee),
			CalleeClass: upperTrim(e.CalleeClass),
			CalleeFile:  FileBase(e.CalleeFile),
		}] = struct{}{}
	}
	return set
}

// Files returns the set of all non-empty file paths referenced by edges.
// The pipeline hands these to the source agent as resolution hints.
func (o *Output) Files() map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range o.Edges {
		if e.CallerFile != "" {
			set[e.CallerFile] = struct{}{}
		}
		if e.CalleeFile != "" {
			set[e.CalleeFile] = struct{}{}
		}
	}
	return set
}

// VerifiedEdge is an edge annotated with its verification verdict.
type VerifiedEdge struct {
	Caller         string         `json:"caller"`
	Callee         string         `json:"callee"`
	CallerFile     string         `json:"caller_file,omitempty"`
	CalleeFile     string         `json:"callee_file,omitempty"`
	Classification Classification `json:"classification"`
	Trust          float64        `json:"trust_score"`
	Details        string         `json:"details,omitempty"`
}

// OrderMismatch describes a caller whose common callees appear in a
// different relative order in the two graphs.
type OrderMismatch struct {
	Caller     string   `json:"caller"`
	KGOrder    []string `json:"neo4j_order"`
	IndexOrder []string `json:"index_order"`
}

// VerificationResult is the output of the diff stage for one flow.
type VerificationResult struct {
	FlowID            string         `json:"execution_flow_id"`
	GraphTrust        float64        `json:"graph_trust_score"`
	FlowTrust         float64        `json:"flow_trust_score"`
	ConfirmedEdges    []VerifiedEdge `json:"confirmed_edges"`
	PhantomEdges      []VerifiedEdge `json:"phantom_edges"`
	MissingEdges      []VerifiedEdge `json:"missing_edges"`
	ConflictedEdges   []VerifiedEdge `json:"conflicted_edges"`
	UnresolvedCallees []string       `json:"unresolved_callees,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// BareName strips a leading "Class." qualifier and uppercases, so the KG's
// "TForm1.Button2Click" compares equal to the index's "Button2Click".
func BareName(name string) string {
	s := upperTrim(name)
	if s == "" {
		return s
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// IsQualified reports whether a name carries a "Class." qualifier.
func IsQualified(name string) bool {
	return strings.Contains(strings.TrimSpace(name), ".")
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
