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

import (
	"path"
	"strings"
)

// AliasEntry maps a canonical name to the aliases that resolve to it.
type AliasEntry struct {
	Canonical string   `json:"canonical" yaml:"canonical"`
	Aliases   []string `json:"aliases" yaml:"aliases"`
}

// AliasTable resolves function-name aliases to canonical names.
// Comparison is case-insensitive on both canonical names and aliases.
type AliasTable struct {
	Entries []AliasEntry `json:"aliases" yaml:"aliases"`
}

// Resolve returns the canonical form of name, or its uppercase-trimmed form
// when no entry matches.
func (t *AliasTable) Resolve(name string) string {
	upper := upperTrim(name)
	for _, entry := range t.Entries {
		if upper == upperTrim(entry.Canonical) {
			return entry.Canonical
		}
		for _, a := range entry.Aliases {
			if upper == upperTrim(a) {
				return entry.Canonical
			}
		}
	}
	return upper
}

// Normalizer rewrites graph names into canonical form: trim, alias lookup,
// uppercase. File paths are left alone here; the diff compares basenames.
type Normalizer struct {
	aliases AliasTable
}

// NewNormalizer builds a Normalizer. A nil table means no aliases.
func NewNormalizer(aliases *AliasTable) *Normalizer {
	n := &Normalizer{}
	if aliases != nil {
		n.aliases = *aliases
	}
	return n
}

// NormalizeName canonicalizes a single name. Idempotent: applying it twice
// yields the same result as applying it once.
func (n *Normalizer) NormalizeName(name string) string {
	return strings.ToUpper(n.aliases.Resolve(strings.TrimSpace(name)))
}

// Normalize returns a copy of the graph with every caller, callee, root and
// unresolved name canonicalized. The input is not mutated.
func (n *Normalizer) Normalize(o *Output) *Output {
	edges := make([]CallEdge, len(o.Edges))
	for i, e := range o.Edges {
		e.Caller = n.NormalizeName(e.Caller)
		e.Callee = n.NormalizeName(e.Callee)
		edges[i] = e
	}

	unresolved := make([]string, len(o.UnresolvedCallees))
	for i, u := range o.UnresolvedCallees {
		unresolved[i] = n.NormalizeName(u)
	}

	return &Output{
		FlowID:            o.FlowID,
		Source:            o.Source,
		RootFunction:      n.NormalizeName(o.RootFunction),
		Edges:             edges,
		UnresolvedCallees: unresolved,
		Metadata:          o.Metadata,
	}
}

// NormalizePath rewrites a file path to forward slashes with surrounding
// whitespace removed. KG snippets frequently carry Windows-shaped paths.
func NormalizePath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}

// FileBase returns the uppercase basename of a path, the unit of comparison
// when one side is a remote-shaped absolute path and the other is
// repo-relative.
func FileBase(p string) string {
	norm := NormalizePath(p)
	if norm == "" {
		return ""
	}
	return strings.ToUpper(path.Base(norm))
}
