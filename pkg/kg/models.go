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

package kg

// ExecutionFlow is a named path through the system, stored as a node in the
// knowledge graph with associated participating snippets.
type ExecutionFlow struct {
	Key         string
	Name        string
	Description string
	ProjectID   int64
	RunID       int64
	ModuleName  string
	FlowType    string
	Properties  map[string]any
}

// Snippet is a KG node representing a function/method/procedure.
type Snippet struct {
	Key          string
	FunctionName string
	Name         string
	ClassName    string
	FilePath     string
	FileName     string
	LineStart    int64
	LineEnd      int64
	StartsFlow   bool
	Properties   map[string]any
}

// DisplayName resolves the snippet's function name with the documented
// priority: function_name, then name, then key.
func (s *Snippet) DisplayName() string {
	if s.FunctionName != "" {
		return s.FunctionName
	}
	if s.Name != "" {
		return s.Name
	}
	return s.Key
}

// FlowCall is one CALLS relationship between two participant snippets.
type FlowCall struct {
	CallerKey      string
	CalleeKey      string
	ExecutionOrder int64
	Properties     map[string]any
}

// FlowGraph bundles everything the derivation agent needs for one flow.
type FlowGraph struct {
	Flow        *ExecutionFlow
	Snippets    map[string]*Snippet // keyed by snippet key
	Calls       []FlowCall
	EntryPoints []string // snippet keys flagged STARTS_FLOW
}
