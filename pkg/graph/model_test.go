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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBareName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "Button2Click", "BUTTON2CLICK"},
		{"qualified", "TForm1.Button2Click", "BUTTON2CLICK"},
		{"deeply qualified", "Unit.TForm1.Save", "SAVE"},
		{"whitespace", "  save  ", "SAVE"},
		{"empty", "", ""},
		{"dot only", "A.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BareName(tt.in))
		})
	}
}

func TestAliasTableResolve(t *testing.T) {
	table := &AliasTable{Entries: []AliasEntry{
		{Canonical: "SaveRecord", Aliases: []string{"Save", "DoSave"}},
	}}

	assert.Equal(t, "SaveRecord", table.Resolve("save"))
	assert.Equal(t, "SaveRecord", table.Resolve("DOSAVE"))
	assert.Equal(t, "SaveRecord", table.Resolve("saverecord"))
	assert.Equal(t, "UNKNOWN", table.Resolve(" unknown "))
}

func TestNormalizerIdempotent(t *testing.T) {
	n := NewNormalizer(&AliasTable{Entries: []AliasEntry{
		{Canonical: "Main", Aliases: []string{"Entry"}},
	}})

	for _, name := range []string{"entry", "  main ", "OTHER", ""} {
		once := n.NormalizeName(name)
		assert.Equal(t, once, n.NormalizeName(once), "normalize(normalize(%q))", name)
	}
}

func TestNormalizeGraph(t *testing.T) {
	n := NewNormalizer(nil)
	in := &Output{
		FlowID:       "flow-1",
		Source:       SourceKG,
		RootFunction: " main ",
		Edges: []CallEdge{
			{Caller: "main", Callee: "helper", CallerFile: "a.go", Method: MethodKG, Confidence: 1.0},
		},
		UnresolvedCallees: []string{" lost "},
	}

	out := n.Normalize(in)

	require.Len(t, out.Edges, 1)
	assert.Equal(t, "MAIN", out.RootFunction)
	assert.Equal(t, "MAIN", out.Edges[0].Caller)
	assert.Equal(t, "HELPER", out.Edges[0].Callee)
	assert.Equal(t, "a.go", out.Edges[0].CallerFile, "files are not rewritten by normalization")
	assert.Equal(t, []string{"LOST"}, out.UnresolvedCallees)

	// Input untouched.
	assert.Equal(t, "main", in.Edges[0].Caller)
}

func TestFileBase(t *testing.T) {
	assert.Equal(t, "UNIT1.PAS", FileBase(`C:\legacy\src\Unit1.pas`))
	assert.Equal(t, "UNIT1.PAS", FileBase("src/unit1.pas"))
	assert.Equal(t, "", FileBase(""))
}

func TestComparableEdges(t *testing.T) {
	o := &Output{Edges: []CallEdge{
		{Caller: "a", Callee: "b"},
		{Caller: "A", Callee: "B"},
		{Caller: "a", Callee: "c"},
	}}
	set := o.ComparableEdges()
	assert.Len(t, set, 2)
	_, ok := set[NameKey{"A", "B"}]
	assert.True(t, ok)
}
