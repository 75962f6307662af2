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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		cypher  string
		allowed bool
	}{
		{"match", "MATCH (n:Snippet) RETURN n LIMIT 5", true},
		{"create", "CREATE (n:Snippet {name: 'x'})", false},
		{"lowercase delete", "match (n) delete n", false},
		{"merge", "MERGE (n:Flow {key: 'k'})", false},
		{"set", "MATCH (n) SET n.x = 1", false},
		{"detach", "MATCH (n) DETACH DELETE n", false},
		{"drop", "DROP INDEX idx", false},
		// Substrings inside identifiers are not mutation keywords.
		{"property named created", "MATCH (n) RETURN n.created_at", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := GuardReadOnly(tt.cypher)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSnippetDisplayName(t *testing.T) {
	assert.Equal(t, "DoWork", (&Snippet{FunctionName: "DoWork", Name: "n", Key: "k"}).DisplayName())
	assert.Equal(t, "n", (&Snippet{Name: "n", Key: "k"}).DisplayName())
	assert.Equal(t, "k", (&Snippet{Key: "k"}).DisplayName())
}
