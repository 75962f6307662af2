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

package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/llm"
)

func TestSeedProfilesCompile(t *testing.T) {
	for _, p := range SeedProfiles() {
		t.Run(p.Language, func(t *testing.T) {
			c := p.Compile(nil)
			assert.Len(t, c.FunctionDefs, len(p.FunctionDefPatterns), "all function patterns must compile")
			assert.Len(t, c.Blocks, len(p.BlockRules), "all block rules must compile")
			assert.Len(t, c.CallKeywords, len(p.CallKeywordPatterns), "all call keyword patterns must compile")
		})
	}
}

func TestCompileDropsBadPatterns(t *testing.T) {
	p := &LanguageProfile{
		Language: "broken",
		FunctionDefPatterns: []string{
			`(?m)def\s+(?P<name>\w+)`, // good
			`(?m)def\s+(\w+`,          // unbalanced
			`(?m)def\s+(\w+)`,         // missing named group
		},
	}
	c := p.Compile(nil)
	assert.Len(t, c.FunctionDefs, 1)
}

func TestDelphiSeedMatchesImplementations(t *testing.T) {
	p := seedByLanguage(t, "delphi")
	c := p.Compile(nil)
	require.NotEmpty(t, c.FunctionDefs)

	re := c.FunctionDefs[0]
	m := re.FindStringSubmatch("procedure TForm1.Button2Click(Sender: TObject);")
	require.NotNil(t, m)
	assert.Equal(t, "TForm1", m[GroupIndex(re, "class_prefix")])
	assert.Equal(t, "Button2Click", m[GroupIndex(re, "name")])

	// Forward declaration (interface section): no class prefix.
	m = re.FindStringSubmatch("procedure Button2Click(Sender: TObject);")
	require.NotNil(t, m)
	assert.Empty(t, m[GroupIndex(re, "class_prefix")])
}

func TestRPGCallKeywordMatchesQuotedTarget(t *testing.T) {
	p := seedByLanguage(t, "rpg")
	c := p.Compile(nil)
	require.NotEmpty(t, c.CallKeywords)

	found := ""
	for _, re := range c.CallKeywords {
		if m := re.FindStringSubmatch("  CALLP 'UPDINV';"); m != nil {
			found = m[GroupIndex(re, "callee")]
			break
		}
	}
	assert.Equal(t, "UPDINV", found)
}

func TestStoreRoundTripAndFingerprint(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "profiles"))
	prof := seedByLanguage(t, "python")
	prof.CodebaseHash = "abc123"
	require.NoError(t, store.Save(prof))

	assert.NotNil(t, store.Load("python", "abc123"))
	assert.Nil(t, store.Load("python", "other-hash"), "fingerprint mismatch is a cache miss")
	assert.Nil(t, store.Load("go", "abc123"))

	files := []FileStat{{RelPath: "b.py", Size: 10}, {RelPath: "a.py", Size: 5}}
	reversed := []FileStat{{RelPath: "a.py", Size: 5}, {RelPath: "b.py", Size: 10}}
	assert.Equal(t, Fingerprint(files), Fingerprint(reversed), "fingerprint is order independent")
	assert.NotEqual(t, Fingerprint(files), Fingerprint([]FileStat{{RelPath: "a.py", Size: 6}}))
}

func TestProfilerFallsBackToSeedOnLLMFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("def main():\n    pass\n"), 0644))

	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, fmt.Errorf("model offline")
		},
	}
	client := llm.NewClient(provider, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)
	registry := NewRegistry(nil)
	profiler := NewProfiler(dir, client, NewStore(filepath.Join(dir, ".profiles")), registry, nil)

	profiles, err := profiler.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, profiles, "python")
	assert.True(t, profiles["python"].Seeded)
}

func TestProfilerUsesGeneratedProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("def main():\n    helper()\n\ndef helper():\n    pass\n"), 0644))

	generated := `{
		"function_def_patterns": ["(?m)^(?P<indent>[ \\t]*)def\\s+(?P<name>\\w+)\\s*\\("],
		"class_def_patterns": [],
		"skip_tokens": ["def"],
		"supports_bare_identifiers": false,
		"single_line_comment": "#",
		"string_delimiters": ["\""]
	}`
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: generated}}, nil
		},
	}
	client := llm.NewClient(provider, llm.ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)
	registry := NewRegistry(nil)
	store := NewStore(filepath.Join(dir, ".profiles"))
	profiler := NewProfiler(dir, client, store, registry, nil)

	profiles, err := profiler.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, profiles, "python")

	prof := profiles["python"]
	assert.False(t, prof.Seeded)
	assert.Equal(t, 1.0, prof.ValidationCoverage, "both def lines match the generated pattern")
	assert.NotEmpty(t, prof.CodebaseHash)

	// Second run must hit the disk cache: break the provider to prove it.
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		t.Fatal("profiler must not call the model on a cache hit")
		return nil, nil
	}
	profiler2 := NewProfiler(dir, client, store, NewRegistry(nil), nil)
	profiles2, err := profiler2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prof.CodebaseHash, profiles2["python"].CodebaseHash)
}

func TestIdentifyExtensionlessFiles(t *testing.T) {
	dir := t.TempDir()
	content := "procedure DoWork;\nbegin\n  SaveData;\nend;\nunit Main;\ninterface\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LEGACYPRG"), []byte(content), 0644))

	registry := NewRegistry(nil)
	profiler := NewProfiler(dir, nil, NewStore(filepath.Join(dir, ".p")), registry, nil)

	byLang, err := profiler.detectLanguages()
	require.NoError(t, err)
	require.Contains(t, byLang, "delphi")
	assert.Len(t, byLang["delphi"], 1)
}

func seedByLanguage(t *testing.T, language string) *LanguageProfile {
	t.Helper()
	for _, p := range SeedProfiles() {
		if p.Language == language {
			return p
		}
	}
	t.Fatalf("no seed profile for %s", language)
	return nil
}
