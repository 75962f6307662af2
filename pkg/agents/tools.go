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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/trustlabs/trustbot/pkg/index"
)

// maxToolResultChars bounds a single tool result fed back to the model.
const maxToolResultChars = 4000

// driveLetterPattern spots Windows-style absolute paths (the shape KG
// snippets carry for remote machines).
var driveLetterPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// Toolbelt is the small set of index/source operations the LLM-assisted
// agents may invoke. All file access resolves through the code index, which
// stores repo-relative paths only; remote-shaped absolute paths from the KG
// side are rejected, never resolved locally.
type Toolbelt struct {
	index *index.Index
	root  string // codebase root; "" disables read_function
}

// NewToolbelt wires a Toolbelt over the code index and codebase root.
func NewToolbelt(idx *index.Index, root string) *Toolbelt {
	return &Toolbelt{index: idx, root: root}
}

// Describe lists the tools for the system prompt.
func (t *Toolbelt) Describe() string {
	return `Available tools (invoke with {"tool": "<name>", "args": {...}}):
- search_functions {"fragment": "..."} : find indexed functions whose name contains the fragment (case-insensitive); returns name, file, class.
- edges_from {"caller": "..."} : list stored call edges whose caller matches the name.
- read_function {"name": "..."} : read the source body of an indexed function by name.`
}

// Dispatch executes one tool call and returns a JSON string result. Unknown
// tools and failures come back as {"error": ...} so the loop keeps going.
func (t *Toolbelt) Dispatch(ctx context.Context, tool string, args map[string]any) string {
	result, err := t.dispatch(ctx, tool, args)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(payload)
	}
	if len(result) > maxToolResultChars {
		result = result[:maxToolResultChars] + `... (truncated)`
	}
	return result
}

func (t *Toolbelt) dispatch(ctx context.Context, tool string, args map[string]any) (string, error) {
	switch tool {
	case "search_functions":
		return t.searchFunctions(ctx, stringArg(args, "fragment"))
	case "edges_from":
		return t.edgesFrom(ctx, stringArg(args, "caller"))
	case "read_function":
		return t.readFunction(ctx, stringArg(args, "name"))
	default:
		return "", fmt.Errorf("unknown tool: %s", tool)
	}
}

func (t *Toolbelt) searchFunctions(ctx context.Context, fragment string) (string, error) {
	if fragment == "" {
		return "", fmt.Errorf("fragment is required")
	}
	funcs, err := t.index.Functions(ctx, "")
	if err != nil {
		return "", err
	}

	needle := strings.ToUpper(fragment)
	type hit struct {
		Name  string `json:"name"`
		File  string `json:"file"`
		Class string `json:"class,omitempty"`
	}
	var hits []hit
	for _, f := range funcs {
		if strings.Contains(strings.ToUpper(f.FunctionName), needle) {
			hits = append(hits, hit{Name: f.FunctionName, File: f.FilePath, Class: f.ClassName})
			if len(hits) >= 25 {
				break
			}
		}
	}
	payload, _ := json.Marshal(hits)
	return string(payload), nil
}

func (t *Toolbelt) edgesFrom(ctx context.Context, caller string) (string, error) {
	if caller == "" {
		return "", fmt.Errorf("caller is required")
	}
	edges, err := t.index.EdgesFrom(ctx, caller)
	if err != nil {
		return "", err
	}
	type edge struct {
		Caller     string  `json:"caller"`
		Callee     string  `json:"callee"`
		Confidence float64 `json:"confidence"`
	}
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, edge{Caller: e.CallerID, Callee: e.CalleeName, Confidence: e.Confidence})
	}
	payload, _ := json.Marshal(out)
	return string(payload), nil
}

func (t *Toolbelt) readFunction(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if t.root == "" {
		return "", fmt.Errorf("source reading is disabled")
	}

	rel, err := t.index.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", fmt.Errorf("function %q not in index", name)
	}
	if filepath.IsAbs(rel) || driveLetterPattern.MatchString(rel) || strings.Contains(rel, "..") {
		return "", fmt.Errorf("refusing non-relative path %q", rel)
	}

	data, err := os.ReadFile(filepath.Join(t.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	payload, _ := json.Marshal(map[string]string{"file": rel, "content": string(data)})
	return string(payload), nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
