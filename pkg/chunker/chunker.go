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

package chunker

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/trustlabs/trustbot/pkg/profile"
)

// ModuleChunkName is the function name given to whole-file chunks when no
// definitions are found.
const ModuleChunkName = "<module>"

// Chunk is one function/procedure/method/block cut out of a source file.
type Chunk struct {
	FilePath     string // normalized, relative to the tree root
	Language     string
	FunctionName string
	ClassName    string
	LineStart    int // 1-based, inclusive
	LineEnd      int // 1-based, inclusive
	Content      string
	Metadata     map[string]any
}

// ID returns the stable chunk identity: file::class::function.
func (c *Chunk) ID() string {
	return fmt.Sprintf("%s::%s::%s", c.FilePath, c.ClassName, c.FunctionName)
}

// IsFormDefinition reports whether the chunk is a synthetic form-descriptor
// chunk rather than code.
func (c *Chunk) IsFormDefinition() bool {
	v, ok := c.Metadata["is_form_definition"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Chunker walks trees and slices files using the profile registry.
type Chunker struct {
	registry *profile.Registry
	logger   *slog.Logger

	// useTreeSitter enables AST chunking for grammar-backed languages.
	useTreeSitter bool
}

// New creates a Chunker. Tree-sitter chunking is on by default for the
// languages that have grammars compiled in.
func New(registry *profile.Registry, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{registry: registry, logger: logger, useTreeSitter: true}
}

// SetTreeSitter toggles AST chunking (tests exercise the regex path).
func (c *Chunker) SetTreeSitter(enabled bool) { c.useTreeSitter = enabled }

// ChunkTree walks the tree rooted at root and chunks every recognized file.
// Unreadable files are logged and skipped.
func (c *Chunker) ChunkTree(root string) ([]Chunk, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var all []Chunk
	fileCount := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			c.logger.Warn("chunk.walk.error", "path", path, "err", walkErr)
			return nil
		}
		if d.IsDir() {
			if _, ignored := profile.IgnoredDirs[d.Name()]; ignored && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if c.languageFor(ext) == "" && c.formLanguageFor(ext) == "" {
			return nil
		}

		chunks, err := c.ChunkFile(path, root)
		if err != nil {
			c.logger.Warn("chunk.file.error", "path", path, "err", err)
			return nil
		}
		all = append(all, chunks...)
		fileCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	c.logger.Info("chunk.tree.complete", "files", fileCount, "chunks", len(all))
	return all, nil
}

// ListFiles returns the absolute paths of all recognized source and form
// files under root, in walk order. Used by callers that fan chunking out
// across a worker pool.
func (c *Chunker) ListFiles(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			c.logger.Warn("chunk.walk.error", "path", path, "err", walkErr)
			return nil
		}
		if d.IsDir() {
			if _, ignored := profile.IgnoredDirs[d.Name()]; ignored && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if c.languageFor(ext) != "" || c.formLanguageFor(ext) != "" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// ChunkFile slices one file into chunks. The returned paths are
// forward-slash relative to root.
func (c *Chunker) ChunkFile(path, root string) ([]Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	if lang := c.formLanguageFor(ext); lang != "" {
		return c.chunkFormFile(rel, lang, content), nil
	}

	lang := c.languageFor(ext)
	prof := c.registry.Get(lang)
	if prof == nil {
		return []Chunk{wholeFileChunk(rel, lang, content)}, nil
	}

	if c.useTreeSitter {
		if chunks, ok := chunkWithTreeSitter(rel, lang, content); ok {
			return chunks, nil
		}
	}

	if len(prof.BlockRules) > 0 {
		return c.chunkBlocks(rel, prof, content), nil
	}
	return c.chunkDefinitions(rel, prof, content), nil
}

// chunkDefinitions implements the definition-to-next-definition strategy.
func (c *Chunker) chunkDefinitions(rel string, prof *profile.LanguageProfile, content string) []Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || content == "" {
		return nil
	}

	compiled := prof.Compile(c.logger)

	type definition struct {
		line        int // 1-based
		name        string
		classPrefix string
		kind        string // "function" or "class"
	}
	var defs []definition

	for _, re := range compiled.FunctionDefs {
		nameIdx := profile.GroupIndex(re, "name")
		classIdx := profile.GroupIndex(re, "class_prefix")
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			name := groupText(content, m, nameIdx)
			if name == "" {
				continue
			}
			defs = append(defs, definition{
				line:        1 + strings.Count(content[:m[0]], "\n"),
				name:        name,
				classPrefix: groupText(content, m, classIdx),
				kind:        "function",
			})
		}
	}
	for _, re := range compiled.ClassDefs {
		nameIdx := profile.GroupIndex(re, "name")
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			name := groupText(content, m, nameIdx)
			if name == "" {
				continue
			}
			defs = append(defs, definition{
				line: 1 + strings.Count(content[:m[0]], "\n"),
				name: name,
				kind: "class",
			})
		}
	}

	if len(defs) == 0 {
		return []Chunk{wholeFileChunk(rel, prof.Language, content)}
	}

	sort.SliceStable(defs, func(i, j int) bool { return defs[i].line < defs[j].line })

	// Interface/implementation split: definitions without a class prefix
	// before the boundary keyword are declarations, not bodies.
	if prof.ForwardDecl != nil && prof.ForwardDecl.BoundaryKeyword != "" {
		boundary := boundaryLine(lines, prof.ForwardDecl.BoundaryKeyword)
		if boundary > 0 {
			filtered := defs[:0]
			for _, d := range defs {
				if d.kind == "function" && d.classPrefix == "" && d.line < boundary {
					continue
				}
				filtered = append(filtered, d)
			}
			defs = filtered
		}
	}

	if len(defs) == 0 {
		return []Chunk{wholeFileChunk(rel, prof.Language, content)}
	}

	var chunks []Chunk
	currentClass := ""
	for i, d := range defs {
		if d.kind == "class" {
			currentClass = d.name
		}

		start := d.line
		end := len(lines)
		if i+1 < len(defs) {
			end = defs[i+1].line - 1
		}
		for end > start && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}

		className := ""
		if d.kind == "function" {
			className = d.classPrefix
			if className == "" {
				className = currentClass
			}
		}

		chunks = append(chunks, Chunk{
			FilePath:     rel,
			Language:     prof.Language,
			FunctionName: d.name,
			ClassName:    className,
			LineStart:    start,
			LineEnd:      end,
			Content:      strings.Join(lines[start-1:end], "\n"),
		})
	}
	return chunks
}

// chunkFormFile emits one synthetic chunk per declared object in a
// form-descriptor file, recording the bound event handler names.
func (c *Chunker) chunkFormFile(rel, lang, content string) []Chunk {
	prof := c.registry.Get(lang)
	if prof == nil || prof.Form == nil {
		return nil
	}
	compiled := prof.Compile(c.logger)
	if compiled.FormObject == nil {
		return nil
	}

	lines := strings.Split(content, "\n")

	var handlers []string
	if compiled.FormEvent != nil {
		handlerIdx := profile.GroupIndex(compiled.FormEvent, "handler")
		for _, m := range compiled.FormEvent.FindAllStringSubmatchIndex(content, -1) {
			if h := groupText(content, m, handlerIdx); h != "" {
				handlers = append(handlers, h)
			}
		}
	}

	nameIdx := profile.GroupIndex(compiled.FormObject, "name")
	matches := compiled.FormObject.FindAllStringSubmatchIndex(content, -1)

	var chunks []Chunk
	for i, m := range matches {
		name := groupText(content, m, nameIdx)
		if name == "" {
			continue
		}
		start := 1 + strings.Count(content[:m[0]], "\n")
		end := len(lines)
		if i+1 < len(matches) {
			end = strings.Count(content[:matches[i+1][0]], "\n")
		}
		chunks = append(chunks, Chunk{
			FilePath:     rel,
			Language:     lang,
			FunctionName: name,
			LineStart:    start,
			LineEnd:      end,
			Content:      strings.Join(lines[start-1:end], "\n"),
			Metadata: map[string]any{
				"is_form_definition": true,
				"event_handlers":     handlers,
			},
		})
	}
	return chunks
}

func (c *Chunker) languageFor(ext string) string {
	return c.registry.LanguageForExtension(ext)
}

// formLanguageFor resolves form-descriptor extensions (e.g. ".dfm") to the
// language whose profile declares them.
func (c *Chunker) formLanguageFor(ext string) string {
	for _, lang := range c.registry.Languages() {
		p := c.registry.Get(lang)
		if p == nil || p.Form == nil {
			continue
		}
		for _, e := range p.Form.FileExtensions {
			if strings.EqualFold(e, ext) {
				return lang
			}
		}
	}
	return ""
}

func wholeFileChunk(rel, lang, content string) Chunk {
	lines := strings.Count(content, "\n") + 1
	return Chunk{
		FilePath:     rel,
		Language:     lang,
		FunctionName: ModuleChunkName,
		LineStart:    1,
		LineEnd:      lines,
		Content:      content,
	}
}

func boundaryLine(lines []string, keyword string) int {
	kw := strings.ToLower(keyword)
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), kw) {
			return i + 1
		}
	}
	return 0
}

func groupText(content string, match []int, groupIdx int) string {
	if groupIdx < 0 || 2*groupIdx+1 >= len(match) {
		return ""
	}
	lo, hi := match[2*groupIdx], match[2*groupIdx+1]
	if lo < 0 || hi < 0 {
		return ""
	}
	return content[lo:hi]
}
