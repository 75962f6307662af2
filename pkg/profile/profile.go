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
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// BlockRule recognises one kind of explicit open/close block, for languages
// whose meaningful unit is a delimited block rather than an indent- or
// brace-scoped definition (RPG's DCL-PROC/END-PROC, BEGSR/ENDSR, ...).
type BlockRule struct {
	BlockType    string `json:"block_type"`
	OpenPattern  string `json:"open_pattern"`  // must capture (?P<name>...)
	ClosePattern string `json:"close_pattern"` //
}

// ForwardDeclRule describes an interface/implementation split: definitions
// before the boundary keyword that carry no class prefix are declarations
// only, and the implementation pass captures the Class.Name form.
type ForwardDeclRule struct {
	BoundaryKeyword string `json:"boundary_keyword"`
}

// FormRule parses form-descriptor files (UI definitions that bind events to
// handler names). Object matches become synthetic chunks; event matches
// record the bound handler names.
type FormRule struct {
	FileExtensions []string `json:"file_extensions"`
	ObjectPattern  string   `json:"object_pattern"` // must capture (?P<name>...)
	EventPattern   string   `json:"event_pattern"`  // must capture (?P<handler>...)
}

// LanguageProfile is the full per-language bundle driving chunking and call
// extraction.
type LanguageProfile struct {
	Language       string   `json:"language"`
	FileExtensions []string `json:"file_extensions"` // "" means the extensionless bucket

	// Definition discovery. Function patterns must expose a (?P<name>...)
	// group and may expose (?P<class_prefix>...) and (?P<indent>...).
	FunctionDefPatterns []string `json:"function_def_patterns"`
	ClassDefPatterns    []string `json:"class_def_patterns"`

	BlockRules  []BlockRule      `json:"block_rules,omitempty"`
	ForwardDecl *ForwardDeclRule `json:"forward_decl,omitempty"`
	Form        *FormRule        `json:"form_rule,omitempty"`

	// Call extraction. Keyword patterns must expose (?P<callee>...).
	CallKeywordPatterns     []string `json:"call_keyword_patterns,omitempty"`
	SkipTokens              []string `json:"skip_tokens,omitempty"`
	SupportsBareIdentifiers bool     `json:"supports_bare_identifiers"`

	// BareIDExcludeFollow is matched against the text immediately after a
	// candidate bare identifier; a match rejects the candidate. This is the
	// RE2 rendering of the lookahead exclusion (e.g. `^\s*\.` drops
	// member-access uses).
	BareIDExcludeFollow string `json:"bare_id_exclude_follow,omitempty"`

	// Comment and string stripping.
	SingleLineComment     string   `json:"single_line_comment,omitempty"`
	MultiLineCommentOpen  string   `json:"multi_line_comment_open,omitempty"`
	MultiLineCommentClose string   `json:"multi_line_comment_close,omitempty"`
	StringDelimiters      []string `json:"string_delimiters,omitempty"`

	// LLMCallPrompt is appended to the extractor's base system prompt.
	LLMCallPrompt string `json:"llm_call_prompt,omitempty"`

	// Provenance.
	CodebaseHash       string  `json:"codebase_hash,omitempty"`
	SourceFileCount    int     `json:"source_file_count,omitempty"`
	GeneratedAt        string  `json:"generated_at,omitempty"`
	ValidationCoverage float64 `json:"validation_coverage,omitempty"`
	Seeded             bool    `json:"seeded,omitempty"`

	compiled *Compiled
}

// CompiledBlockRule pairs compiled open/close patterns.
type CompiledBlockRule struct {
	BlockType string
	Open      *regexp.Regexp
	Close     *regexp.Regexp
}

// Compiled holds the usable regex objects for a profile. Patterns that fail
// to compile or lack their required named group are dropped with a log line;
// the remainder keep working.
type Compiled struct {
	FunctionDefs  []*regexp.Regexp
	ClassDefs     []*regexp.Regexp
	Blocks        []CompiledBlockRule
	CallKeywords  []*regexp.Regexp
	ExcludeFollow *regexp.Regexp
	FormObject    *regexp.Regexp
	FormEvent     *regexp.Regexp
	SkipTokens    map[string]struct{}
}

// Compile validates and compiles every pattern once, caching the result.
func (p *LanguageProfile) Compile(logger *slog.Logger) *Compiled {
	if p.compiled != nil {
		return p.compiled
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Compiled{SkipTokens: make(map[string]struct{}, len(p.SkipTokens))}
	for _, t := range p.SkipTokens {
		c.SkipTokens[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}

	for _, pat := range p.FunctionDefPatterns {
		re, err := compileWithGroup(pat, "name")
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "function_def", "pattern", pat, "err", err)
			continue
		}
		c.FunctionDefs = append(c.FunctionDefs, re)
	}
	for _, pat := range p.ClassDefPatterns {
		re, err := compileWithGroup(pat, "name")
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "class_def", "pattern", pat, "err", err)
			continue
		}
		c.ClassDefs = append(c.ClassDefs, re)
	}
	for _, rule := range p.BlockRules {
		open, err := compileWithGroup(rule.OpenPattern, "name")
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "block_open", "pattern", rule.OpenPattern, "err", err)
			continue
		}
		closeRe, err := regexp.Compile(rule.ClosePattern)
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "block_close", "pattern", rule.ClosePattern, "err", err)
			continue
		}
		c.Blocks = append(c.Blocks, CompiledBlockRule{BlockType: rule.BlockType, Open: open, Close: closeRe})
	}
	for _, pat := range p.CallKeywordPatterns {
		re, err := compileWithGroup(pat, "callee")
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "call_keyword", "pattern", pat, "err", err)
			continue
		}
		c.CallKeywords = append(c.CallKeywords, re)
	}
	if p.BareIDExcludeFollow != "" {
		re, err := regexp.Compile(p.BareIDExcludeFollow)
		if err != nil {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "exclude_follow", "pattern", p.BareIDExcludeFollow, "err", err)
		} else {
			c.ExcludeFollow = re
		}
	}
	if p.Form != nil {
		if re, err := compileWithGroup(p.Form.ObjectPattern, "name"); err == nil {
			c.FormObject = re
		} else {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "form_object", "err", err)
		}
		if re, err := compileWithGroup(p.Form.EventPattern, "handler"); err == nil {
			c.FormEvent = re
		} else {
			logger.Warn("profile.pattern.dropped", "language", p.Language, "kind", "form_event", "err", err)
		}
	}

	p.compiled = c
	return c
}

// IsSkipToken reports whether an uppercase token is a language keyword that
// must never be treated as a callee.
func (c *Compiled) IsSkipToken(upper string) bool {
	_, ok := c.SkipTokens[upper]
	return ok
}

// GroupIndex returns the submatch index of a named group, or -1.
func GroupIndex(re *regexp.Regexp, group string) int {
	for i, name := range re.SubexpNames() {
		if name == group {
			return i
		}
	}
	return -1
}

func compileWithGroup(pattern, group string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if GroupIndex(re, group) < 0 {
		return nil, fmt.Errorf("pattern missing required named group %q", group)
	}
	return re, nil
}

// Registry maps language tags to their active profiles.
type Registry struct {
	profiles map[string]*LanguageProfile
	logger   *slog.Logger
}

// NewRegistry builds a registry pre-populated with the seed profiles.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{profiles: make(map[string]*LanguageProfile), logger: logger}
	for _, p := range SeedProfiles() {
		r.profiles[p.Language] = p
	}
	return r
}

// Get returns the profile for a language, or nil when none is registered.
func (r *Registry) Get(language string) *LanguageProfile {
	return r.profiles[strings.ToLower(language)]
}

// Put registers (or replaces) a profile.
func (r *Registry) Put(p *LanguageProfile) {
	r.profiles[strings.ToLower(p.Language)] = p
}

// Languages lists the registered language tags.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.profiles))
	for l := range r.profiles {
		langs = append(langs, l)
	}
	return langs
}

// LanguageForExtension resolves a file extension (with leading dot, lowered)
// to a registered language tag, or "".
func (r *Registry) LanguageForExtension(ext string) string {
	ext = strings.ToLower(ext)
	for lang, p := range r.profiles {
		for _, e := range p.FileExtensions {
			if strings.ToLower(e) == ext {
				return lang
			}
		}
	}
	return ""
}
