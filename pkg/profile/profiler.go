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
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/trustlabs/trustbot/pkg/llm"
)

const (
	maxSampleFiles   = 8
	maxSampleLines   = 500
	maxRefinements   = 3
	maxMissedSamples = 20

	// sampleSeed keeps the "random" sample picks deterministic so the same
	// codebase always produces the same prompt (and hits the LLM cache).
	sampleSeed = 42
)

// IgnoredDirs are never descended into during any tree walk.
var IgnoredDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "__pycache__": {}, ".venv": {}, "venv": {},
	"dist": {}, "build": {}, ".idea": {}, ".vs": {}, "bin": {}, "obj": {},
	"target": {}, ".trustbot": {},
}

var skipFileNames = map[string]struct{}{
	"readme": {}, "license": {}, "licence": {}, "makefile": {}, "dockerfile": {},
	"changelog": {}, "contributing": {}, "authors": {},
}

var skipFileExts = map[string]struct{}{
	".md": {}, ".txt": {}, ".json": {}, ".xml": {}, ".yaml": {}, ".yml": {},
	".toml": {}, ".cfg": {}, ".ini": {}, ".csv": {}, ".log": {}, ".lock": {},
	".svg": {}, ".png": {}, ".jpg": {}, ".gif": {}, ".ico": {}, ".pdf": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".exe": {}, ".dll": {}, ".so": {},
	".dylib": {}, ".o": {}, ".a": {}, ".class": {}, ".jar": {}, ".pyc": {},
}

const profilerPromptVersion = "profile-v2"

const profileSystemPrompt = `You are a static-analysis expert generating a language profile for a code-chunking tool.

Given sample source files, return a single JSON object with these keys:
  "function_def_patterns": array of RE2 regexes, each with a named group (?P<name>...) capturing the function name; optionally (?P<class_prefix>...) and (?P<indent>...).
  "class_def_patterns": array of RE2 regexes with (?P<name>...).
  "block_rules": array of {"block_type", "open_pattern", "close_pattern"} for languages with explicit open/close blocks; open_pattern needs (?P<name>...).
  "call_keyword_patterns": array of RE2 regexes with (?P<callee>...) for call statements whose target may be a quoted string.
  "skip_tokens": language keywords that must never be treated as callees.
  "supports_bare_identifiers": true if calls can be bare identifiers without parentheses.
  "bare_id_exclude_follow": RE2 regex matched against the text right after a bare identifier; a match rejects it (e.g. "^\\s*:=" for assignment targets).
  "single_line_comment", "multi_line_comment_open", "multi_line_comment_close": comment delimiters.
  "string_delimiters": array of string delimiters, longest first.
  "llm_call_prompt": short language-specific guidance for a call-extraction model.

Rules: RE2 syntax only (no lookahead/lookbehind). Return ONLY the JSON object, no markdown fences.`

// Profiler generates language profiles by sampling a codebase and asking the
// model, then validating and refining the result.
type Profiler struct {
	root     string
	client   *llm.Client
	store    *Store
	registry *Registry
	logger   *slog.Logger
}

// NewProfiler builds a Profiler for the tree rooted at root.
func NewProfiler(root string, client *llm.Client, store *Store, registry *Registry, logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{root: root, client: client, store: store, registry: registry, logger: logger}
}

// Run detects languages, generates or loads a profile for each, registers
// them, and returns them keyed by language tag.
func (p *Profiler) Run(ctx context.Context) (map[string]*LanguageProfile, error) {
	filesByLang, err := p.detectLanguages()
	if err != nil {
		return nil, err
	}
	if len(filesByLang) == 0 {
		p.logger.Warn("profile.detect.empty", "root", p.root)
		return map[string]*LanguageProfile{}, nil
	}

	profiles := make(map[string]*LanguageProfile, len(filesByLang))
	for language, files := range filesByLang {
		stats := make([]FileStat, 0, len(files))
		for _, f := range files {
			stats = append(stats, FileStat{RelPath: f.rel, Size: f.size})
		}
		hash := Fingerprint(stats)

		if cached := p.store.Load(language, hash); cached != nil {
			p.logger.Info("profile.cache.hit", "language", language)
			p.registry.Put(cached)
			profiles[language] = cached
			continue
		}

		prof, err := p.generate(ctx, language, files)
		if err != nil {
			p.logger.Warn("profile.generate.fallback_seed", "language", language, "err", err)
			prof = p.seedFor(language)
		} else {
			prof = p.validateAndRefine(ctx, prof, language, files)
		}

		prof.CodebaseHash = hash
		prof.SourceFileCount = len(files)
		if err := p.store.Save(prof); err != nil {
			p.logger.Warn("profile.save.error", "language", language, "err", err)
		}
		p.registry.Put(prof)
		profiles[language] = prof

		p.logger.Info("profile.ready",
			"language", language,
			"func_patterns", len(prof.FunctionDefPatterns),
			"block_rules", len(prof.BlockRules),
			"coverage", prof.ValidationCoverage,
		)
	}
	return profiles, nil
}

type sourceFile struct {
	rel  string
	full string
	size int64
}

// detectLanguages walks the tree and groups source files by language.
// Extensionless files are attributed by keyword voting: the highest-scoring
// language wins when it has at least two hits. Files with an extension that
// no profile registers are skipped.
func (p *Profiler) detectLanguages() (map[string][]sourceFile, error) {
	byLang := make(map[string][]sourceFile)
	var unknown []sourceFile

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.Warn("profile.walk.error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			if _, ignored := IgnoredDirs[d.Name()]; ignored && path != p.root {
				return filepath.SkipDir
			}
			return nil
		}

		base := strings.ToLower(d.Name())
		ext := strings.ToLower(filepath.Ext(base))
		if _, skip := skipFileNames[strings.TrimSuffix(base, ext)]; skip {
			return nil
		}
		if _, skip := skipFileExts[ext]; skip {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		sf := sourceFile{rel: filepath.ToSlash(rel), full: path, size: info.Size()}

		if lang := p.registry.LanguageForExtension(ext); lang != "" {
			byLang[lang] = append(byLang[lang], sf)
		} else if ext == "" {
			unknown = append(unknown, sf)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.root, err)
	}

	for lang, files := range p.identifyUnknown(unknown) {
		byLang[lang] = append(byLang[lang], files...)
	}
	return byLang, nil
}

func (p *Profiler) identifyUnknown(unknown []sourceFile) map[string][]sourceFile {
	if len(unknown) == 0 {
		return nil
	}

	votes := make(map[string]int)
	for _, f := range unknown {
		content, err := os.ReadFile(f.full)
		if err != nil {
			continue
		}
		text := string(content)
		for lang, keywords := range LanguageSignatures() {
			hits := 0
			for _, kw := range keywords {
				hits += strings.Count(text, kw)
			}
			if hits >= 2 {
				votes[lang] += hits
			}
		}
	}

	best, bestScore := "", 0
	for lang, score := range votes {
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if best == "" {
		return nil
	}
	p.logger.Info("profile.detect.extensionless", "language", best, "files", len(unknown), "score", bestScore)
	return map[string][]sourceFile{best: unknown}
}

// sampleFiles picks up to maxSampleFiles representative files: smallest,
// largest, median, and deterministic random picks from the rest.
func (p *Profiler) sampleFiles(files []sourceFile) []sourceFile {
	sorted := make([]sourceFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].size < sorted[j].size })

	var selected []sourceFile
	pick := func(f sourceFile) {
		for _, s := range selected {
			if s.rel == f.rel {
				return
			}
		}
		selected = append(selected, f)
	}
	pick(sorted[0])
	if len(sorted) > 1 {
		pick(sorted[len(sorted)-1])
	}
	if len(sorted) > 2 {
		pick(sorted[len(sorted)/2])
	}

	rng := rand.New(rand.NewSource(sampleSeed))
	var remaining []sourceFile
	for _, f := range sorted {
		used := false
		for _, s := range selected {
			if s.rel == f.rel {
				used = true
				break
			}
		}
		if !used {
			remaining = append(remaining, f)
		}
	}
	rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
	for _, f := range remaining {
		if len(selected) >= maxSampleFiles {
			break
		}
		selected = append(selected, f)
	}
	return selected
}

func (p *Profiler) generate(ctx context.Context, language string, files []sourceFile) (*LanguageProfile, error) {
	samples := p.sampleFiles(files)

	var sb strings.Builder
	fmt.Fprintf(&sb, "LANGUAGE: %s\n\nSAMPLE FILES:\n", language)
	for _, f := range samples {
		content, err := os.ReadFile(f.full)
		if err != nil {
			continue
		}
		lines := strings.Split(string(content), "\n")
		if len(lines) > maxSampleLines {
			lines = lines[:maxSampleLines]
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", f.rel, strings.Join(lines, "\n"))
	}

	resp, err := p.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: profileSystemPrompt},
			{Role: "user", Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("profile generation: %w", err)
	}

	return p.parseProfile(language, resp.Message.Content)
}

func (p *Profiler) parseProfile(language, content string) (*LanguageProfile, error) {
	var raw struct {
		FunctionDefPatterns     []string    `json:"function_def_patterns"`
		ClassDefPatterns        []string    `json:"class_def_patterns"`
		BlockRules              []BlockRule `json:"block_rules"`
		CallKeywordPatterns     []string    `json:"call_keyword_patterns"`
		SkipTokens              []string    `json:"skip_tokens"`
		SupportsBareIdentifiers bool        `json:"supports_bare_identifiers"`
		BareIDExcludeFollow     string      `json:"bare_id_exclude_follow"`
		SingleLineComment       string      `json:"single_line_comment"`
		MultiLineCommentOpen    string      `json:"multi_line_comment_open"`
		MultiLineCommentClose   string      `json:"multi_line_comment_close"`
		StringDelimiters        []string    `json:"string_delimiters"`
		LLMCallPrompt           string      `json:"llm_call_prompt"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("parse profile JSON for %s: %w", language, err)
	}
	if len(raw.FunctionDefPatterns) == 0 && len(raw.BlockRules) == 0 {
		return nil, fmt.Errorf("profile for %s has no definition patterns", language)
	}

	ext := []string{}
	if seed := p.seedFor(language); seed != nil {
		ext = seed.FileExtensions
	}
	return &LanguageProfile{
		Language:                language,
		FileExtensions:          ext,
		FunctionDefPatterns:     raw.FunctionDefPatterns,
		ClassDefPatterns:        raw.ClassDefPatterns,
		BlockRules:              raw.BlockRules,
		CallKeywordPatterns:     raw.CallKeywordPatterns,
		SkipTokens:              raw.SkipTokens,
		SupportsBareIdentifiers: raw.SupportsBareIdentifiers,
		BareIDExcludeFollow:     raw.BareIDExcludeFollow,
		SingleLineComment:       raw.SingleLineComment,
		MultiLineCommentOpen:    raw.MultiLineCommentOpen,
		MultiLineCommentClose:   raw.MultiLineCommentClose,
		StringDelimiters:        raw.StringDelimiters,
		LLMCallPrompt:           raw.LLMCallPrompt,
	}, nil
}

// validateAndRefine measures pattern coverage against the naive keyword
// ceiling and sends missed lines back to the model, at most maxRefinements
// times.
func (p *Profiler) validateAndRefine(ctx context.Context, prof *LanguageProfile, language string, files []sourceFile) *LanguageProfile {
	for round := 0; ; round++ {
		coverage, missed := p.measureCoverage(prof, language, files)
		prof.ValidationCoverage = coverage
		if coverage >= 1.0 || round >= maxRefinements || len(missed) == 0 {
			return prof
		}

		p.logger.Info("profile.refine", "language", language, "round", round+1, "coverage", coverage, "missed", len(missed))
		refined, err := p.refine(ctx, prof, language, missed)
		if err != nil {
			p.logger.Warn("profile.refine.error", "language", language, "err", err)
			return prof
		}
		refined.ValidationCoverage = coverage
		prof = refined
	}
}

// measureCoverage returns min(1, regexHits/keywordHits) and a sample of
// keyword lines no pattern matched.
func (p *Profiler) measureCoverage(prof *LanguageProfile, language string, files []sourceFile) (float64, []string) {
	compiled := prof.Compile(p.logger)
	keywords := NaiveKeywords(language)

	keywordHits := 0
	regexHits := 0
	var missed []string

	for _, f := range files {
		content, err := os.ReadFile(f.full)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(content), "\n") {
			hasKeyword := false
			for _, kw := range keywords {
				if strings.Contains(line, kw) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				continue
			}
			keywordHits++

			matched := false
			for _, re := range compiled.FunctionDefs {
				if re.MatchString(line) {
					matched = true
					break
				}
			}
			if !matched {
				for _, re := range compiled.ClassDefs {
					if re.MatchString(line) {
						matched = true
						break
					}
				}
			}
			if !matched {
				for _, rule := range compiled.Blocks {
					if rule.Open.MatchString(line) {
						matched = true
						break
					}
				}
			}
			if matched {
				regexHits++
			} else if len(missed) < maxMissedSamples {
				missed = append(missed, strings.TrimSpace(line))
			}
		}
	}

	if keywordHits == 0 {
		return 1.0, nil
	}
	coverage := float64(regexHits) / float64(keywordHits)
	if coverage > 1.0 {
		coverage = 1.0
	}
	return coverage, missed
}

func (p *Profiler) refine(ctx context.Context, prof *LanguageProfile, language string, missed []string) (*LanguageProfile, error) {
	current, _ := json.Marshal(prof.FunctionDefPatterns)
	prompt := fmt.Sprintf(
		"Your %s profile missed these definition lines:\n\n%s\n\nCurrent function_def_patterns: %s\n\nReturn the full profile JSON again with patterns extended to also match the missed lines.",
		language, strings.Join(missed, "\n"), current,
	)

	resp, err := p.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: profileSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	return p.parseProfile(language, resp.Message.Content)
}

func (p *Profiler) seedFor(language string) *LanguageProfile {
	for _, s := range SeedProfiles() {
		if s.Language == language {
			return s
		}
	}
	// Generic last resort so indexing still produces whole-file chunks.
	return &LanguageProfile{Language: language, Seeded: true}
}
