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

// Package extract determines the callees of each code chunk, drawing from
// the set of known function names in the tree.
//
// Extraction is tiered: the model reads the chunk first (cached by content
// hash), regex scans supplement what it missed, and a regex-only path takes
// over entirely when the model is unavailable. Every model-reported callee
// must appear textually in the chunk, which kills hallucinated calls; that
// check reads the chunk as written, comments and string literals included.
// A function's own name appearing only in its declaration never produces a
// self-edge.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/trustlabs/trustbot/pkg/chunker"
	"github.com/trustlabs/trustbot/pkg/llm"
	"github.com/trustlabs/trustbot/pkg/profile"
)

// PromptVersion participates in the cache key; bump it whenever the prompt
// changes in a way that could alter outputs.
const PromptVersion = "v7-strip-noncode-preamble"

const (
	maxKnownFunctionsInPrompt = 200
	maxChunkChars             = 6000
	batchSize                 = 5

	confBareIdentifier = 0.55
	confCallKeyword    = 0.80
	confFallbackParen  = 0.70
	confFallbackBare   = 0.60
	minBareNameLen     = 3
)

const systemPromptBase = `You are a precise static-code-analysis engine. Given a code chunk and a list
of known project functions, identify every function / procedure / method CALL
made inside the chunk.

RULES - follow them strictly:
1. Only report actual calls (procedure invocations, function calls, method calls).
2. Do NOT report:
   - variable or field declarations
   - type / class references
   - module or unit imports
   - class inheritance or interface declarations
   - the function's own name (self-reference from its declaration line)
3. Only report callees whose name appears in the KNOWN FUNCTIONS list.
4. If the chunk contains zero calls, return an empty array.

Return ONLY a JSON array - no markdown fences, no commentary:
[{"callee": "ExactFunctionName", "confidence": 0.95}]`

// Edge is one extracted call site: the caller chunk, the callee name, and
// the extractor's confidence. Multiplicity is preserved: a chunk calling the
// same function three times yields three edges.
type Edge struct {
	CallerID   string
	Callee     string
	Confidence float64
}

// Stats summarizes one extraction run.
type Stats struct {
	Chunks    int
	CacheHits int
	LLMCalls  int
	Fallbacks int
	Edges     int
}

// Extractor runs tiered call extraction over chunks.
type Extractor struct {
	client   *llm.Client
	cache    *llm.Cache
	registry *profile.Registry
	logger   *slog.Logger

	// limiter smooths batch starts so provider-side rate limiters see a
	// steady arrival rate instead of bursts.
	limiter *rate.Limiter
}

// New creates an Extractor. The cache may be nil (every chunk goes to the
// model); the client may be nil (regex-only extraction).
func New(client *llm.Client, cache *llm.Cache, registry *profile.Registry, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:   client,
		cache:    cache,
		registry: registry,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// Extract processes all code chunks and returns the call edges.
// Chunk order does not affect the result set; same inputs yield same edges.
func (e *Extractor) Extract(ctx context.Context, chunks []chunker.Chunk, knownNames []string) ([]Edge, Stats, error) {
	knownUpper := make(map[string]struct{}, len(knownNames))
	for _, n := range knownNames {
		knownUpper[strings.ToUpper(n)] = struct{}{}
	}
	// Sorted view for the scans that iterate all known names; map order
	// would make the emitted edge order vary between runs.
	knownSorted := make([]string, 0, len(knownUpper))
	for n := range knownUpper {
		knownSorted = append(knownSorted, n)
	}
	sort.Strings(knownSorted)

	// Form-descriptor object names are UI artifacts, not callable code.
	formNames := make(map[string]struct{})
	for _, c := range chunks {
		if c.IsFormDefinition() && c.FunctionName != "" {
			formNames[strings.ToUpper(c.FunctionName)] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var code []chunker.Chunk
	for _, c := range chunks {
		if c.FunctionName == "" || c.FunctionName == chunker.ModuleChunkName ||
			c.Content == "" || c.IsFormDefinition() {
			continue
		}
		if _, dup := seen[c.ID()]; dup {
			continue
		}
		seen[c.ID()] = struct{}{}
		code = append(code, c)
	}
	if len(code) == 0 {
		return nil, Stats{}, nil
	}

	knownPrompt := formatKnownFunctions(knownNames)

	// Per-chunk results keep their slot so the flattened edge list follows
	// chunk order regardless of goroutine completion order. Edge insertion
	// order is the source-side execution order downstream, and it is what
	// makes two builds of the same tree byte-identical.
	perChunk := make([][]Edge, len(code))
	var (
		mu    sync.Mutex
		stats Stats
	)
	stats.Chunks = len(code)

	for start := 0; start < len(code); start += batchSize {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, stats, err
		}

		end := start + batchSize
		if end > len(code) {
			end = len(code)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				chunkEdges, outcome := e.processChunk(gctx, code[i], knownUpper, knownSorted, knownPrompt, formNames)
				perChunk[i] = chunkEdges
				mu.Lock()
				switch outcome {
				case outcomeCached:
					stats.CacheHits++
				case outcomeLLM:
					stats.LLMCalls++
				case outcomeFallback:
					stats.Fallbacks++
				}
				mu.Unlock()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, stats, err
		}
	}

	var edges []Edge
	for _, chunkEdges := range perChunk {
		edges = append(edges, chunkEdges...)
	}
	stats.Edges = len(edges)
	e.logger.Info("extract.complete",
		"chunks", stats.Chunks,
		"cached", stats.CacheHits,
		"llm_calls", stats.LLMCalls,
		"regex_fallback", stats.Fallbacks,
		"edges", stats.Edges,
	)
	return edges, stats, nil
}

type outcome int

const (
	outcomeCached outcome = iota
	outcomeLLM
	outcomeFallback
)

type rawCall struct {
	Callee     string  `json:"callee"`
	Confidence float64 `json:"confidence"`
}

func (e *Extractor) processChunk(ctx context.Context, chunk chunker.Chunk, knownUpper map[string]struct{}, knownSorted []string, knownPrompt string, formNames map[string]struct{}) ([]Edge, outcome) {
	prof := e.registry.Get(chunk.Language)
	key := llm.CacheKey(PromptVersion, chunk.Content, chunk.Language)

	if e.cache != nil {
		if cached, hit, err := e.cache.Get(ctx, key); err == nil && hit {
			var calls []rawCall
			if json.Unmarshal([]byte(cached), &calls) == nil {
				accepted := e.callsToEdges(chunk, calls, knownUpper)
				accepted = e.supplementBareIdentifiers(chunk, prof, accepted, knownUpper, knownSorted, formNames)
				accepted = append(accepted, e.callKeywordEdges(chunk, prof, accepted, knownUpper)...)
				return expandCallSites(chunk, accepted), outcomeCached
			}
		}
	}

	calls, err := e.llmExtract(ctx, chunk, knownPrompt, prof)
	if err != nil {
		e.logger.Warn("extract.llm.fallback",
			"file", chunk.FilePath,
			"function", chunk.FunctionName,
			"err", err,
		)
		fallback := e.regexFallback(chunk, prof, knownUpper, knownSorted, formNames)
		accepted := e.callsToEdges(chunk, fallback, knownUpper)
		accepted = e.supplementBareIdentifiers(chunk, prof, accepted, knownUpper, knownSorted, formNames)
		return expandCallSites(chunk, accepted), outcomeFallback
	}

	if e.cache != nil {
		payload, _ := json.Marshal(calls)
		model := ""
		if e.client != nil {
			model = e.client.Provider().Name()
		}
		if err := e.cache.Put(ctx, key, string(payload), model); err != nil {
			e.logger.Warn("extract.cache.write_error", "err", err)
		}
	}

	accepted := e.callsToEdges(chunk, calls, knownUpper)
	accepted = e.supplementBareIdentifiers(chunk, prof, accepted, knownUpper, knownSorted, formNames)
	accepted = append(accepted, e.callKeywordEdges(chunk, prof, accepted, knownUpper)...)
	return expandCallSites(chunk, accepted), outcomeLLM
}

func (e *Extractor) llmExtract(ctx context.Context, chunk chunker.Chunk, knownPrompt string, prof *profile.LanguageProfile) ([]rawCall, error) {
	if e.client == nil {
		return nil, fmt.Errorf("no model configured")
	}

	content := chunk.Content
	if len(content) > maxChunkChars {
		content = content[:maxChunkChars] + "\n... (truncated)"
	}

	systemPrompt := systemPromptBase
	if prof != nil && prof.LLMCallPrompt != "" {
		systemPrompt += prof.LLMCallPrompt
	}

	userMsg := fmt.Sprintf(
		"LANGUAGE: %s\nFILE: %s\nFUNCTION: %s\n\nKNOWN FUNCTIONS in this project:\n%s\n\nCODE CHUNK:\n```\n%s\n```",
		chunk.Language, chunk.FilePath, chunk.FunctionName, knownPrompt, content,
	)

	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMsg},
		},
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var calls []rawCall
	text := llm.ExtractJSON(resp.Message.Content)
	if err := json.Unmarshal([]byte(text), &calls); err != nil {
		// Some models wrap the array in an object.
		var wrapped struct {
			Calls []rawCall `json:"calls"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse call list: %w", err)
		}
		calls = wrapped.Calls
	}
	return calls, nil
}

// callsToEdges validates reported calls: callee must be known, must appear
// textually in the chunk, and self-references need an occurrence beyond the
// declaration. The textual check runs on the unstripped chunk text, so a
// name that occurs only in a comment or string literal passes it.
func (e *Extractor) callsToEdges(chunk chunker.Chunk, calls []rawCall, knownUpper map[string]struct{}) []Edge {
	var edges []Edge
	seen := make(map[string]struct{})
	contentUpper := strings.ToUpper(chunk.Content)
	selfUpper := strings.ToUpper(chunk.FunctionName)

	for _, call := range calls {
		callee := strings.TrimSpace(call.Callee)
		if callee == "" {
			continue
		}
		upper := strings.ToUpper(callee)
		if _, known := knownUpper[upper]; !known {
			continue
		}
		if _, dup := seen[upper]; dup {
			continue
		}
		if upper == selfUpper && wordCount(contentUpper, upper) <= 1 {
			continue
		}
		if wordCount(contentUpper, upper) == 0 {
			e.logger.Debug("extract.reject.hallucination",
				"caller", chunk.FunctionName, "callee", callee)
			continue
		}
		seen[upper] = struct{}{}

		conf := call.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.85
		}
		edges = append(edges, Edge{CallerID: chunk.ID(), Callee: callee, Confidence: conf})
	}
	return edges
}

// supplementBareIdentifiers catches known names the model missed by scanning
// the cleaned body, for languages where calls can be bare identifiers.
func (e *Extractor) supplementBareIdentifiers(chunk chunker.Chunk, prof *profile.LanguageProfile, existing []Edge, knownUpper map[string]struct{}, knownSorted []string, formNames map[string]struct{}) []Edge {
	if prof == nil || !prof.SupportsBareIdentifiers || chunk.Content == "" {
		return existing
	}
	compiled := prof.Compile(e.logger)

	already := make(map[string]struct{}, len(existing))
	for _, edge := range existing {
		already[strings.ToUpper(edge.Callee)] = struct{}{}
	}

	clean := StripNonCode(chunk.Content, prof)
	cleanUpper := strings.ToUpper(clean)
	selfUpper := strings.ToUpper(chunk.FunctionName)

	result := existing
	for _, upper := range knownSorted {
		if _, dup := already[upper]; dup {
			continue
		}
		if upper == selfUpper && wordCount(cleanUpper, upper) <= 1 {
			continue
		}
		if compiled.IsSkipToken(upper) {
			continue
		}
		if _, form := formNames[upper]; form {
			continue
		}
		if len(upper) < minBareNameLen {
			continue
		}
		if bareMatch(clean, upper, compiled.ExcludeFollow) {
			result = append(result, Edge{CallerID: chunk.ID(), Callee: upper, Confidence: confBareIdentifier})
			already[upper] = struct{}{}
		}
	}
	return result
}

// callKeywordEdges scans the ORIGINAL body with the profile's call-keyword
// patterns: some languages name call targets inside string literals, so the
// cleaned text would hide them. A keyword always denotes a genuine call, so
// self-references are allowed here.
func (e *Extractor) callKeywordEdges(chunk chunker.Chunk, prof *profile.LanguageProfile, existing []Edge, knownUpper map[string]struct{}) []Edge {
	if prof == nil || len(prof.CallKeywordPatterns) == 0 {
		return nil
	}
	compiled := prof.Compile(e.logger)

	already := make(map[string]struct{}, len(existing))
	for _, edge := range existing {
		already[strings.ToUpper(edge.Callee)] = struct{}{}
	}

	var edges []Edge
	for _, re := range compiled.CallKeywords {
		calleeIdx := profile.GroupIndex(re, "callee")
		for _, m := range re.FindAllStringSubmatchIndex(chunk.Content, -1) {
			callee := matchGroup(chunk.Content, m, calleeIdx)
			if callee == "" {
				continue
			}
			upper := strings.ToUpper(callee)
			if _, known := knownUpper[upper]; !known {
				continue
			}
			if _, dup := already[upper]; dup {
				continue
			}
			already[upper] = struct{}{}
			edges = append(edges, Edge{CallerID: chunk.ID(), Callee: callee, Confidence: confCallKeyword})
		}
	}
	return edges
}

// regexFallback replaces the model entirely: parenthesised calls, call
// keywords, and bare identifiers at the fallback confidences.
func (e *Extractor) regexFallback(chunk chunker.Chunk, prof *profile.LanguageProfile, knownUpper map[string]struct{}, knownSorted []string, formNames map[string]struct{}) []rawCall {
	if chunk.Content == "" {
		return nil
	}

	var results []rawCall
	seen := make(map[string]struct{})
	selfUpper := strings.ToUpper(chunk.FunctionName)
	clean := StripNonCode(chunk.Content, prof)
	cleanUpper := strings.ToUpper(clean)

	var compiled *profile.Compiled
	if prof != nil {
		compiled = prof.Compile(e.logger)
	}

	parenPattern := regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	for _, m := range parenPattern.FindAllStringSubmatch(clean, -1) {
		callee := m[1]
		upper := strings.ToUpper(callee)
		if _, known := knownUpper[upper]; !known {
			continue
		}
		if _, dup := seen[upper]; dup {
			continue
		}
		if upper == selfUpper {
			if parenCount(cleanUpper, upper) <= 1 {
				continue
			}
		} else if _, form := formNames[upper]; form {
			continue
		}
		seen[upper] = struct{}{}
		results = append(results, rawCall{Callee: callee, Confidence: confFallbackParen})
	}

	if compiled != nil {
		for _, re := range compiled.CallKeywords {
			calleeIdx := profile.GroupIndex(re, "callee")
			for _, m := range re.FindAllStringSubmatchIndex(chunk.Content, -1) {
				callee := matchGroup(chunk.Content, m, calleeIdx)
				upper := strings.ToUpper(callee)
				if callee == "" {
					continue
				}
				if _, known := knownUpper[upper]; !known {
					continue
				}
				if _, dup := seen[upper]; dup {
					continue
				}
				seen[upper] = struct{}{}
				results = append(results, rawCall{Callee: callee, Confidence: confCallKeyword})
			}
		}
	}

	if prof != nil && prof.SupportsBareIdentifiers {
		var exclude *regexp.Regexp
		if compiled != nil {
			exclude = compiled.ExcludeFollow
		}
		for _, upper := range knownSorted {
			if _, dup := seen[upper]; dup {
				continue
			}
			if upper == selfUpper && wordCount(cleanUpper, upper) <= 1 {
				continue
			}
			if compiled != nil && compiled.IsSkipToken(upper) {
				continue
			}
			if _, form := formNames[upper]; form {
				continue
			}
			if len(upper) < minBareNameLen {
				continue
			}
			if bareMatch(clean, upper, exclude) {
				seen[upper] = struct{}{}
				results = append(results, rawCall{Callee: upper, Confidence: confFallbackBare})
			}
		}
	}

	return results
}

// expandCallSites converts unique edges into per-call-site edges so the
// stored list preserves multiplicity.
func expandCallSites(chunk chunker.Chunk, edges []Edge) []Edge {
	if chunk.Content == "" {
		return edges
	}
	contentUpper := strings.ToUpper(chunk.Content)
	selfUpper := strings.ToUpper(chunk.FunctionName)

	var expanded []Edge
	for _, edge := range edges {
		upper := strings.ToUpper(edge.Callee)

		parens := parenCount(contentUpper, upper)
		if upper == selfUpper && parens > 0 {
			parens--
		}

		switch {
		case parens >= 2:
			for i := 0; i < parens; i++ {
				expanded = append(expanded, edge)
			}
		case parens == 0:
			bare := wordCount(contentUpper, upper)
			if upper == selfUpper {
				bare--
			}
			if bare < 1 {
				bare = 1
			}
			for i := 0; i < bare; i++ {
				expanded = append(expanded, edge)
			}
		default:
			expanded = append(expanded, edge)
		}
	}
	return expanded
}

// StripNonCode removes, in order, single-line comments, multi-line comments,
// string literals, and the declaration line, per the profile's delimiters.
// The result is only used for identifier scanning.
func StripNonCode(content string, prof *profile.LanguageProfile) string {
	if prof == nil {
		return content
	}

	if sl := prof.SingleLineComment; sl != "" {
		re := regexp.MustCompile(`(?m)` + regexp.QuoteMeta(sl) + `.*$`)
		content = re.ReplaceAllString(content, "")
	}
	if open, closeDelim := prof.MultiLineCommentOpen, prof.MultiLineCommentClose; open != "" && closeDelim != "" && open != prof.SingleLineComment {
		re := regexp.MustCompile(regexp.QuoteMeta(open) + `[\s\S]*?` + regexp.QuoteMeta(closeDelim))
		content = re.ReplaceAllString(content, " ")
	}
	for _, delim := range prof.StringDelimiters {
		esc := regexp.QuoteMeta(delim)
		var re *regexp.Regexp
		if len(delim) == 1 {
			re = regexp.MustCompile(esc + `[^` + esc + `\n]*` + esc)
		} else {
			re = regexp.MustCompile(esc + `[\s\S]*?` + esc)
		}
		content = re.ReplaceAllString(content, delim+delim)
	}

	// Blank the declaration header.
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[idx:]
	} else {
		return ""
	}
	return content
}

func formatKnownFunctions(names []string) string {
	display := names
	if len(display) > maxKnownFunctionsInPrompt {
		display = display[:maxKnownFunctionsInPrompt]
	}
	s := strings.Join(display, ", ")
	if len(names) > maxKnownFunctionsInPrompt {
		s += fmt.Sprintf(" ... and %d more", len(names)-maxKnownFunctionsInPrompt)
	}
	return s
}

// bareMatch reports whether upper appears as a whole word in text, with the
// exclude pattern (tested against the text right after the match) rejecting
// uses like member access or assignment targets.
func bareMatch(text, upper string, exclude *regexp.Regexp) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(upper) + `\b`)
	for _, m := range re.FindAllStringIndex(text, -1) {
		if exclude != nil && exclude.MatchString(text[m[1]:]) {
			continue
		}
		return true
	}
	return false
}

func wordCount(textUpper, nameUpper string) int {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(nameUpper) + `\b`)
	return len(re.FindAllString(textUpper, -1))
}

func parenCount(textUpper, nameUpper string) int {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(nameUpper) + `\s*\(`)
	return len(re.FindAllString(textUpper, -1))
}

func matchGroup(content string, match []int, groupIdx int) string {
	if groupIdx < 0 || 2*groupIdx+1 >= len(match) {
		return ""
	}
	lo, hi := match[2*groupIdx], match[2*groupIdx+1]
	if lo < 0 || hi < 0 {
		return ""
	}
	return content[lo:hi]
}
