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
	"sort"
	"strings"

	"github.com/trustlabs/trustbot/pkg/profile"
)

// maxBlockLines caps a single structural chunk; longer blocks are split at
// line boundaries.
const maxBlockLines = 400

// chunkBlocks implements the open/close block strategy: every open marker
// pairs greedily with the next unconsumed close marker of its rule, code
// between blocks becomes preamble/epilogue chunks, and oversized chunks are
// split.
func (c *Chunker) chunkBlocks(rel string, prof *profile.LanguageProfile, content string) []Chunk {
	lines := strings.Split(content, "\n")
	compiled := prof.Compile(c.logger)

	type span struct {
		start, end int // 1-based inclusive
		name       string
		blockType  string
	}
	var spans []span

	for _, rule := range compiled.Blocks {
		nameIdx := profile.GroupIndex(rule.Open, "name")
		opens := rule.Open.FindAllStringSubmatchIndex(content, -1)
		closes := rule.Close.FindAllStringIndex(content, -1)

		closeUsed := make([]bool, len(closes))
		for _, m := range opens {
			openLine := 1 + strings.Count(content[:m[0]], "\n")
			name := groupText(content, m, nameIdx)

			// Greedy pairing with the next unconsumed close after the open.
			endLine := len(lines)
			for ci, cl := range closes {
				if closeUsed[ci] || cl[0] < m[1] {
					continue
				}
				closeUsed[ci] = true
				endLine = 1 + strings.Count(content[:cl[0]], "\n")
				break
			}

			spans = append(spans, span{start: openLine, end: endLine, name: name, blockType: rule.BlockType})
		}
	}

	if len(spans) == 0 {
		return []Chunk{wholeFileChunk(rel, prof.Language, content)}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var chunks []Chunk
	emit := func(start, end int, name, blockType string, synthetic bool) {
		for end > start && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		if end < start {
			return
		}
		body := lines[start-1 : end]
		if !synthetic && allBlank(body) {
			return
		}

		// Split oversized chunks at line boundaries, numbering the parts.
		part := 0
		for offset := 0; offset < len(body); offset += maxBlockLines {
			hi := offset + maxBlockLines
			if hi > len(body) {
				hi = len(body)
			}
			chunkName := name
			if part > 0 {
				chunkName = fmt.Sprintf("%s_part%d", name, part+1)
			}
			chunks = append(chunks, Chunk{
				FilePath:     rel,
				Language:     prof.Language,
				FunctionName: chunkName,
				LineStart:    start + offset,
				LineEnd:      start + hi - 1,
				Content:      strings.Join(body[offset:hi], "\n"),
				Metadata:     map[string]any{"block_type": blockType},
			})
			part++
		}
	}

	// Preamble before the first block.
	if spans[0].start > 1 {
		emit(1, spans[0].start-1, ModuleChunkName, "preamble", false)
	}

	cursor := 0
	for i, s := range spans {
		if s.start <= cursor {
			// Nested inside the previous block (e.g. DCL-PI within
			// DCL-PROC); the outer chunk already contains it.
			continue
		}
		emit(s.start, s.end, s.name, s.blockType, true)
		cursor = s.end

		// Interstitial code between this block and the next.
		if i+1 < len(spans) && spans[i+1].start > s.end+1 {
			emit(s.end+1, spans[i+1].start-1, ModuleChunkName, "interstitial", false)
		}
	}

	// Epilogue after the last block.
	last := spans[len(spans)-1]
	if last.end < len(lines) {
		emit(last.end+1, len(lines), ModuleChunkName, "epilogue", false)
	}

	return chunks
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}
