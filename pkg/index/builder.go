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

package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trustlabs/trustbot/pkg/chunker"
	"github.com/trustlabs/trustbot/pkg/extract"
	"github.com/trustlabs/trustbot/pkg/profile"
)

// BuildResult summarizes one index build.
type BuildResult struct {
	RunID        string
	Files        int
	FileErrors   int
	Chunks       int
	Functions    int
	Edges        int
	EdgeDupes    int
	ExtractStats extract.Stats
	Duration     time.Duration
}

// Builder rebuilds the code index from a source tree: profile the languages,
// chunk every file, extract call edges, and write both tables.
type Builder struct {
	index     *Index
	chunker   *chunker.Chunker
	extractor *extract.Extractor
	profiler  *profile.Profiler // optional; seeds apply when nil
	logger    *slog.Logger

	// ChunkWorkers sizes the file-chunking pool. Chunking is CPU-bound
	// regex work. With ChunkWorkers <= 1 or fewer than 10 files, chunking
	// runs sequentially on the caller's goroutine.
	ChunkWorkers int
}

// NewBuilder wires a Builder.
func NewBuilder(idx *Index, ch *chunker.Chunker, ex *extract.Extractor, prof *profile.Profiler, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		index:        idx,
		chunker:      ch,
		extractor:    ex,
		profiler:     prof,
		logger:       logger,
		ChunkWorkers: 4,
	}
}

// Build truncates and repopulates the index from the tree at root.
// Building twice in a row over an unchanged tree produces identical tables.
func (b *Builder) Build(ctx context.Context, root string) (*BuildResult, error) {
	idxMetrics.init()

	start := time.Now()
	result := &BuildResult{RunID: uuid.NewString()}
	b.logger.Info("index.build.start", "root", root, "run_id", result.RunID)

	if b.profiler != nil {
		if _, err := b.profiler.Run(ctx); err != nil {
			return nil, fmt.Errorf("profile languages: %w", err)
		}
	}

	files, err := b.chunker.ListFiles(root)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	result.Files = len(files)

	chunkStart := time.Now()
	chunks, fileErrors := b.chunkParallel(ctx, files, root)
	result.FileErrors = fileErrors
	result.Chunks = len(chunks)
	idxMetrics.chunkDuration.Observe(time.Since(chunkStart).Seconds())
	idxMetrics.filesProcessed.Add(float64(result.Files - fileErrors))
	idxMetrics.filesSkipped.Add(float64(fileErrors))
	idxMetrics.chunksProduced.Add(float64(result.Chunks))

	b.logger.Info("index.build.chunked",
		"run_id", result.RunID,
		"files", result.Files,
		"file_errors", fileErrors,
		"chunks", result.Chunks,
	)

	if err := b.index.Truncate(ctx); err != nil {
		return nil, err
	}

	writeStart := time.Now()
	known := make([]string, 0, len(chunks))
	seenNames := make(map[string]struct{})
	for _, c := range chunks {
		name := c.FunctionName
		if name == "" || name == chunker.ModuleChunkName {
			continue
		}
		inserted, err := b.index.InsertFunction(ctx, FunctionRow{
			FunctionName: name,
			FilePath:     c.FilePath,
			ClassName:    c.ClassName,
			Language:     c.Language,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Functions++
		}
		if _, dup := seenNames[name]; !dup {
			seenNames[name] = struct{}{}
			known = append(known, name)
		}
	}
	idxMetrics.functionsStored.Add(float64(result.Functions))
	idxMetrics.writeDuration.Observe(time.Since(writeStart).Seconds())

	extractStart := time.Now()
	edges, stats, err := b.extractor.Extract(ctx, chunks, known)
	if err != nil {
		return nil, fmt.Errorf("extract call edges: %w", err)
	}
	result.ExtractStats = stats
	idxMetrics.extractDuration.Observe(time.Since(extractStart).Seconds())
	idxMetrics.extractCacheHits.Add(float64(stats.CacheHits))
	idxMetrics.extractLLMCalls.Add(float64(stats.LLMCalls))
	idxMetrics.extractFallbacks.Add(float64(stats.Fallbacks))

	for _, e := range edges {
		written, err := b.index.InsertEdge(ctx, EdgeRow{
			CallerID:   e.CallerID,
			CalleeName: e.Callee,
			Confidence: e.Confidence,
		})
		if err != nil {
			return nil, err
		}
		if written {
			result.Edges++
		} else {
			result.EdgeDupes++
		}
	}
	idxMetrics.edgesStored.Add(float64(result.Edges))
	idxMetrics.edgesDuplicate.Add(float64(result.EdgeDupes))

	result.Duration = time.Since(start)
	idxMetrics.buildDuration.Observe(result.Duration.Seconds())

	b.logger.Info("index.build.complete",
		"run_id", result.RunID,
		"functions", result.Functions,
		"edges", result.Edges,
		"edge_dupes", result.EdgeDupes,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// chunkParallel fans ChunkFile across a worker pool, preserving file order
// in the combined output so builds stay deterministic.
func (b *Builder) chunkParallel(ctx context.Context, files []string, root string) ([]chunker.Chunk, int) {
	if len(files) == 0 {
		return nil, 0
	}

	workers := b.ChunkWorkers
	if workers <= 1 || len(files) < 10 {
		return b.chunkSequential(ctx, files, root)
	}

	jobs := make(chan int, len(files))
	results := make([][]chunker.Chunk, len(files))
	var errorCount int32

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				chunks, err := b.chunker.ChunkFile(files[i], root)
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					b.logger.Warn("index.chunk.error", "path", files[i], "err", err)
					continue
				}
				results[i] = chunks
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []chunker.Chunk
	for _, chunks := range results {
		all = append(all, chunks...)
	}
	return all, int(errorCount)
}

func (b *Builder) chunkSequential(ctx context.Context, files []string, root string) ([]chunker.Chunk, int) {
	var all []chunker.Chunk
	errorCount := 0
	for _, f := range files {
		select {
		case <-ctx.Done():
			return all, errorCount
		default:
		}
		chunks, err := b.chunker.ChunkFile(f, root)
		if err != nil {
			errorCount++
			b.logger.Warn("index.chunk.error", "path", f, "err", err)
			continue
		}
		all = append(all, chunks...)
	}
	return all, errorCount
}
