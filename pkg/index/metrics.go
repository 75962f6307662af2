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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIndexing holds Prometheus metrics for the index-build subsystem.
type metricsIndexing struct {
	once sync.Once

	filesProcessed  prometheus.Counter
	filesSkipped    prometheus.Counter
	chunksProduced  prometheus.Counter
	functionsStored prometheus.Counter
	edgesStored     prometheus.Counter
	edgesDuplicate  prometheus.Counter

	extractCacheHits prometheus.Counter
	extractLLMCalls  prometheus.Counter
	extractFallbacks prometheus.Counter

	chunkDuration   prometheus.Histogram
	extractDuration prometheus.Histogram
	writeDuration   prometheus.Histogram
	buildDuration   prometheus.Histogram
}

var idxMetrics metricsIndexing

func (m *metricsIndexing) init() {
	m.once.Do(func() {
		m.filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_files_total", Help: "Source files chunked during index builds"})
		m.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_files_skipped_total", Help: "Files skipped due to read or chunking errors"})
		m.chunksProduced = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_chunks_total", Help: "Chunks produced during index builds"})
		m.functionsStored = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_functions_total", Help: "Function rows written to the code index"})
		m.edgesStored = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_edges_total", Help: "Call edges written to the code index"})
		m.edgesDuplicate = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_index_edges_duplicate_total", Help: "Call edges dropped by the (caller, callee) uniqueness rule"})

		m.extractCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_extract_cache_hits_total", Help: "Chunks answered from the LLM cache"})
		m.extractLLMCalls = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_extract_llm_calls_total", Help: "Chunks extracted by a live model call"})
		m.extractFallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "trustbot_extract_fallbacks_total", Help: "Chunks extracted by the regex fallback"})

		m.chunkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "trustbot_index_chunk_seconds", Help: "Time spent chunking the tree"})
		m.extractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "trustbot_index_extract_seconds", Help: "Time spent extracting call edges"})
		m.writeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "trustbot_index_write_seconds", Help: "Time spent writing index rows"})
		m.buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "trustbot_index_build_seconds", Help: "Total index build time"})

		prometheus.MustRegister(
			m.filesProcessed, m.filesSkipped, m.chunksProduced,
			m.functionsStored, m.edgesStored, m.edgesDuplicate,
			m.extractCacheHits, m.extractLLMCalls, m.extractFallbacks,
			m.chunkDuration, m.extractDuration, m.writeDuration, m.buildDuration,
		)
	})
}
