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

// Package pipeline composes the per-flow validation stages and fans out
// across the flows of a project run.
//
// A flow's stages run strictly in sequence: KG derivation, normalization,
// source derivation (fed the KG root and file hints), normalization again,
// verification, and analysis when the diff is non-trivial. Across flows the
// fan-out is bounded, one failed flow becomes an error stub rather than
// aborting the run, and results always come back in input order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/trustlabs/trustbot/pkg/agents"
	"github.com/trustlabs/trustbot/pkg/analyze"
	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/verify"
)

// Stage names reported through the progress callback.
const (
	StageKG        = "kg_fetch"
	StageSource    = "source_build"
	StageNormalize = "normalize"
	StageVerify    = "verify"
	StageAnalyze   = "analyze"
	StageReport    = "report"
	StageDone      = "done"
)

// Progress receives stage-boundary events. flowIndex is the position in the
// input vector; flowCount the vector length.
type Progress func(flowIndex, flowCount int, stage, message string)

// Formatter renders a flow result into the consumer's report format.
type Formatter func(result *graph.VerificationResult, analysis *analyze.Analysis) string

// FlowResult bundles everything a consumer may want for one flow.
type FlowResult struct {
	FlowKey     string
	Result      *graph.VerificationResult
	Analysis    *analyze.Analysis
	Report      string
	KGGraph     *graph.Output
	SourceGraph *graph.Output
	Err         error
	Duration    time.Duration
}

// Pipeline wires the validation stages.
type Pipeline struct {
	kgAgent    agents.KGDeriver
	srcAgent   agents.SourceDeriver
	normalizer *graph.Normalizer
	verifier   *verify.Verifier
	analyzer   analyze.Analyzer
	formatter  Formatter
	logger     *slog.Logger

	// MaxConcurrent bounds the flow fan-out. The LLM semaphore inside the
	// shared client is the real budget; this only caps task bookkeeping.
	MaxConcurrent int
}

// New wires a Pipeline. A nil formatter uses the built-in markdown report;
// a nil normalizer uses an alias-free one.
func New(kgAgent agents.KGDeriver, srcAgent agents.SourceDeriver, analyzer analyze.Analyzer, normalizer *graph.Normalizer, formatter Formatter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = graph.NewNormalizer(nil)
	}
	if formatter == nil {
		formatter = MarkdownReport
	}
	return &Pipeline{
		kgAgent:       kgAgent,
		srcAgent:      srcAgent,
		normalizer:    normalizer,
		verifier:      verify.New(logger),
		analyzer:      analyzer,
		formatter:     formatter,
		logger:        logger,
		MaxConcurrent: 5,
	}
}

// ValidateFlow runs the full five-stage validation for one flow.
func (p *Pipeline) ValidateFlow(ctx context.Context, flowKey string) (*FlowResult, error) {
	return p.validateFlow(ctx, flowKey, 0, 1, nil)
}

func (p *Pipeline) validateFlow(ctx context.Context, flowKey string, idx, count int, progress Progress) (*FlowResult, error) {
	start := time.Now()
	report := func(stage, message string) {
		if progress != nil {
			progress(idx, count, stage, message)
		}
	}

	report(StageKG, "Fetching call graph from the knowledge graph...")
	kgGraph, err := p.kgAgent.Fetch(ctx, flowKey)
	if err != nil {
		return nil, fmt.Errorf("kg derivation: %w", err)
	}

	report(StageNormalize, "Normalizing KG graph...")
	kgNorm := p.normalizer.Normalize(kgGraph)

	rootFile, _ := kgGraph.Metadata["root_file_path"].(string)
	rootClass, _ := kgGraph.Metadata["root_class_name"].(string)

	report(StageSource, fmt.Sprintf("Building call graph from the index (root: %s)...", kgGraph.RootFunction))
	srcGraph, err := p.srcAgent.Build(ctx, agents.BuildRequest{
		FlowID:       flowKey,
		RootFunction: kgGraph.RootFunction,
		RootClass:    rootClass,
		RootFile:     rootFile,
		HintFiles:    kgGraph.Files(),
	})
	if err != nil {
		return nil, fmt.Errorf("source derivation: %w", err)
	}

	report(StageNormalize, "Normalizing source graph...")
	srcNorm := p.normalizer.Normalize(srcGraph)

	report(StageVerify, "Comparing call graphs...")
	result := p.verifier.Verify(kgNorm, srcNorm)

	var analysis *analyze.Analysis
	if len(result.PhantomEdges) > 0 || len(result.MissingEdges) > 0 {
		report(StageAnalyze, "Analyzing discrepancies...")
		analysis, err = p.analyzer.Analyze(ctx, result, kgNorm, srcNorm)
		if err != nil {
			// Analysis is advisory; the verification result stands alone.
			p.logger.Warn("pipeline.analyze.error", "flow", flowKey, "err", err)
			analysis = nil
		}
	}

	report(StageReport, "Formatting report...")
	reportText := p.formatter(result, analysis)

	flowResult := &FlowResult{
		FlowKey:     flowKey,
		Result:      result,
		Analysis:    analysis,
		Report:      reportText,
		KGGraph:     kgGraph,
		SourceGraph: srcGraph,
		Duration:    time.Since(start),
	}

	p.logger.Info("pipeline.flow.complete",
		"flow", flowKey,
		"confirmed", len(result.ConfirmedEdges),
		"phantom", len(result.PhantomEdges),
		"missing", len(result.MissingEdges),
		"flow_trust", result.FlowTrust,
		"duration_ms", flowResult.Duration.Milliseconds(),
	)
	return flowResult, nil
}

// ValidateFlows validates many flows under a bounded fan-out. One result per
// input key, in input order; a failed flow yields an error stub with zero
// scores instead of aborting the run.
func (p *Pipeline) ValidateFlows(ctx context.Context, flowKeys []string, maxConcurrent int, progress Progress) []*FlowResult {
	if maxConcurrent <= 0 {
		maxConcurrent = p.MaxConcurrent
	}

	results := make([]*FlowResult, len(flowKeys))
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	done := make(chan int, len(flowKeys))

	for i, key := range flowKeys {
		i, key := i, key
		go func() {
			defer func() { done <- i }()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = errorStub(key, err)
				return
			}
			defer sem.Release(1)

			fr, err := p.validateFlow(ctx, key, i, len(flowKeys), progress)
			if err != nil {
				p.logger.Error("pipeline.flow.error", "flow", key, "err", err)
				fr = errorStub(key, err)
			}
			results[i] = fr
			if progress != nil {
				progress(i, len(flowKeys), StageDone, "")
			}
		}()
	}

	for range flowKeys {
		<-done
	}
	return results
}

// errorStub is the per-flow failure placeholder: zero scores, the error in
// metadata, and empty graphs.
func errorStub(flowKey string, err error) *FlowResult {
	empty := &graph.Output{
		FlowID:       flowKey,
		Source:       graph.SourceIndex,
		RootFunction: "error",
		Metadata:     map[string]any{"error": err.Error()},
	}
	return &FlowResult{
		FlowKey: flowKey,
		Result: &graph.VerificationResult{
			FlowID:     flowKey,
			GraphTrust: 0.0,
			FlowTrust:  0.0,
			Metadata:   map[string]any{"error": err.Error()},
		},
		Report:      fmt.Sprintf("Error: %v", err),
		KGGraph:     empty,
		SourceGraph: empty,
		Err:         err,
	}
}

// Aggregate folds flow results into the project-level summary.
func Aggregate(results []*FlowResult) map[string]any {
	total := len(results)
	failed := 0
	confirmed, phantom, missing := 0, 0, 0
	trustSum := 0.0
	scored := 0

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Err != nil {
			failed++
			continue
		}
		confirmed += len(r.Result.ConfirmedEdges)
		phantom += len(r.Result.PhantomEdges)
		missing += len(r.Result.MissingEdges)
		trustSum += r.Result.FlowTrust
		scored++
	}

	avgTrust := 0.0
	if scored > 0 {
		avgTrust = trustSum / float64(scored)
	}
	return map[string]any{
		"flows":           total,
		"flows_validated": scored,
		"flows_failed":    failed,
		"confirmed_edges": confirmed,
		"phantom_edges":   phantom,
		"missing_edges":   missing,
		"avg_flow_trust":  avgTrust,
	}
}
