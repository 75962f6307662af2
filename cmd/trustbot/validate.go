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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/bootstrap"
	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/output"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
	"github.com/trustlabs/trustbot/pkg/pipeline"
)

func runValidate(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	projectID := fs.Int64("project", 0, "Validate every flow of this KG project id")
	runID := fs.Int64("run", 0, "KG run id (with --project)")
	concurrency := fs.Int("concurrency", 0, "Max concurrent flows (default: llm.max_concurrent)")
	jsonOutput := fs.Bool("json", false, "Output results as JSON")
	showReports := fs.Bool("reports", false, "Print the full markdown report per flow")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot validate [options] [flow-key ...]

Validates knowledge-graph execution flows against the indexed codebase.
Pass flow keys explicitly, or --project/--run to validate a whole run.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError("Cannot load configuration", err.Error(), "Run 'trustbot init' first", err), *jsonOutput)
	}

	flowKeys := fs.Args()
	if len(flowKeys) == 0 && *projectID == 0 {
		errors.FatalError(errors.NewInputError(
			"No flows to validate",
			"Neither flow keys nor --project were given",
			"Pass flow keys, or --project N --run M to enumerate a run",
		), *jsonOutput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	needLLM := cfg.AgentMode == "llm"
	h, err := bootstrap.Init(ctx, cfg, bootstrap.Options{NeedKG: true, NeedLLM: needLLM}, nil)
	if err != nil {
		errors.FatalError(errors.NewKGError(
			"Cannot initialize",
			err.Error(),
			"Check kg: connection settings and that the index exists (trustbot index)",
			err,
		), *jsonOutput)
	}
	defer func() { _ = h.Shutdown(context.Background()) }()

	if len(flowKeys) == 0 {
		flows, err := h.KG.FlowsByProject(ctx, *projectID, *runID)
		if err != nil {
			errors.FatalError(errors.NewNotFoundError(
				"No flows found",
				err.Error(),
				"Check --project and --run against the knowledge graph",
			), *jsonOutput)
		}
		for _, f := range flows {
			flowKeys = append(flowKeys, f.Key)
		}
	}

	p, err := h.NewPipeline()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot build pipeline", err.Error(), "", err), *jsonOutput)
	}

	progressCfg := NewProgressConfig(globals, *jsonOutput)
	bar := NewProgressBar(progressCfg, int64(len(flowKeys)), "Validating flows")
	var progress pipeline.Progress
	if bar != nil {
		progress = func(flowIndex, flowCount int, stage, message string) {
			if stage == pipeline.StageDone {
				_ = bar.Add(1)
			}
		}
	}

	results := p.ValidateFlows(ctx, flowKeys, *concurrency, progress)
	if bar != nil {
		_ = bar.Finish()
	}

	aggregate := pipeline.Aggregate(results)

	if *jsonOutput {
		payload := map[string]any{
			"aggregate": aggregate,
			"flows":     results,
		}
		if err := output.JSON(payload); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	printValidationSummary(results, aggregate, *showReports)

	if failed, _ := aggregate["flows_failed"].(int); failed > 0 {
		os.Exit(errors.ExitKG)
	}
}

func printValidationSummary(results []*pipeline.FlowResult, aggregate map[string]any, showReports bool) {
	ui.Header("Validation Results")
	for _, r := range results {
		if r.Err != nil {
			ui.Errorf("%s: %v", r.FlowKey, r.Err)
			continue
		}
		fmt.Printf("%s %s: %s\n",
			ui.TrustBadge(r.Result.FlowTrust), r.FlowKey, pipeline.Summary(r.Result))
		if showReports {
			fmt.Println()
			fmt.Println(r.Report)
		}
	}

	fmt.Println()
	ui.Header("Project Aggregate")
	fmt.Printf("Flows:     %d validated, %d failed\n", aggregate["flows_validated"], aggregate["flows_failed"])
	fmt.Printf("Edges:     %d confirmed, %d phantom, %d missing\n",
		aggregate["confirmed_edges"], aggregate["phantom_edges"], aggregate["missing_edges"])
	avg, _ := aggregate["avg_flow_trust"].(float64)
	fmt.Printf("Avg trust: %s\n", strings.TrimSpace(ui.TrustBadge(avg)))
}
