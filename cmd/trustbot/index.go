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
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/bootstrap"
	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/output"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
)

func runIndex(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("index", pflag.ExitOnError)
	root := fs.String("root", "", "Override the configured codebase root")
	noLLM := fs.Bool("no-llm", false, "Regex-only extraction (skip model calls and profiling)")
	jsonOutput := fs.Bool("json", false, "Output the build summary as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot index [options]

Chunks the codebase, extracts call edges, and rebuilds the code index.
The index is a derived artifact; rebuilding is always safe.

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
	if *root != "" {
		cfg.CodebaseRoot = *root
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := bootstrap.Init(ctx, cfg, bootstrap.Options{NeedLLM: !*noLLM}, nil)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot initialize stores", err.Error(), "Check data_dir permissions and the llm: configuration", err), *jsonOutput)
	}
	defer func() { _ = h.Shutdown(context.Background()) }()

	progress := NewProgressConfig(globals, *jsonOutput)
	spinner := NewSpinner(progress, fmt.Sprintf("Indexing %s", cfg.CodebaseRoot))
	if spinner != nil {
		defer func() { _ = spinner.Finish() }()
	}

	result, err := h.NewBuilder().Build(ctx, cfg.CodebaseRoot)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Index build failed", err.Error(), "Check the codebase root path and re-run", err), *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Successf("Indexed %d files: %d functions, %d call edges (%s)",
		result.Files, result.Functions, result.Edges, result.Duration.Round(10*time.Millisecond))
	if result.FileErrors > 0 {
		ui.Warningf("Skipped %d unreadable files", result.FileErrors)
	}
	fmt.Printf("  extraction: %d cached, %d model calls, %d regex fallbacks\n",
		result.ExtractStats.CacheHits, result.ExtractStats.LLMCalls, result.ExtractStats.Fallbacks)
}
