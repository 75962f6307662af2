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
	"time"

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/bootstrap"
	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/output"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
)

// StatusResult represents the index status for JSON output.
type StatusResult struct {
	ProjectID string    `json:"project_id"`
	DataDir   string    `json:"data_dir"`
	Functions int       `json:"functions"`
	CallEdges int       `json:"call_edges"`
	AgentMode string    `json:"agent_mode"`
	Timestamp time.Time `json:"timestamp"`
}

func runStatus(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot status [options]

Shows code-index statistics for the configured project.

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

	ctx := context.Background()
	h, err := bootstrap.Init(ctx, cfg, bootstrap.Options{}, nil)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot open the code index", err.Error(), "Run 'trustbot index' first", err), *jsonOutput)
	}
	defer func() { _ = h.Shutdown(ctx) }()

	functions, edges, err := h.Index.Stats(ctx)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot read index statistics", err.Error(), "The index may be corrupt; run 'trustbot reset --yes' then re-index", err), *jsonOutput)
	}

	mode := cfg.AgentMode
	if mode == "" {
		mode = "rule"
	}
	result := StatusResult{
		ProjectID: cfg.ProjectID,
		DataDir:   cfg.DataDir,
		Functions: functions,
		CallEdges: edges,
		AgentMode: mode,
		Timestamp: time.Now().UTC(),
	}

	if *jsonOutput {
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header(fmt.Sprintf("Project: %s", result.ProjectID))
	fmt.Printf("Data dir:   %s\n", result.DataDir)
	fmt.Printf("Functions:  %d\n", result.Functions)
	fmt.Printf("Call edges: %d\n", result.CallEdges)
	fmt.Printf("Agent mode: %s\n", result.AgentMode)

	if result.Functions == 0 {
		fmt.Println()
		ui.Info("The index is empty. Run 'trustbot index' to build it.")
	}
}
