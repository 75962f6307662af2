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

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/bootstrap"
	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/output"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
)

func runFlows(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("flows", pflag.ExitOnError)
	projectID := fs.Int64("project", 0, "KG project id (required)")
	runID := fs.Int64("run", 0, "KG run id")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot flows --project N [--run M] [options]

Lists the execution flows of a knowledge-graph project run.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *projectID == 0 {
		errors.FatalError(errors.NewInputError("--project is required", "", "Pass the KG project id"), *jsonOutput)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError("Cannot load configuration", err.Error(), "Run 'trustbot init' first", err), *jsonOutput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := bootstrap.Init(ctx, cfg, bootstrap.Options{NeedKG: true}, nil)
	if err != nil {
		errors.FatalError(errors.NewKGError("Cannot connect to the knowledge graph", err.Error(), "Check kg: connection settings", err), *jsonOutput)
	}
	defer func() { _ = h.Shutdown(context.Background()) }()

	flows, err := h.KG.FlowsByProject(ctx, *projectID, *runID)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError("No flows found", err.Error(), "Check --project and --run"), *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(flows); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header(fmt.Sprintf("Flows for project %d run %d", *projectID, *runID))
	for _, f := range flows {
		fmt.Printf("  %s", f.Key)
		if f.Name != "" {
			_, _ = ui.Dim.Printf("  %s", f.Name)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d flows\n", len(flows))
}
