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
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
)

func runReset(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("reset", pflag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")
	keepCache := fs.Bool("keep-llm-cache", false, "Preserve the LLM response cache")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot reset [options]

Deletes the local derived data: the code index, language profiles, and
(unless --keep-llm-cache) the LLM response cache. The knowledge graph is
never touched. Everything deleted here is rebuildable with 'trustbot index'.

WARNING: this operation cannot be undone.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm {
		errors.FatalError(errors.NewInputError(
			"Confirmation required",
			"reset deletes the code index and profile cache",
			"Pass --yes to confirm",
		), false)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError("Cannot load configuration", err.Error(), "Run 'trustbot init' first", err), false)
	}

	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		fmt.Printf("No local data found for project %s\n", cfg.ProjectID)
		return
	}

	targets := []string{cfg.IndexPath(), cfg.ProfilesDir()}
	if !*keepCache {
		targets = append(targets, cfg.CachePath())
	}

	fmt.Printf("Resetting project %s...\n", cfg.ProjectID)
	for _, t := range targets {
		if err := os.RemoveAll(t); err != nil {
			errors.FatalError(errors.NewStoreError("Cannot delete derived data", err.Error(), "Check file permissions", err), false)
		}
	}

	ui.Success("Reset complete.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  trustbot index    Rebuild the code index")
}
