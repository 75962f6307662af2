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
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/trustlabs/trustbot/internal/errors"
	"github.com/trustlabs/trustbot/internal/ui"
	"github.com/trustlabs/trustbot/pkg/config"
)

func runInit(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("init", pflag.ExitOnError)
	projectID := fs.String("project-id", "", "Project identifier (default: current directory name)")
	root := fs.String("root", ".", "Codebase root to index")
	force := fs.Bool("force", false, "Overwrite an existing configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: trustbot init [options]

Creates .trustbot/project.yaml with defaults. Edit the file (or use
TRUSTBOT_* environment variables) to point at your knowledge graph and
model endpoint.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := globals.ConfigPath
	if path == "" {
		path = config.DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s is already present", path),
			"Pass --force to overwrite it",
		), false)
	}

	cfg := config.Default()
	cfg.CodebaseRoot = *root
	if *projectID != "" {
		cfg.ProjectID = *projectID
	} else if wd, err := os.Getwd(); err == nil {
		cfg.ProjectID = filepath.Base(wd)
	}

	if err := cfg.Save(path); err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot write configuration",
			err.Error(),
			"Check directory permissions",
			err,
		), false)
	}

	ui.Successf("Created %s (project: %s)", path, cfg.ProjectID)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit the kg: and llm: sections (or set TRUSTBOT_* env vars)")
	fmt.Println("  2. trustbot index")
	fmt.Println("  3. trustbot validate <flow-key>")
}
