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

// Package main implements the TrustBot CLI for indexing codebases and
// validating knowledge-graph call flows against them.
//
// Usage:
//
//	trustbot init                         Create .trustbot/project.yaml
//	trustbot index                        Index the configured codebase
//	trustbot validate <flow-key>...       Validate one or more flows
//	trustbot flows --project N --run M    List a project run's flows
//	trustbot status [--json]              Show index status
//	trustbot reset --yes                  Delete local derived data
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/trustlabs/trustbot/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are shared across subcommands.
type GlobalFlags struct {
	ConfigPath string
	NoColor    bool
	Quiet      bool
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .trustbot/project.yaml (default: ./.trustbot/project.yaml)")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		quiet       = flag.Bool("q", false, "Suppress progress output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `TrustBot - Call-Graph Knowledge Base Validator

Usage:
  trustbot <command> [options]

Commands:
  init          Create .trustbot/project.yaml configuration
  index         Chunk the codebase and build the code index
  validate      Validate execution flows against the index
  flows         List execution flows for a KG project run
  status        Show index status
  reset         Delete local derived data (destructive!)

Global Options:
  --config      Path to .trustbot/project.yaml
  --no-color    Disable colored output
  -q            Suppress progress output
  --version     Show version and exit

Examples:
  trustbot init
  trustbot index
  trustbot validate order-flow-001
  trustbot validate --project 12 --run 3
  trustbot status --json

Environment Variables:
  TRUSTBOT_NEO4J_URI        Knowledge-graph bolt URI
  TRUSTBOT_NEO4J_USER       Knowledge-graph user
  TRUSTBOT_NEO4J_PASSWORD   Knowledge-graph password
  TRUSTBOT_LLM_PROVIDER     ollama | openai | anthropic | mock
  TRUSTBOT_LLM_API_KEY      Model API key
  TRUSTBOT_AGENT_MODE       rule | llm

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("trustbot version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	ui.InitColors(*noColor)

	globals := GlobalFlags{
		ConfigPath: *configPath,
		NoColor:    *noColor,
		Quiet:      *quiet,
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "index":
		runIndex(cmdArgs, globals)
	case "validate":
		runValidate(cmdArgs, globals)
	case "flows":
		runFlows(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "reset":
		runReset(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
