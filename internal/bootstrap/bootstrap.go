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

// Package bootstrap owns process lifecycle: the embedded stores, the shared
// LLM client with its process-wide semaphore, and the knowledge-graph
// connection all initialize here and shut down here. No package holds a
// hidden singleton; everything threads through the Harness.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/trustlabs/trustbot/pkg/agents"
	"github.com/trustlabs/trustbot/pkg/analyze"
	"github.com/trustlabs/trustbot/pkg/chunker"
	"github.com/trustlabs/trustbot/pkg/config"
	"github.com/trustlabs/trustbot/pkg/extract"
	"github.com/trustlabs/trustbot/pkg/graph"
	"github.com/trustlabs/trustbot/pkg/index"
	"github.com/trustlabs/trustbot/pkg/kg"
	"github.com/trustlabs/trustbot/pkg/llm"
	"github.com/trustlabs/trustbot/pkg/pipeline"
	"github.com/trustlabs/trustbot/pkg/profile"
)

// Options selects which subsystems a command needs. Commands that only read
// the index skip the KG connection entirely.
type Options struct {
	NeedKG  bool
	NeedLLM bool
}

// Harness holds the initialized process-wide state.
type Harness struct {
	Config   *config.Config
	Logger   *slog.Logger
	Index    *index.Index
	Cache    *llm.Cache
	LLM      *llm.Client
	KG       *kg.Client
	Registry *profile.Registry

	aliases *graph.AliasTable
}

// Init opens the stores and connections a command needs. Fails fast on
// configuration errors and unreachable stores.
func Init(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Harness, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	h := &Harness{Config: cfg, Logger: logger, Registry: profile.NewRegistry(logger)}

	idx, err := index.Open(cfg.IndexPath(), logger)
	if err != nil {
		return nil, err
	}
	h.Index = idx

	if opts.NeedLLM {
		cache, err := llm.OpenCache(cfg.CachePath())
		if err != nil {
			h.shutdownPartial(ctx)
			return nil, err
		}
		h.Cache = cache

		provider, err := llm.NewProvider(llm.ProviderConfig{
			Type:       cfg.LLM.Provider,
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			EmbedModel: cfg.LLM.EmbedModel,
			Timeout:    cfg.Timeout(),
		})
		if err != nil {
			h.shutdownPartial(ctx)
			return nil, err
		}
		h.LLM = llm.NewClient(provider, llm.ClientConfig{
			MaxConcurrent: cfg.LLM.MaxConcurrent,
			CallTimeout:   cfg.Timeout(),
		}, logger)
	}

	if opts.NeedKG {
		client, err := kg.NewClient(ctx, kg.ClientConfig{
			URI:      cfg.KG.URI,
			Username: cfg.KG.Username,
			Password: cfg.KG.Password,
			Database: cfg.KG.Database,
		}, logger)
		if err != nil {
			h.shutdownPartial(ctx)
			return nil, err
		}
		h.KG = client
	}

	if cfg.AliasFile != "" {
		aliases, err := loadAliases(cfg.AliasFile)
		if err != nil {
			h.shutdownPartial(ctx)
			return nil, err
		}
		h.aliases = aliases
	}

	logger.Info("bootstrap.init",
		"project_id", cfg.ProjectID,
		"data_dir", cfg.DataDir,
		"kg", opts.NeedKG,
		"llm", opts.NeedLLM,
	)
	return h, nil
}

// Shutdown releases all resources in reverse order of acquisition.
func (h *Harness) Shutdown(ctx context.Context) error {
	var lastErr error
	if h.KG != nil {
		if err := h.KG.Close(ctx); err != nil {
			lastErr = err
		}
		h.KG = nil
	}
	if h.Cache != nil {
		if err := h.Cache.Close(); err != nil {
			lastErr = err
		}
		h.Cache = nil
	}
	if h.Index != nil {
		if err := h.Index.Close(); err != nil {
			lastErr = err
		}
		h.Index = nil
	}
	return lastErr
}

func (h *Harness) shutdownPartial(ctx context.Context) {
	_ = h.Shutdown(ctx)
}

// NewBuilder wires an index Builder from the harness components. The
// profiler only runs when the LLM subsystem is up; otherwise seeds apply.
func (h *Harness) NewBuilder() *index.Builder {
	ch := chunker.New(h.Registry, h.Logger)
	ex := extract.New(h.LLM, h.Cache, h.Registry, h.Logger)

	var profiler *profile.Profiler
	if h.LLM != nil {
		store := profile.NewStore(h.Config.ProfilesDir())
		profiler = profile.NewProfiler(h.Config.CodebaseRoot, h.LLM, store, h.Registry, h.Logger)
	}
	return index.NewBuilder(h.Index, ch, ex, profiler, h.Logger)
}

// NewPipeline wires a validation Pipeline, selecting rule-based or
// LLM-assisted agents from the configuration. The LLM mode requires the LLM
// subsystem; it degrades to rule-based when it is absent.
func (h *Harness) NewPipeline() (*pipeline.Pipeline, error) {
	if h.KG == nil {
		return nil, fmt.Errorf("pipeline requires a knowledge-graph connection")
	}

	ruleSource := agents.NewSourceBuilder(h.Index, h.Logger)

	var kgAgent agents.KGDeriver = agents.NewKGFetcher(h.KG, h.Logger)
	var srcAgent agents.SourceDeriver = ruleSource
	var analyzer analyze.Analyzer = analyze.NewRuleAnalyzer(h.Logger)

	if h.Config.AgentMode == "llm" && h.LLM != nil {
		toolbelt := agents.NewToolbelt(h.Index, h.Config.CodebaseRoot)
		kgAgent = agents.NewLLMKGFetcher(h.KG, h.LLM, h.Logger)
		srcAgent = agents.NewLLMSourceBuilder(ruleSource, h.LLM, toolbelt, h.Logger)
		analyzer = analyze.NewLLMAnalyzer(h.LLM, toolbelt, h.Logger)
	}

	p := pipeline.New(kgAgent, srcAgent, analyzer, graph.NewNormalizer(h.aliases), nil, h.Logger)
	p.MaxConcurrent = h.Config.LLM.MaxConcurrent
	return p, nil
}
