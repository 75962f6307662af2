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

// Package config loads TrustBot project configuration from
// .trustbot/project.yaml with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the project-relative configuration file location.
const DefaultConfigPath = ".trustbot/project.yaml"

// KGConfig holds knowledge-graph store connection settings.
type KGConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LLMConfig holds model endpoint settings.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // ollama, openai, anthropic, mock
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbedModel     string `yaml:"embed_model"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Config is the full project configuration.
type Config struct {
	ProjectID    string    `yaml:"project_id"`
	CodebaseRoot string    `yaml:"codebase_root"`
	DataDir      string    `yaml:"data_dir"` // index, cache, profiles live under here
	KG           KGConfig  `yaml:"kg"`
	LLM          LLMConfig `yaml:"llm"`

	// AgentMode selects the derivation/analysis implementations:
	// "rule" for deterministic agents, "llm" for the hybrid LLM-assisted ones.
	AgentMode string `yaml:"agent_mode"`

	// AliasFile optionally points at a YAML alias table for normalization.
	AliasFile string `yaml:"alias_file"`
}

// Timeout returns the per-call LLM timeout as a duration.
func (c *Config) Timeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// IndexPath returns the code-index database location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "code_index.db")
}

// CachePath returns the LLM cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "llm_cache.db")
}

// ProfilesDir returns the language-profile cache directory.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		ProjectID:    "default",
		CodebaseRoot: ".",
		DataDir:      ".trustbot/data",
		KG: KGConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Password: "password",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			EmbedModel:     "text-embedding-3-small",
			MaxConcurrent:  5,
			TimeoutSeconds: 120,
		},
		AgentMode: "rule",
	}
}

// Load reads configuration from path (DefaultConfigPath when empty), applies
// defaults for unset fields, then applies environment overrides. A missing
// file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env overrides.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate fails fast on configuration that cannot work.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.KG.URI == "" {
		return fmt.Errorf("kg.uri is required")
	}
	if c.LLM.MaxConcurrent <= 0 {
		return fmt.Errorf("llm.max_concurrent must be positive (got %d)", c.LLM.MaxConcurrent)
	}
	switch c.AgentMode {
	case "", "rule", "llm":
	default:
		return fmt.Errorf("agent_mode must be \"rule\" or \"llm\" (got %q)", c.AgentMode)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRUSTBOT_NEO4J_URI"); v != "" {
		cfg.KG.URI = v
	}
	if v := os.Getenv("TRUSTBOT_NEO4J_USER"); v != "" {
		cfg.KG.Username = v
	}
	if v := os.Getenv("TRUSTBOT_NEO4J_PASSWORD"); v != "" {
		cfg.KG.Password = v
	}
	if v := os.Getenv("TRUSTBOT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("TRUSTBOT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TRUSTBOT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TRUSTBOT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TRUSTBOT_MAX_CONCURRENT_LLM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.MaxConcurrent = n
		}
	}
	if v := os.Getenv("TRUSTBOT_AGENT_MODE"); v != "" {
		cfg.AgentMode = v
	}
}
