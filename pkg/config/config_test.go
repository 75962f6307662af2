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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "bolt://localhost:7687", cfg.KG.URI)
	assert.Equal(t, 5, cfg.LLM.MaxConcurrent)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	cfg := Default()
	cfg.ProjectID = "legacy-app"
	cfg.LLM.MaxConcurrent = 8
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy-app", loaded.ProjectID)
	assert.Equal(t, 8, loaded.LLM.MaxConcurrent)
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("TRUSTBOT_NEO4J_URI", "bolt://kg:7687")
	os.Setenv("TRUSTBOT_MAX_CONCURRENT_LLM", "3")
	defer os.Unsetenv("TRUSTBOT_NEO4J_URI")
	defer os.Unsetenv("TRUSTBOT_MAX_CONCURRENT_LLM")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "bolt://kg:7687", cfg.KG.URI)
	assert.Equal(t, 3, cfg.LLM.MaxConcurrent)
}

func TestValidateRejectsBadAgentMode(t *testing.T) {
	cfg := Default()
	cfg.AgentMode = "hybrid"
	assert.Error(t, cfg.Validate())
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/tb"
	assert.Equal(t, "/tmp/tb/code_index.db", cfg.IndexPath())
	assert.Equal(t, "/tmp/tb/llm_cache.db", cfg.CachePath())
	assert.Equal(t, "/tmp/tb/profiles", cfg.ProfilesDir())
}
