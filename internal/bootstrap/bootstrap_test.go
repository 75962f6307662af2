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

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectID = "test"
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.CodebaseRoot = t.TempDir()
	cfg.LLM.Provider = "mock"
	return cfg
}

func TestInitAndShutdownIndexOnly(t *testing.T) {
	ctx := context.Background()
	h, err := Init(ctx, testConfig(t), Options{}, nil)
	require.NoError(t, err)

	require.NotNil(t, h.Index)
	assert.Nil(t, h.LLM, "LLM subsystem only comes up when requested")
	assert.Nil(t, h.KG)

	require.NoError(t, h.Shutdown(ctx))
	// Shutdown is idempotent.
	require.NoError(t, h.Shutdown(ctx))
}

func TestInitWithLLM(t *testing.T) {
	ctx := context.Background()
	h, err := Init(ctx, testConfig(t), Options{NeedLLM: true}, nil)
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(ctx) }()

	require.NotNil(t, h.LLM)
	require.NotNil(t, h.Cache)
	assert.Equal(t, "mock", h.LLM.Provider().Name())
	assert.NotNil(t, h.NewBuilder())
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.MaxConcurrent = 0
	_, err := Init(context.Background(), cfg, Options{}, nil)
	require.Error(t, err)
}

func TestNewPipelineRequiresKG(t *testing.T) {
	ctx := context.Background()
	h, err := Init(ctx, testConfig(t), Options{}, nil)
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(ctx) }()

	_, err = h.NewPipeline()
	require.Error(t, err)
}

func TestBuilderRunsEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CodebaseRoot, "app.py"),
		[]byte("def main():\n    helper()\n\ndef helper():\n    pass\n"), 0644))

	h, err := Init(ctx, cfg, Options{}, nil)
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(ctx) }()

	result, err := h.NewBuilder().Build(ctx, cfg.CodebaseRoot)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Functions)
	assert.GreaterOrEqual(t, result.Edges, 1)

	functions, edges, err := h.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, functions)
	assert.Equal(t, result.Edges, edges)
}
