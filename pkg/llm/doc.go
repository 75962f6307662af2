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

// Package llm wraps chat-completion and embedding providers behind a single
// interface with retry, per-call timeouts, a process-wide concurrency gate,
// and a content-hash response cache.
//
// Supported backends: Ollama, OpenAI-compatible APIs, Anthropic, and a mock
// provider for tests. The Client is the only way the rest of TrustBot talks
// to a model: every call passes through the shared semaphore, so fan-out
// anywhere in the pipeline is bounded by one budget.
package llm
