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

// Package agents holds the two call-graph derivation agents.
//
// The KG fetcher reconstructs a flow's call graph purely from the knowledge
// graph; it never touches the filesystem. The source builder reconstructs an
// independent graph by resolving the same root in the code index and walking
// the stored call edges; it never touches the knowledge graph. Keeping the
// two derivations blind to each other is what gives the verification diff
// its meaning.
//
// Each agent has a deterministic implementation and an LLM-assisted variant
// behind the same interface; the LLM variants fall back to the deterministic
// path on any failure.
package agents
