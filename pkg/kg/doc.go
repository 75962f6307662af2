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

// Package kg provides read-only access to the knowledge-graph store.
//
// The store is an external Neo4j-style labelled property graph holding
// ExecutionFlow nodes, Snippet nodes, PARTICIPATES_IN_FLOW relationships
// (flagged with STARTS_FLOW on entry points) and CALLS relationships with an
// optional execution_order property. TrustBot never writes to it: the
// arbitrary-query surface rejects any Cypher containing a mutation keyword.
package kg
