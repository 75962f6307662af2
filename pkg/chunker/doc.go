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

// Package chunker slices a source tree into function-level chunks with
// stable identity, driven by the active language profiles.
//
// Three strategies cover the corpus:
//
//   - Definition chunking: regex patterns locate function/class definition
//     lines; each chunk runs from its definition to the line before the next
//     one. This handles most brace- and indent-scoped languages without an
//     AST.
//   - Block chunking: for languages whose unit is an explicit open/close
//     block (DCL-PROC/END-PROC and friends), open markers pair greedily with
//     the next unconsumed close marker so chunks never split mid-block.
//   - Tree-sitter chunking: for grammar-backed languages (Go, Python) the
//     AST gives exact boundaries; the profile regexes remain the fallback.
//
// Form-descriptor files (UI definitions binding events to handler names)
// produce one synthetic chunk per object, flagged in metadata.
package chunker
