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

// Package profile holds the per-language bundles of regex patterns,
// skip-tokens, comment/string delimiters and prompt addenda that drive the
// chunker and the call-edge extractor.
//
// Profiles come from two places: a fixed set of seeds shipped with the
// binary, and generated profiles produced by sampling an unknown codebase
// and asking the model for the schema, validated against a naive keyword
// count and refined up to three times. Generated profiles are cached on disk
// keyed by (language, codebase fingerprint).
//
// Go's regexp engine has no lookaround, so the bare-identifier exclusion is
// expressed as a separate "exclude follow" pattern tested against the text
// immediately after a candidate identifier.
package profile
