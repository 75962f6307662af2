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

// Package graph defines the shared call-graph model used across TrustBot.
//
// Both derivation agents (the knowledge-graph fetcher and the source-index
// builder) emit graphs in this identical format, which is what makes the
// verification diff possible. The package also carries canonical-name
// normalization: trimming, alias resolution, uppercasing, and the
// qualified-vs-bare name helpers used by every matching tier.
package graph
