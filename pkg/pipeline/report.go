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

package pipeline

import (
	"fmt"
	"strings"

	"github.com/trustlabs/trustbot/pkg/analyze"
	"github.com/trustlabs/trustbot/pkg/graph"
)

// MarkdownReport is the built-in Formatter: a deterministic markdown
// rendering of the verification result and optional analysis.
func MarkdownReport(result *graph.VerificationResult, analysis *analyze.Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Validation Report: %s\n\n", result.FlowID)
	fmt.Fprintf(&sb, "**Flow trust:** %.0f%%  \n", result.FlowTrust*100)
	fmt.Fprintf(&sb, "**Graph trust:** %.0f%%\n\n", result.GraphTrust*100)

	fmt.Fprintf(&sb, "| Classification | Count |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Confirmed | %d |\n", len(result.ConfirmedEdges))
	fmt.Fprintf(&sb, "| Phantom | %d |\n", len(result.PhantomEdges))
	fmt.Fprintf(&sb, "| Missing | %d |\n", len(result.MissingEdges))
	fmt.Fprintf(&sb, "| Conflicted | %d |\n\n", len(result.ConflictedEdges))

	if len(result.ConfirmedEdges) > 0 {
		sb.WriteString("## Confirmed Edges\n\n")
		for _, e := range result.ConfirmedEdges {
			fmt.Fprintf(&sb, "- `%s` -> `%s` (trust %.2f) - %s\n", e.Caller, e.Callee, e.Trust, e.Details)
		}
		sb.WriteString("\n")
	}
	if len(result.PhantomEdges) > 0 {
		sb.WriteString("## Phantom Edges (KG only)\n\n")
		for _, e := range result.PhantomEdges {
			fmt.Fprintf(&sb, "- `%s` -> `%s` - %s\n", e.Caller, e.Callee, e.Details)
		}
		sb.WriteString("\n")
	}
	if len(result.MissingEdges) > 0 {
		sb.WriteString("## Missing Edges (source only)\n\n")
		for _, e := range result.MissingEdges {
			fmt.Fprintf(&sb, "- `%s` -> `%s`\n", e.Caller, e.Callee)
		}
		sb.WriteString("\n")
	}
	if len(result.UnresolvedCallees) > 0 {
		fmt.Fprintf(&sb, "**Unresolved callees:** %s\n\n", strings.Join(result.UnresolvedCallees, ", "))
	}

	if mismatches, ok := result.Metadata["execution_order_mismatch"].([]graph.OrderMismatch); ok && len(mismatches) > 0 {
		sb.WriteString("## Execution Order Mismatches\n\n")
		for _, m := range mismatches {
			fmt.Fprintf(&sb, "- `%s`: KG order %v vs index order %v\n", m.Caller, m.KGOrder, m.IndexOrder)
		}
		sb.WriteString("\n")
	}

	if analysis != nil {
		sb.WriteString("## Analysis\n\n")
		fmt.Fprintf(&sb, "Root: %s\n\n", analysis.Root.Message)

		if len(analysis.PhantomReasons) > 0 {
			sb.WriteString("### Phantom Edge Causes\n\n")
			for _, r := range analysis.PhantomReasons {
				fmt.Fprintf(&sb, "- `%s` -> `%s` [%s]: %s\n  - Fix: %s\n", r.Caller, r.Callee, r.Cause, r.Reason, r.Fix)
			}
			sb.WriteString("\n")
		}
		if len(analysis.MissingReasons) > 0 {
			sb.WriteString("### Missing Edge Causes\n\n")
			for _, r := range analysis.MissingReasons {
				fmt.Fprintf(&sb, "- `%s` -> `%s` [%s]: %s\n  - Fix: %s\n", r.Caller, r.Callee, r.Cause, r.Reason, r.Fix)
			}
			sb.WriteString("\n")
		}
		if len(analysis.SystemicPatterns) > 0 {
			sb.WriteString("### Systemic Patterns\n\n")
			for _, p := range analysis.SystemicPatterns {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
			sb.WriteString("\n")
		}
		if len(analysis.RecommendedActions) > 0 {
			sb.WriteString("### Recommended Actions\n\n")
			for i, a := range analysis.RecommendedActions {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, a)
			}
		}
	}

	return sb.String()
}

// Summary is a one-line rendering for progress output and logs.
func Summary(result *graph.VerificationResult) string {
	return fmt.Sprintf("%d confirmed, %d phantom, %d missing (trust %.0f%%)",
		len(result.ConfirmedEdges), len(result.PhantomEdges), len(result.MissingEdges),
		result.FlowTrust*100)
}
