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

package ui

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestTrustBadgeBands(t *testing.T) {
	// Disable color so the rendered text is comparable.
	original := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = original }()

	tests := []struct {
		trust float64
		want  string
	}{
		{1.0, "100%"},
		{0.95, "95%"},
		{0.6, "60%"},
		{0.2, "20%"},
		{0.0, "0%"},
	}
	for _, tt := range tests {
		if got := TrustBadge(tt.trust); got != tt.want {
			t.Errorf("TrustBadge(%v) = %q, want %q", tt.trust, got, tt.want)
		}
	}
}

func TestHeaderUnderlineMatchesLength(t *testing.T) {
	// Header prints; here we only verify the underline helper logic by
	// reproducing it, keeping the test free of stdout capture.
	msg := "Validation Results"
	underline := strings.Repeat("─", len([]rune(msg)))
	if len([]rune(underline)) != len([]rune(msg)) {
		t.Errorf("underline length %d != header length %d", len([]rune(underline)), len([]rune(msg)))
	}
}
