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

// Package ui provides color output helpers for the TrustBot CLI.
//
// Colors respect the --no-color flag and the NO_COLOR environment variable.
//
// Usage guidelines:
//   - Red: errors, failures, phantom edges
//   - Yellow: warnings, missing edges
//   - Green: success, confirmed edges
//   - Cyan: neutral info
//   - Bold: headers
//   - Dim: paths and details
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Pre-configured color instances for consistent CLI output.
var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors configures global color output; call early in main() after
// flag parsing.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// Success prints a green message with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf prints a formatted green message with a checkmark prefix.
func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow message with a warning prefix.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Warningf prints a formatted yellow message with a warning prefix.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Error prints a red message with an X prefix.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Errorf prints a formatted red message with an X prefix.
func Errorf(format string, args ...any) {
	_, _ = Red.Printf("✗ "+format+"\n", args...)
}

// Info prints a cyan informational message.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof prints a formatted cyan informational message.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints a bold section header with an underline.
func Header(msg string) {
	_, _ = Bold.Println(msg)
	_, _ = Bold.Println(strings.Repeat("─", len([]rune(msg))))
}

// TrustBadge renders a trust score with a color keyed to its band:
// green ≥ 0.9, yellow ≥ 0.6, red below.
func TrustBadge(trust float64) string {
	pct := fmt.Sprintf("%.0f%%", trust*100)
	switch {
	case trust >= 0.9:
		return Green.Sprint(pct)
	case trust >= 0.6:
		return Yellow.Sprint(pct)
	default:
		return Red.Sprint(pct)
	}
}
