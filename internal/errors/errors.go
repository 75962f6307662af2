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

// Package errors provides structured error handling for the TrustBot CLI.
//
// UserError carries what went wrong, why, and how to fix it, plus a semantic
// exit code. Library packages return plain wrapped errors; the CLI layer
// converts them into UserErrors at the boundary.
//
// Exit codes follow Unix conventions:
//   - ExitSuccess (0): successful execution
//   - ExitConfig (1): configuration errors
//   - ExitStore (2): embedded store errors (index or cache)
//   - ExitKG (3): knowledge-graph connection or query errors
//   - ExitInput (4): invalid user input
//   - ExitNotFound (6): resource not found (flow, project, index)
//   - ExitInternal (10): internal errors (bugs)
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for different error categories.
const (
	ExitSuccess  = 0
	ExitConfig   = 1
	ExitStore    = 2
	ExitKG       = 3
	ExitInput    = 4
	ExitNotFound = 6
	ExitInternal = 10
)

// UserError represents an error with structured context for end users.
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred.
	Cause string

	// Fix provides an actionable suggestion.
	Fix string

	// ExitCode is used when exiting due to this error.
	ExitCode int

	// Err is the underlying error (optional).
	Err error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap enables errors.Is / errors.As over the chain.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error with exit code ExitConfig.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewStoreError creates an embedded-store error with exit code ExitStore.
//
// Example:
//
//	return NewStoreError(
//	    "Cannot open the code index",
//	    "The database file is locked by another process",
//	    "Close other trustbot instances or run: trustbot reset --yes",
//	    err,
//	)
func NewStoreError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitStore, Err: err}
}

// NewKGError creates a knowledge-graph error with exit code ExitKG.
func NewKGError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitKG, Err: err}
}

// NewInputError creates an input validation error with exit code ExitInput.
func NewInputError(msg, cause, fix string) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInput}
}

// NewNotFoundError creates a resource-not-found error with exit code ExitNotFound.
func NewNotFoundError(msg, cause, fix string) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNotFound}
}

// NewInternalError creates an internal error with exit code ExitInternal.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInternal, Err: err}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a colored terminal rendering:
//
//	Error: Cannot open the code index
//	Cause: The database file is locked by another process
//	Fix:   Close other trustbot instances or run: trustbot reset --yes
//
// Color respects NO_COLOR and the noColor parameter. Empty Cause/Fix lines
// are omitted.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the machine-readable rendering.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the UserError to its JSON form.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// FatalError prints the error and exits with the appropriate code.
// For a non-nil err it does not return; a nil err is a no-op.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ue, ok := err.(*UserError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// Encoding failure is ignored; we exit with the right code anyway.
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
