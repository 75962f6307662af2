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

package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestUserErrorWrapping(t *testing.T) {
	inner := stderrors.New("disk full")
	err := NewStoreError("Cannot write index", "No space left", "Free disk space", inner)

	if !stderrors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() should include the cause, got %q", err.Error())
	}
	if err.ExitCode != ExitStore {
		t.Errorf("expected exit code %d, got %d", ExitStore, err.ExitCode)
	}
}

func TestFormatOmitsEmptySections(t *testing.T) {
	err := NewInputError("Bad flow key", "", "")
	out := err.Format(true)

	if !strings.Contains(out, "Error: Bad flow key") {
		t.Errorf("missing error line: %q", out)
	}
	if strings.Contains(out, "Cause:") || strings.Contains(out, "Fix:") {
		t.Errorf("empty sections must be omitted: %q", out)
	}
}

func TestToJSON(t *testing.T) {
	err := NewKGError("Cannot reach the knowledge graph", "connection refused", "Check TRUSTBOT_NEO4J_URI", nil)
	j := err.ToJSON()

	if j.Error != "Cannot reach the knowledge graph" || j.ExitCode != ExitKG {
		t.Errorf("unexpected JSON form: %+v", j)
	}
}

func TestExitCodes(t *testing.T) {
	cases := map[int]*UserError{
		ExitConfig:   NewConfigError("m", "c", "f", nil),
		ExitKG:       NewKGError("m", "c", "f", nil),
		ExitInput:    NewInputError("m", "c", "f"),
		ExitNotFound: NewNotFoundError("m", "c", "f"),
		ExitInternal: NewInternalError("m", "c", "f", nil),
	}
	for want, err := range cases {
		if err.ExitCode != want {
			t.Errorf("expected exit code %d, got %d", want, err.ExitCode)
		}
	}
}
