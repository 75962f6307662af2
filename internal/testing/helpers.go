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

// Package testing provides shared helpers for TrustBot tests.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/trustlabs/trustbot/pkg/index"
)

// SetupTestIndex creates a temporary code index, cleaned up with the test.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    idx := testing.SetupTestIndex(t)
//	    testing.InsertTestFunction(t, idx, "HandleAuth", "auth.pas", "TAuth")
//	    // ...
//	}
func SetupTestIndex(t *testing.T) *index.Index {
	t.Helper()

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test index: %v", err)
	}
	t.Cleanup(func() {
		_ = idx.Close()
	})
	return idx
}

// InsertTestFunction seeds one function row.
func InsertTestFunction(t *testing.T, idx *index.Index, name, filePath, className string) {
	t.Helper()

	_, err := idx.InsertFunction(context.Background(), index.FunctionRow{
		FunctionName: name,
		FilePath:     filePath,
		ClassName:    className,
		Language:     "delphi",
	})
	if err != nil {
		t.Fatalf("failed to insert test function %s: %v", name, err)
	}
}

// InsertTestEdge seeds one call edge. The caller is given as a chunk ID
// (file::class::function).
func InsertTestEdge(t *testing.T, idx *index.Index, callerID, callee string, confidence float64) {
	t.Helper()

	_, err := idx.InsertEdge(context.Background(), index.EdgeRow{
		CallerID:   callerID,
		CalleeName: callee,
		Confidence: confidence,
	})
	if err != nil {
		t.Fatalf("failed to insert test edge %s -> %s: %v", callerID, callee, err)
	}
}
