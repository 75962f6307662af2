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

package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trustlabs/trustbot/pkg/graph"
)

// loadAliases reads the normalization alias table:
//
//	aliases:
//	  - canonical: SaveRecord
//	    aliases: [Save, DoSave]
func loadAliases(path string) (*graph.AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file %s: %w", path, err)
	}
	var table graph.AliasTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	return &table, nil
}
