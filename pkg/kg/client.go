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

package kg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrFlowNotFound marks a semantic miss: the flow key does not exist in the
// store. Callers treat this differently from transient connection failures.
var ErrFlowNotFound = errors.New("execution flow not found")

// forbiddenCypher lists mutation keywords the arbitrary-query surface rejects.
var forbiddenCypher = map[string]struct{}{
	"CREATE": {}, "DELETE": {}, "SET": {}, "MERGE": {},
	"REMOVE": {}, "DETACH": {}, "DROP": {},
}

// Store is the read surface the derivation agents consume. Client implements
// it against Neo4j; tests provide in-memory fakes.
type Store interface {
	// FlowByKey fetches one ExecutionFlow node with all its properties.
	FlowByKey(ctx context.Context, key string) (*ExecutionFlow, error)

	// FlowGraphByKey fetches the flow, its full participant set, and all
	// CALLS relationships among the participants.
	FlowGraphByKey(ctx context.Context, key string) (*FlowGraph, error)

	// FlowsByProject enumerates flows for a (project_id, run_id) pair,
	// ordered by name.
	FlowsByProject(ctx context.Context, projectID, runID int64) ([]ExecutionFlow, error)
}

// ClientConfig holds connection settings.
type ClientConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Client is the Neo4j-backed Store.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewClient connects to the store and verifies connectivity.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	logger.Info("kg.connect", "uri", cfg.URI)
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Close shuts down the driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
}

// FlowByKey fetches one ExecutionFlow node by its key.
func (c *Client) FlowByKey(ctx context.Context, key string) (*ExecutionFlow, error) {
	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (ef:ExecutionFlow {key: $key}) RETURN ef`,
		map[string]any{"key": key},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch flow %q: %w", key, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrFlowNotFound, key)
	}
	node, ok := record.Get("ef")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlowNotFound, key)
	}
	flow := nodeToFlow(node.(neo4j.Node))
	return &flow, nil
}

// FlowsByProject enumerates flows for a project run.
func (c *Client) FlowsByProject(ctx context.Context, projectID, runID int64) ([]ExecutionFlow, error) {
	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (ef:ExecutionFlow {project_id: $pid, run_id: $rid})
		 RETURN ef ORDER BY ef.name`,
		map[string]any{"pid": projectID, "rid": runID},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch flows for project %d run %d: %w", projectID, runID, err)
	}

	var flows []ExecutionFlow
	for result.Next(ctx) {
		if node, ok := result.Record().Get("ef"); ok {
			flows = append(flows, nodeToFlow(node.(neo4j.Node)))
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, fmt.Errorf("%w: no flows for project_id=%d run_id=%d", ErrFlowNotFound, projectID, runID)
	}
	return flows, nil
}

// FlowGraphByKey fetches the flow, all participants, and the CALLS edges
// among them. Edges are deduplicated on (caller, callee, execution_order) so
// repeated calls with distinct orders survive, and returned sorted by
// (caller, execution_order) for deterministic downstream processing.
func (c *Client) FlowGraphByKey(ctx context.Context, key string) (*FlowGraph, error) {
	flow, err := c.FlowByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	session := c.session(ctx)
	defer session.Close(ctx)

	graph := &FlowGraph{Flow: flow, Snippets: make(map[string]*Snippet)}

	// Participants, entry points flagged on the relationship.
	result, err := session.Run(ctx,
		`MATCH (ef:ExecutionFlow {key: $key})<-[r:PARTICIPATES_IN_FLOW]-(s:Snippet)
		 RETURN s, r.STARTS_FLOW AS starts_flow`,
		map[string]any{"key": key},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch participants for %q: %w", key, err)
	}
	for result.Next(ctx) {
		record := result.Record()
		nodeVal, ok := record.Get("s")
		if !ok {
			continue
		}
		snippet := nodeToSnippet(nodeVal.(neo4j.Node))
		if starts, ok := record.Get("starts_flow"); ok {
			if b, ok := starts.(bool); ok && b {
				snippet.StartsFlow = true
				graph.EntryPoints = append(graph.EntryPoints, snippet.Key)
			}
		}
		graph.Snippets[snippet.Key] = &snippet
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	// CALLS edges within the participant set.
	result, err = session.Run(ctx,
		`MATCH (ef:ExecutionFlow {key: $key})<-[:PARTICIPATES_IN_FLOW]-(s:Snippet)
		 OPTIONAL MATCH (s)-[c:CALLS]->(target:Snippet)
		 RETURN s.key AS caller_key, target.key AS callee_key,
		        properties(c) AS call_props, target`,
		map[string]any{"key": key},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch calls for %q: %w", key, err)
	}

	seen := make(map[[2]string]map[int64]struct{})
	for result.Next(ctx) {
		record := result.Record()
		callerVal, _ := record.Get("caller_key")
		calleeVal, _ := record.Get("callee_key")
		callerKey, _ := callerVal.(string)
		calleeKey, _ := calleeVal.(string)
		if callerKey == "" || calleeKey == "" {
			continue
		}

		props := map[string]any{}
		if p, ok := record.Get("call_props"); ok && p != nil {
			if m, ok := p.(map[string]any); ok {
				props = m
			}
		}
		order := int64(0)
		if v, ok := props["execution_order"]; ok {
			if n, ok := v.(int64); ok {
				order = n
			}
		}

		pair := [2]string{callerKey, calleeKey}
		if seen[pair] == nil {
			seen[pair] = make(map[int64]struct{})
		}
		if _, dup := seen[pair][order]; dup {
			continue
		}
		seen[pair][order] = struct{}{}

		// Callees outside the participant set still get snippet records.
		if _, ok := graph.Snippets[calleeKey]; !ok {
			if targetVal, ok := record.Get("target"); ok && targetVal != nil {
				if node, ok := targetVal.(neo4j.Node); ok {
					snippet := nodeToSnippet(node)
					graph.Snippets[snippet.Key] = &snippet
				}
			}
		}

		graph.Calls = append(graph.Calls, FlowCall{
			CallerKey:      callerKey,
			CalleeKey:      calleeKey,
			ExecutionOrder: order,
			Properties:     props,
		})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(graph.Calls, func(i, j int) bool {
		if graph.Calls[i].CallerKey != graph.Calls[j].CallerKey {
			return graph.Calls[i].CallerKey < graph.Calls[j].CallerKey
		}
		return graph.Calls[i].ExecutionOrder < graph.Calls[j].ExecutionOrder
	})

	c.logger.Info("kg.flow_graph",
		"key", key,
		"snippets", len(graph.Snippets),
		"calls", len(graph.Calls),
		"entry_points", len(graph.EntryPoints),
	)
	return graph, nil
}

// Query runs an arbitrary Cypher query with the read-only guard applied.
// Used by the LLM-assisted agents' toolbelt.
func (c *Client) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	if err := GuardReadOnly(cypher); err != nil {
		return nil, err
	}

	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("kg query: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]any, len(record.Keys))
		for _, k := range record.Keys {
			v, _ := record.Get(k)
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, result.Err()
}

// GuardReadOnly rejects any Cypher text containing a mutation keyword.
func GuardReadOnly(cypher string) error {
	for _, token := range strings.Fields(strings.ToUpper(cypher)) {
		if _, bad := forbiddenCypher[token]; bad {
			return fmt.Errorf("write operation %q is not allowed: the knowledge-graph surface is read-only", token)
		}
	}
	return nil
}

func nodeToFlow(node neo4j.Node) ExecutionFlow {
	props := node.Props
	return ExecutionFlow{
		Key:         stringProp(props, "key"),
		Name:        stringProp(props, "name"),
		Description: stringProp(props, "description"),
		ProjectID:   intProp(props, "project_id"),
		RunID:       intProp(props, "run_id"),
		ModuleName:  stringProp(props, "module_name"),
		FlowType:    stringProp(props, "flow_type"),
		Properties:  props,
	}
}

func nodeToSnippet(node neo4j.Node) Snippet {
	props := node.Props
	key := stringProp(props, "key")
	if key == "" {
		key = node.ElementId
	}
	return Snippet{
		Key:          key,
		FunctionName: stringProp(props, "function_name"),
		Name:         stringProp(props, "name"),
		ClassName:    stringProp(props, "class_name"),
		FilePath:     stringProp(props, "file_path"),
		FileName:     stringProp(props, "file_name"),
		LineStart:    intProp(props, "start_line_number"),
		LineEnd:      intProp(props, "end_line_number"),
		Properties:   props,
	}
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	if v, ok := props[key]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return 0
}
