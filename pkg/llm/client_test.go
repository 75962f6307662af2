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

package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRetriesTransientErrors(t *testing.T) {
	var calls int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, &StatusError{Provider: "mock", Code: 503, Body: "unavailable"}
			}
			return &ChatResponse{Message: Message{Role: "assistant", Content: "ok"}}, nil
		},
	}
	client := NewClient(provider, ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	var calls int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			atomic.AddInt32(&calls, 1)
			return nil, &StatusError{Provider: "mock", Code: 401, Body: "unauthorized"}
		},
	}
	client := NewClient(provider, ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second}, nil)

	_, err := client.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientExhaustsRetries(t *testing.T) {
	var calls int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			atomic.AddInt32(&calls, 1)
			return nil, &StatusError{Provider: "mock", Code: 500, Body: "boom"}
		},
	}
	client := NewClient(provider, ClientConfig{MaxConcurrent: 1, CallTimeout: time.Second, MaxAttempts: 2}, nil)

	_, err := client.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientGateBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				prev := atomic.LoadInt32(&maxInFlight)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return &ChatResponse{}, nil
		},
	}
	client := NewClient(provider, ClientConfig{MaxConcurrent: 2, CallTimeout: time.Second}, nil)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = client.Chat(context.Background(), ChatRequest{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&StatusError{Code: 429}))
	assert.True(t, IsTransient(&StatusError{Code: 502}))
	assert.False(t, IsTransient(&StatusError{Code: 400}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(fmt.Errorf("parse error")))
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := OpenCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	key := CacheKey("v1", "func main() {}", "go")

	_, hit, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Put(ctx, key, `[{"callee":"helper","confidence":0.9}]`, "test-model"))

	got, hit, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Contains(t, got, "helper")

	// Same inputs always produce the same key.
	assert.Equal(t, key, CacheKey("v1", "func main() {}", "go"))
	assert.NotEqual(t, key, CacheKey("v2", "func main() {}", "go"))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain array", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"braces in strings", `{"s": "close } brace"} trailing`, `{"s": "close } brace"}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
