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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxAttempts bounds retries for a single logical call.
	DefaultMaxAttempts = 3

	// retryBackoffBase is the exponential backoff multiplier between attempts.
	retryBackoffBase = 1.5

	// retryBackoffInitial is the delay before the first retry.
	retryBackoffInitial = time.Second
)

// ClientConfig configures the shared client.
type ClientConfig struct {
	// MaxConcurrent is the process-wide cap on in-flight model calls.
	MaxConcurrent int

	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration

	// MaxAttempts bounds attempts per logical call (min 1).
	MaxAttempts int
}

// Client wraps a Provider with the process-wide semaphore, per-call timeout,
// and retry with exponential backoff on transient failures.
//
// All model-calling components share one Client so the semaphore is the
// single backpressure mechanism for the whole run.
type Client struct {
	provider    Provider
	gate        *semaphore.Weighted
	timeout     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewClient builds a Client around a provider.
func NewClient(provider Provider, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Client{
		provider:    provider,
		gate:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout:     cfg.CallTimeout,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Chat issues a chat-completion call through the gate with retry.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	var resp *ChatResponse
	err := c.withRetry(ctx, "chat", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Chat(callCtx, req)
		return callErr
	})
	return resp, err
}

// Embed issues an embedding call through the gate with retry.
func (c *Client) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	var resp *EmbedResponse
	err := c.withRetry(ctx, "embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Embed(callCtx, req)
		return callErr
	})
	return resp, err
}

func (c *Client) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := call(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// The outer context was cancelled; do not keep the slot busy.
			return ctx.Err()
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := time.Duration(float64(retryBackoffInitial) * math.Pow(retryBackoffBase, float64(attempt-1)))
		c.logger.Warn("llm.call.retry",
			"op", op,
			"provider", c.provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.maxAttempts, lastErr)
}

// IsTransient reports whether an error is worth retrying: rate limits,
// server-side failures, timeouts, and connection-level errors.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
