// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides shared client-side plumbing for upstream model calls.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig configures the upstream request rate limiter.
type RateLimiterConfig struct {
	// Enabled enables rate limiting.
	Enabled bool

	// RequestsPerSecond is the sustained request rate allowed across all sessions.
	// Default: 5.
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed. Default: 10.
	BurstCapacity int

	// MaxRetries is the maximum number of retries on 429 throttling. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff for throttling retries, doubled each
	// attempt. Default: 1s.
	RetryBackoff time.Duration

	// Logger for rate limiter events.
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns defaults suitable for OpenRouter.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 5.0,
		BurstCapacity:     10,
		MaxRetries:        3,
		RetryBackoff:      time.Second,
		Logger:            zap.NewNop(),
	}
}

// RateLimiter implements token-bucket rate limiting with throttling retry for
// upstream chat-completion requests. Safe for concurrent use.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5.0
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = 10
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.BurstCapacity),
		maxTokens:  float64(config.BurstCapacity),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Do executes call under the rate limit, retrying with exponential backoff
// when the upstream reports throttling.
func (rl *RateLimiter) Do(ctx context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	if !rl.config.Enabled {
		return call(ctx)
	}

	if err := rl.wait(ctx); err != nil {
		return nil, err
	}

	backoff := rl.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		result, err := call(ctx)
		if err == nil || !isThrottlingError(err) {
			return result, err
		}

		if attempt >= rl.config.MaxRetries {
			return nil, fmt.Errorf("upstream request throttled after %d attempts: %w", attempt+1, err)
		}

		rl.config.Logger.Warn("upstream request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rl.config.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// wait blocks until a token is available or the context is done.
func (rl *RateLimiter) wait(ctx context.Context) error {
	for {
		if rl.acquireToken() {
			return nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// acquireToken attempts to take a token from the bucket.
func (rl *RateLimiter) acquireToken() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// isThrottlingError checks if an error looks like an HTTP 429 / throttle.
func isThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "TooManyRequests") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "throttle")
}
