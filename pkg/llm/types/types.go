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

// Package types contains shared LLM types used across the swarm backend.
package types

import (
	"context"
	"time"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message sender (system, user, assistant)
	Role string

	// Content is the message text
	Content string

	// AgentID identifies which agent persona produced or received this message.
	// Optional - empty for plain user messages.
	AgentID string

	// Timestamp when the message was created
	Timestamp time.Time
}

// Usage tracks upstream token usage.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatResponse represents a completed response from the upstream model.
type ChatResponse struct {
	// Content is the full text response
	Content string

	// Model is the model identifier that produced the response
	Model string

	// StopReason indicates why the model stopped (end_turn, max_tokens, ...)
	StopReason string

	// Usage tracks token usage
	Usage Usage

	// Metadata contains provider-specific metadata
	Metadata map[string]interface{}
}

// ChatProvider defines the interface for buffered chat-completion providers.
type ChatProvider interface {
	// Chat sends a conversation upstream and returns the buffered response.
	Chat(ctx context.Context, messages []Message, model string) (*ChatResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the default model identifier
	Model() string
}

// TokenCallback is called for each content delta during streaming.
// Implementations should be lightweight and non-blocking.
type TokenCallback func(delta string)

// StreamingChatProvider extends ChatProvider with token streaming support.
type StreamingChatProvider interface {
	ChatProvider

	// ChatStream streams content deltas as they are generated upstream.
	// Returns the complete ChatResponse after the stream finishes.
	// The callback is invoked synchronously, in upstream order, and only
	// with non-empty deltas.
	ChatStream(ctx context.Context, messages []Message, model string,
		tokenCallback TokenCallback) (*ChatResponse, error)
}

// SupportsStreaming checks if a provider supports token streaming.
func SupportsStreaming(provider ChatProvider) bool {
	_, ok := provider.(StreamingChatProvider)
	return ok
}
