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
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/swarmlabs/swarm/pkg/llm/types"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "test-key"})

	assert.Equal(t, "openrouter", c.Name())
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, DefaultMaxTokens, c.maxTokens)
	assert.Equal(t, DefaultTemperature, c.temperature)
}

func TestNewClientCustomConfig(t *testing.T) {
	c := NewClient(Config{
		APIKey:      "custom-key",
		Model:       "anthropic/claude-sonnet-4",
		Endpoint:    "https://custom.api.com/v1/chat/completions",
		MaxTokens:   512,
		Temperature: 0.2,
		Timeout:     30 * time.Second,
	})

	assert.Equal(t, "anthropic/claude-sonnet-4", c.Model())
	assert.Equal(t, "https://custom.api.com/v1/chat/completions", c.endpoint)
	assert.Equal(t, 512, c.maxTokens)
	assert.Equal(t, 0.2, c.temperature)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:   "test-key",
		Model:    "test-model",
		Endpoint: server.URL + "/chat/completions",
	})
}

func TestChat(t *testing.T) {
	var gotReq ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		require.NotEmpty(t, r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := ChatCompletionResponse{
			Model: "test-model",
			Choices: []ChatCompletionChoice{{
				Message:      ChatMessage{Role: "assistant", Content: "Hello, world"},
				FinishReason: "stop",
			}},
			Usage: ChatCompletionUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	resp, err := c.Chat(context.Background(), []llmtypes.Message{
		{Role: "system", Content: "You are a test agent."},
		{Role: "user", Content: "hi"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "Hello, world", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 13, resp.Usage.TotalTokens)

	assert.Equal(t, "test-model", gotReq.Model)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestChatModelOverride(t *testing.T) {
	var gotReq ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := ChatCompletionResponse{
			Choices: []ChatCompletionChoice{{
				Message: ChatMessage{Role: "assistant", Content: "ok"},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	_, err := c.Chat(context.Background(), []llmtypes.Message{{Role: "user", Content: "hi"}}, "openai/gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", gotReq.Model)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode string
	}{
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(ChatCompletionResponse{})
			},
			wantCode: CodeNoChoices,
		},
		{
			name: "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
					Choices: []ChatCompletionChoice{{Message: ChatMessage{Role: "assistant"}}},
				})
			},
			wantCode: CodeEmptyContent,
		},
		{
			name: "api error object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
					Error: &APIError{Message: "invalid model", Type: "invalid_request_error"},
				})
			},
			wantCode: CodeAPIError,
		},
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"detail":"upstream exploded"}`))
			},
			wantCode: CodeHTTPStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Chat(context.Background(), []llmtypes.Message{{Role: "user", Content: "hi"}}, "")
			require.Error(t, err)

			var ue *UpstreamError
			require.True(t, errors.As(err, &ue), "expected UpstreamError, got %T", err)
			assert.Equal(t, tt.wantCode, ue.Code)
		})
	}
}

func streamHandler(frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "%s\n", frame)
			flusher.Flush()
		}
	}
}

func chunkFrame(content string) string {
	chunk := ChatCompletionStreamChunk{
		Object: "chat.completion.chunk",
		Choices: []ChatCompletionStreamChoice{{
			Delta: ChatMessageDelta{Content: content},
		}},
	}
	data, _ := json.Marshal(chunk)
	return "data: " + string(data)
}

func TestChatStream(t *testing.T) {
	c := newTestClient(t, streamHandler([]string{
		": keep-alive comment",
		chunkFrame("Hel"),
		"",
		chunkFrame("lo, "),
		chunkFrame("world"),
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		"data: [DONE]",
	}))

	var deltas []string
	resp, err := c.ChatStream(context.Background(), []llmtypes.Message{{Role: "user", Content: "hi"}}, "",
		func(delta string) { deltas = append(deltas, delta) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo, ", "world"}, deltas)
	assert.Equal(t, "Hello, world", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, true, resp.Metadata["streaming"])
}

func TestChatStreamSkipsMalformedFrames(t *testing.T) {
	c := newTestClient(t, streamHandler([]string{
		chunkFrame("good "),
		"data: {not json at all",
		chunkFrame("content"),
		"data: [DONE]",
	}))

	var deltas []string
	resp, err := c.ChatStream(context.Background(), nil, "",
		func(delta string) { deltas = append(deltas, delta) })
	require.NoError(t, err)

	assert.Equal(t, []string{"good ", "content"}, deltas)
	assert.Equal(t, "good content", resp.Content)
}

func TestChatStreamEmpty(t *testing.T) {
	c := newTestClient(t, streamHandler([]string{"data: [DONE]"}))

	called := false
	resp, err := c.ChatStream(context.Background(), nil, "", func(string) { called = true })
	require.NoError(t, err)

	assert.False(t, called)
	assert.Empty(t, resp.Content)
}

func TestChatStreamHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.ChatStream(context.Background(), nil, "", nil)
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, CodeHTTPStatus, ue.Code)
	assert.Equal(t, http.StatusBadGateway, ue.StatusCode)
}

func TestModelsCached(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		fetches++
		_ = json.NewEncoder(w).Encode(ModelListResponse{Data: []ModelInfo{
			{ID: "openai/gpt-4o", Name: "GPT-4o"},
			{ID: "test-model", Name: "Test Model"},
		}})
	}))
	t.Cleanup(server.Close)

	c := NewClient(Config{APIKey: "k", Endpoint: server.URL + "/chat/completions"})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	// Second call must hit the cache.
	_, err = c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)

	ok, err := c.ModelAvailable(context.Background(), "test-model")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ModelAvailable(context.Background(), "missing/model")
	require.NoError(t, err)
	assert.False(t, ok)
}
