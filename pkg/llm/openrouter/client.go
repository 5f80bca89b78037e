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

// Package openrouter implements the upstream completion client against
// OpenRouter's OpenAI-compatible chat completions API, in both buffered and
// SSE-streaming modes.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/llm"
	llmtypes "github.com/swarmlabs/swarm/pkg/llm/types"
)

// Client implements the ChatProvider interfaces against OpenRouter.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	referer     string
	title       string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
	logger      *zap.Logger
	catalogue   modelCatalogue
}

// Config holds configuration for the OpenRouter client.
type Config struct {
	APIKey            string
	Model             string        // Default: openai/gpt-4o
	Endpoint          string        // Default: https://openrouter.ai/api/v1/chat/completions
	Referer           string        // HTTP-Referer attribution header
	Title             string        // X-Title attribution header
	Timeout           time.Duration // Default: 120s (streams can run long)
	MaxTokens         int           // Default: 2000
	Temperature       float64       // Default: 0.7
	RateLimiterConfig llm.RateLimiterConfig
	Logger            *zap.Logger
}

// Default OpenRouter configuration values.
// Can be overridden via environment variables:
//   - SWARM_LLM_MODEL
//   - SWARM_LLM_ENDPOINT
const (
	DefaultModel       = "openai/gpt-4o"
	DefaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	DefaultReferer     = "https://swarm-agents.local"
	DefaultTitle       = "Swarm Multi-Agent System"
	DefaultTimeout     = 120 * time.Second
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.7
)

// NewClient creates a new OpenRouter client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		if envModel := os.Getenv("SWARM_LLM_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		if envEndpoint := os.Getenv("SWARM_LLM_ENDPOINT"); envEndpoint != "" {
			config.Endpoint = envEndpoint
		} else {
			config.Endpoint = DefaultEndpoint
		}
	}
	if config.Referer == "" {
		config.Referer = DefaultReferer
	}
	if config.Title == "" {
		config.Title = DefaultTitle
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(config.RateLimiterConfig)
	}

	return &Client{
		apiKey:      config.APIKey,
		model:       config.Model,
		endpoint:    config.Endpoint,
		referer:     config.Referer,
		title:       config.Title,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		rateLimiter: rateLimiter,
		logger:      config.Logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "openrouter"
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation upstream and returns the buffered response.
// The response is validated: missing choices or an empty message body surface
// as an UpstreamError with a machine-readable code.
func (c *Client) Chat(ctx context.Context, messages []llmtypes.Message, model string) (*llmtypes.ChatResponse, error) {
	if model == "" {
		model = c.model
	}

	req := &ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Code: CodeNoChoices, Message: "no choices in response"}
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return nil, &UpstreamError{Code: CodeEmptyContent, Message: "empty response content"}
	}

	return &llmtypes.ChatResponse{
		Content:    choice.Message.Content,
		Model:      model,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage: llmtypes.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Metadata: map[string]interface{}{
			"model":         resp.Model,
			"finish_reason": choice.FinishReason,
		},
	}, nil
}

// ChatStream implements token-by-token streaming. The tokenCallback is called
// synchronously for each non-empty content delta, in upstream order.
// Malformed individual frames are skipped with a logged warning; the stream
// terminates without error on the "[DONE]" marker.
func (c *Client) ChatStream(ctx context.Context, messages []llmtypes.Message, model string,
	tokenCallback llmtypes.TokenCallback) (*llmtypes.ChatResponse, error) {

	if model == "" {
		model = c.model
	}

	req := &ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &UpstreamError{Code: CodeDecode, Message: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "failed to create request", Err: err}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.doRequest(ctx, httpReq)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "HTTP request failed", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &UpstreamError{
			Code:       CodeHTTPStatus,
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var contentBuffer strings.Builder
	usage := llmtypes.Usage{}
	var finishReason string
	tokenCount := 0

	scanner := bufio.NewScanner(httpResp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		// SSE framing: ": comment" keep-alives and blank lines are skipped,
		// payload lines are "data: <json>" or "data: [DONE]".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		jsonData := strings.TrimPrefix(line, "data: ")
		if jsonData == "[DONE]" {
			break
		}

		var chunk ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(jsonData), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				contentBuffer.WriteString(choice.Delta.Content)
				tokenCount++
				if tokenCallback != nil {
					tokenCallback(choice.Delta.Content)
				}
			}

			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		// Usage arrives only in the final chunk, if at all.
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}

		select {
		case <-ctx.Done():
			return nil, &UpstreamError{Code: CodeNetwork, Message: "stream canceled", Err: ctx.Err()}
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "error reading stream", Err: err}
	}

	if usage.TotalTokens == 0 {
		usage.OutputTokens = tokenCount
		usage.TotalTokens = tokenCount
	}

	return &llmtypes.ChatResponse{
		Content:    contentBuffer.String(),
		Model:      model,
		StopReason: mapFinishReason(finishReason),
		Usage:      usage,
		Metadata: map[string]interface{}{
			"model":         model,
			"finish_reason": finishReason,
			"streaming":     true,
		},
	}, nil
}

// callAPI makes a buffered HTTP request to the chat completions endpoint.
func (c *Client) callAPI(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &UpstreamError{Code: CodeDecode, Message: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "failed to create request", Err: err}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.doRequest(ctx, httpReq)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "HTTP request failed", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &UpstreamError{Code: CodeNetwork, Message: "failed to read response", Err: err}
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &UpstreamError{Code: CodeDecode, Message: "failed to unmarshal response", Err: err}
	}

	if resp.Error != nil {
		return nil, &UpstreamError{
			Code:       CodeAPIError,
			StatusCode: httpResp.StatusCode,
			Message:    resp.Error.Message,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Code:       CodeHTTPStatus,
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	return &resp, nil
}

// doRequest sends an HTTP request, going through the rate limiter when enabled.
func (c *Client) doRequest(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	if c.rateLimiter == nil {
		return c.httpClient.Do(httpReq)
	}
	result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}

// convertMessages converts swarm messages to the wire format.
func convertMessages(messages []llmtypes.Message) []ChatMessage {
	apiMessages := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return apiMessages
}

// mapFinishReason maps the wire finish_reason to a stop_reason.
func mapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "content_filter":
		return "content_filter"
	default:
		return finishReason
	}
}

// Ensure Client implements the provider interfaces.
var _ llmtypes.ChatProvider = (*Client)(nil)
var _ llmtypes.StreamingChatProvider = (*Client)(nil)
