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

// Package orchestrator drives one streaming response per session: it runs the
// upstream streaming call, forwards deltas to the owning connection, and on
// failure issues exactly one buffered fallback call before giving up. Every
// path ends with a terminal mark and a scheduled eviction; no session can
// silently hang.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/hub"
	llmtypes "github.com/swarmlabs/swarm/pkg/llm/types"
	"github.com/swarmlabs/swarm/pkg/metrics"
	"github.com/swarmlabs/swarm/pkg/persona"
	"github.com/swarmlabs/swarm/pkg/protocol"
	"github.com/swarmlabs/swarm/pkg/session"
)

// errorResponseText is the user-facing message sent when both the streaming
// attempt and the buffered fallback fail.
const errorResponseText = "I apologize, but I encountered a technical issue while processing your request. Please try again."

// Transcript persists chat messages. Optional; a nil transcript disables
// persistence.
type Transcript interface {
	AppendMessage(ctx context.Context, msg protocol.ChatMessage) error
}

// Orchestrator owns the session state machine. It is the single writer of
// session state for the sessions it starts.
type Orchestrator struct {
	sessions   *session.Registry
	hub        *hub.Hub
	provider   llmtypes.ChatProvider
	personas   *persona.Registry
	transcript Transcript
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranscript enables persistence of completed agent responses.
func WithTranscript(t Transcript) Option {
	return func(o *Orchestrator) { o.transcript = t }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator.
func New(sessions *session.Registry, h *hub.Hub, provider llmtypes.ChatProvider,
	personas *persona.Registry, m *metrics.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		hub:      h,
		provider: provider,
		personas: personas,
		metrics:  m,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartSession creates a streaming session for one user request and launches
// its background run. The stream_start event is emitted and the agent flipped
// to thinking before this returns, so the client observes the start before any
// chunk. Returns the session id.
func (o *Orchestrator) StartSession(ctx context.Context, connID, agentID, model, text string) (string, error) {
	p, ok := o.personas.Get(agentID)
	if !ok {
		return "", &protocol.NotFoundError{Kind: "agent", ID: agentID}
	}
	if model == "" {
		model = o.provider.Model()
	}

	sessionID := o.sessions.Create(connID, agentID, model, text)
	o.metrics.SessionsCreated.Inc()

	o.hub.Deliver(connID, protocol.EventStreamStart, protocol.StreamStartPayload{
		SessionID: sessionID,
		AgentID:   agentID,
		Model:     model,
		Timestamp: time.Now().UTC(),
	})
	if err := o.hub.SetAgentStatus(agentID, protocol.StatusThinking, "responding", 0); err != nil {
		o.logger.Warn("status update failed", zap.String("agent_id", agentID), zap.Error(err))
	}

	messages := []llmtypes.Message{
		{Role: "system", Content: p.SystemPrompt},
		{Role: "user", Content: text, Timestamp: time.Now().UTC()},
	}
	go o.run(ctx, sessionID, connID, agentID, model, messages)

	return sessionID, nil
}

// run executes the session to a terminal state.
func (o *Orchestrator) run(ctx context.Context, sessionID, connID, agentID, model string, messages []llmtypes.Message) {
	start := time.Now()
	content, streamErr := o.stream(ctx, sessionID, connID, agentID, model, messages)
	o.metrics.UpstreamLatency.Observe(time.Since(start).Seconds())

	// The session may have been torn down by connection cleanup while the
	// stream was in flight. Nothing further may be emitted for it.
	if !o.sessions.IsLive(sessionID) {
		o.logger.Info("session ended during stream",
			zap.String("session_id", sessionID))
		return
	}

	if streamErr == nil && content != "" {
		o.finishSuccess(ctx, sessionID, connID, agentID, model, content, false)
		return
	}

	if streamErr != nil {
		o.logger.Warn("streaming attempt failed",
			zap.String("session_id", sessionID),
			zap.String("agent_id", agentID),
			zap.Error(streamErr))
	} else {
		o.logger.Warn("streaming attempt returned no content",
			zap.String("session_id", sessionID),
			zap.String("agent_id", agentID))
	}

	// Exactly one buffered retry. The streaming and buffered transports fail
	// independently upstream, so the alternate call shape is worth one shot.
	o.metrics.FallbackAttempts.Inc()
	resp, err := o.provider.Chat(ctx, messages, model)

	if !o.sessions.IsLive(sessionID) {
		return
	}

	if err == nil && resp != nil && resp.Content != "" {
		o.metrics.FallbackSuccesses.Inc()
		o.hub.Deliver(connID, protocol.EventAgentMessage, protocol.ChatMessage{
			MessageID:   uuid.NewString(),
			MessageType: protocol.TypeAgentMessage,
			Timestamp:   time.Now().UTC(),
			SenderID:    agentID,
			SenderType:  "agent",
			Content:     resp.Content,
			Metadata: map[string]interface{}{
				"session_id": sessionID,
				"model":      model,
				"fallback":   true,
			},
		})
		o.finishSuccess(ctx, sessionID, connID, agentID, model, resp.Content, true)
		return
	}

	if err != nil {
		o.logger.Error("fallback attempt failed",
			zap.String("session_id", sessionID),
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
	o.finishError(sessionID, connID, agentID, err)
}

// stream runs the upstream streaming call, forwarding each delta to the
// owning connection, and returns the accumulated content. A provider without
// streaming support returns no content and no error, which routes the request
// to the buffered fallback. Delta forwarding stops as soon as the session
// goes non-live; the in-flight upstream request is cancelled.
func (o *Orchestrator) stream(ctx context.Context, sessionID, connID, agentID, model string, messages []llmtypes.Message) (string, error) {
	streamer, ok := o.provider.(llmtypes.StreamingChatProvider)
	if !ok {
		return "", nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var accumulated string
	sequence := 0
	_, err := streamer.ChatStream(ctx, messages, model, func(delta string) {
		if !o.sessions.IsLive(sessionID) {
			cancel()
			return
		}
		accumulated += delta
		o.hub.Deliver(connID, protocol.EventStreamChunk, protocol.StreamChunkPayload{
			SessionID: sessionID,
			AgentID:   agentID,
			Chunk:     delta,
			Sequence:  sequence,
		})
		sequence++
		o.metrics.StreamChunks.Inc()
	})
	if err != nil {
		return accumulated, err
	}
	return accumulated, nil
}

// finishSuccess marks the session terminal, emits stream_end, returns the
// agent to idle, and persists the response.
func (o *Orchestrator) finishSuccess(ctx context.Context, sessionID, connID, agentID, model, content string, viaFallback bool) {
	o.sessions.MarkTerminal(sessionID, "")
	o.sessions.EvictAfterGrace(sessionID)
	o.metrics.SessionsCompleted.Inc()

	o.hub.Deliver(connID, protocol.EventStreamEnd, protocol.StreamEndPayload{
		SessionID: sessionID,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
	})
	if err := o.hub.SetAgentStatus(agentID, protocol.StatusIdle, "", 0); err != nil {
		o.logger.Warn("status update failed", zap.String("agent_id", agentID), zap.Error(err))
	}

	if o.transcript != nil {
		msg := protocol.ChatMessage{
			MessageID:   uuid.NewString(),
			MessageType: protocol.TypeAgentMessage,
			Timestamp:   time.Now().UTC(),
			SenderID:    agentID,
			SenderType:  "agent",
			Content:     content,
			Metadata: map[string]interface{}{
				"session_id": sessionID,
				"model":      model,
				"fallback":   viaFallback,
			},
		}
		if err := o.transcript.AppendMessage(ctx, msg); err != nil {
			o.logger.Warn("transcript append failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	o.logger.Info("session completed",
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
		zap.Bool("fallback", viaFallback))
}

// finishError marks the session terminal with the upstream error and sends the
// single user-facing error message.
func (o *Orchestrator) finishError(sessionID, connID, agentID string, cause error) {
	errText := "streaming and fallback both failed"
	if cause != nil {
		errText = fmt.Sprintf("streaming and fallback both failed: %v", cause)
	}
	o.sessions.MarkTerminal(sessionID, errText)
	o.sessions.EvictAfterGrace(sessionID)
	o.metrics.SessionsFailed.Inc()

	o.hub.Deliver(connID, protocol.EventStreamError, protocol.StreamErrorPayload{
		SessionID: sessionID,
		AgentID:   agentID,
		Message:   errorResponseText,
		Timestamp: time.Now().UTC(),
	})
	if err := o.hub.SetAgentStatus(agentID, protocol.StatusIdle, "", 0); err != nil {
		o.logger.Warn("status update failed", zap.String("agent_id", agentID), zap.Error(err))
	}

	o.logger.Error("session failed",
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
		zap.String("error", errText))
}
