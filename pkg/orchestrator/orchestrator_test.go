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
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmlabs/swarm/pkg/hub"
	llmtypes "github.com/swarmlabs/swarm/pkg/llm/types"
	"github.com/swarmlabs/swarm/pkg/metrics"
	"github.com/swarmlabs/swarm/pkg/persona"
	"github.com/swarmlabs/swarm/pkg/protocol"
	"github.com/swarmlabs/swarm/pkg/session"
)

type recordedEvent struct {
	event   string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Send(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, payload})
}

func (r *recorder) byName(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(event string) int {
	return len(r.byName(event))
}

// fakeProvider implements StreamingChatProvider with scripted behavior.
type fakeProvider struct {
	deltas    []string
	streamErr error

	chatResp *llmtypes.ChatResponse
	chatErr  error

	chatCalls   atomic.Int32
	streamCalls atomic.Int32

	// gate, when non-nil, is received from between deltas so tests can
	// interleave other operations with the stream.
	gate chan struct{}
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-default-model" }

func (f *fakeProvider) Chat(ctx context.Context, messages []llmtypes.Message, model string) (*llmtypes.ChatResponse, error) {
	f.chatCalls.Add(1)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, messages []llmtypes.Message, model string,
	cb llmtypes.TokenCallback) (*llmtypes.ChatResponse, error) {
	f.streamCalls.Add(1)
	var content string
	for i, d := range f.deltas {
		if f.gate != nil && i > 0 {
			<-f.gate
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cb(d)
		content += d
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &llmtypes.ChatResponse{Content: content, Model: model}, nil
}

// bufferedProvider implements only the buffered interface.
type bufferedProvider struct {
	chatResp  *llmtypes.ChatResponse
	chatErr   error
	chatCalls atomic.Int32
}

func (b *bufferedProvider) Name() string  { return "buffered" }
func (b *bufferedProvider) Model() string { return "buffered-model" }

func (b *bufferedProvider) Chat(ctx context.Context, messages []llmtypes.Message, model string) (*llmtypes.ChatResponse, error) {
	b.chatCalls.Add(1)
	if b.chatErr != nil {
		return nil, b.chatErr
	}
	return b.chatResp, nil
}

type fixture struct {
	sessions *session.Registry
	hub      *hub.Hub
	orch     *Orchestrator
	rec      *recorder
}

func newFixture(t *testing.T, provider llmtypes.ChatProvider, opts ...Option) *fixture {
	t.Helper()
	sessions := session.NewRegistry(session.WithGracePeriod(time.Hour))
	t.Cleanup(sessions.Close)

	h := hub.New(persona.NewRegistry(), nil)
	rec := &recorder{}
	h.Register("conn-1", "user-1", rec)

	orch := New(sessions, h, provider, persona.NewRegistry(), metrics.New(), opts...)
	return &fixture{sessions: sessions, hub: h, orch: orch, rec: rec}
}

func (f *fixture) waitTerminal(t *testing.T, sessionID string) session.Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return !f.sessions.IsLive(sessionID)
	}, 2*time.Second, 5*time.Millisecond)
	s, ok := f.sessions.Get(sessionID)
	require.True(t, ok)
	return s
}

func TestStreamingSuccess(t *testing.T) {
	provider := &fakeProvider{deltas: []string{"Dear ", "team, ", "thank you."}}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "email", "test-model", "draft a thank-you note")
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Empty(t, s.Err)

	require.Eventually(t, func() bool {
		return f.rec.count(protocol.EventStreamEnd) == 1
	}, 2*time.Second, 5*time.Millisecond)

	starts := f.rec.byName(protocol.EventStreamStart)
	require.Len(t, starts, 1)
	start := starts[0].payload.(protocol.StreamStartPayload)
	assert.Equal(t, id, start.SessionID)
	assert.Equal(t, "email", start.AgentID)
	assert.Equal(t, "test-model", start.Model)

	chunks := f.rec.byName(protocol.EventStreamChunk)
	require.Len(t, chunks, 3)
	var transcript string
	for i, c := range chunks {
		payload := c.payload.(protocol.StreamChunkPayload)
		assert.Equal(t, i, payload.Sequence)
		transcript += payload.Chunk
	}
	assert.Equal(t, "Dear team, thank you.", transcript)

	// No fallback, no error.
	assert.Equal(t, int32(0), provider.chatCalls.Load())
	assert.Zero(t, f.rec.count(protocol.EventStreamError))

	// Agent went thinking then back to idle.
	updates := f.rec.byName(protocol.EventAgentStatusUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, protocol.StatusThinking, updates[0].payload.(protocol.AgentStatusUpdatePayload).Status)
	assert.Equal(t, protocol.StatusIdle, updates[1].payload.(protocol.AgentStatusUpdatePayload).Status)
}

func TestUnknownAgentRejected(t *testing.T) {
	f := newFixture(t, &fakeProvider{})

	_, err := f.orch.StartSession(context.Background(), "conn-1", "ghost", "", "hi")
	require.Error(t, err)
	assert.True(t, protocol.IsNotFound(err))
	assert.Equal(t, 0, f.sessions.Active())
}

func TestDefaultModelFromProvider(t *testing.T) {
	provider := &fakeProvider{deltas: []string{"ok"}}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "general", "", "hi")
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Equal(t, "fake-default-model", s.Model)
}

func TestEmptyStreamFallsBack(t *testing.T) {
	provider := &fakeProvider{
		deltas:   nil,
		chatResp: &llmtypes.ChatResponse{Content: "buffered answer"},
	}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "code", "m", "hi")
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Empty(t, s.Err)
	assert.Equal(t, int32(1), provider.chatCalls.Load())

	require.Eventually(t, func() bool {
		return f.rec.count(protocol.EventAgentMessage) == 1
	}, 2*time.Second, 5*time.Millisecond)

	msgs := f.rec.byName(protocol.EventAgentMessage)
	payload := msgs[0].payload.(protocol.ChatMessage)
	assert.Equal(t, "buffered answer", payload.Content)
	assert.Equal(t, "code", payload.SenderID)
	assert.Equal(t, true, payload.Metadata["fallback"])

	assert.Zero(t, f.rec.count(protocol.EventStreamChunk))
	assert.Zero(t, f.rec.count(protocol.EventStreamError))
}

func TestStreamErrorFallsBack(t *testing.T) {
	provider := &fakeProvider{
		deltas:    []string{"partial "},
		streamErr: errors.New("upstream hiccup"),
		chatResp:  &llmtypes.ChatResponse{Content: "recovered"},
	}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "debug", "m", "hi")
	require.NoError(t, err)

	f.waitTerminal(t, id)
	assert.Equal(t, int32(1), provider.chatCalls.Load())

	require.Eventually(t, func() bool {
		return f.rec.count(protocol.EventAgentMessage) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBothAttemptsFail(t *testing.T) {
	provider := &fakeProvider{
		streamErr: errors.New("stream down"),
		chatErr:   errors.New("buffered down too"),
	}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "email", "m", "hi")
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Contains(t, s.Err, "streaming and fallback both failed")
	assert.Equal(t, int32(1), provider.chatCalls.Load(), "exactly one fallback attempt")

	require.Eventually(t, func() bool {
		return f.rec.count(protocol.EventStreamError) == 1
	}, 2*time.Second, 5*time.Millisecond)

	payload := f.rec.byName(protocol.EventStreamError)[0].payload.(protocol.StreamErrorPayload)
	assert.Equal(t, errorResponseText, payload.Message)

	// Agent returned to idle even on failure.
	updates := f.rec.byName(protocol.EventAgentStatusUpdate)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1].payload.(protocol.AgentStatusUpdatePayload)
	assert.Equal(t, protocol.StatusIdle, last.Status)
}

func TestBufferedOnlyProvider(t *testing.T) {
	provider := &bufferedProvider{
		chatResp: &llmtypes.ChatResponse{Content: "plain answer"},
	}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "general", "m", "hi")
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Empty(t, s.Err)
	assert.Equal(t, int32(1), provider.chatCalls.Load())
}

func TestDisconnectStopsStream(t *testing.T) {
	provider := &fakeProvider{
		deltas: []string{"one", "two", "three"},
		gate:   make(chan struct{}),
	}
	f := newFixture(t, provider)

	id, err := f.orch.StartSession(context.Background(), "conn-1", "email", "m", "hi")
	require.NoError(t, err)

	// Wait for the first chunk, then tear the connection down mid-stream.
	require.Eventually(t, func() bool {
		return f.rec.count(protocol.EventStreamChunk) == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.sessions.CleanupForConnection("conn-1")
	close(provider.gate)

	require.Eventually(t, func() bool {
		s, ok := f.sessions.Get(id)
		return ok && !s.Live
	}, 2*time.Second, 5*time.Millisecond)

	// Give the run goroutine time to finish, then confirm silence.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.rec.count(protocol.EventStreamChunk))
	assert.Zero(t, f.rec.count(protocol.EventStreamEnd))
	assert.Zero(t, f.rec.count(protocol.EventStreamError))
	assert.Equal(t, int32(0), provider.chatCalls.Load(), "dead session must not trigger fallback")

	s, ok := f.sessions.Get(id)
	require.True(t, ok)
	assert.Equal(t, session.ReasonConnectionClosed, s.Err)
}

type memTranscript struct {
	mu   sync.Mutex
	msgs []protocol.ChatMessage
}

func (m *memTranscript) AppendMessage(_ context.Context, msg protocol.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func TestTranscriptPersistence(t *testing.T) {
	provider := &fakeProvider{deltas: []string{"Hel", "lo, ", "world"}}
	store := &memTranscript{}
	f := newFixture(t, provider, WithTranscript(store))

	id, err := f.orch.StartSession(context.Background(), "conn-1", "general", "m", "hi")
	require.NoError(t, err)
	f.waitTerminal(t, id)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.msgs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "Hello, world", store.msgs[0].Content)
	assert.Equal(t, "general", store.msgs[0].SenderID)
	assert.Equal(t, "agent", store.msgs[0].SenderType)
}
