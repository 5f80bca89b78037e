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

// Package session tracks in-flight and recently-completed streaming response
// sessions. All mutation of a session goes through the Registry, which
// serializes concurrent writers; a session's liveness only ever transitions
// live -> terminal.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReasonConnectionClosed is the terminal error recorded when the owning
// connection disconnects before the stream finishes.
const ReasonConnectionClosed = "connection closed"

// DefaultGracePeriod is how long a terminal session stays visible in the
// registry before eviction, for diagnostics.
const DefaultGracePeriod = 30 * time.Second

// Session represents one in-flight or recently-completed streaming response.
type Session struct {
	// ID is the opaque unique session identifier.
	ID string

	// ConnectionID identifies which client connection receives output.
	ConnectionID string

	// AgentID is the persona active for this session.
	AgentID string

	// Model is the upstream model to invoke.
	Model string

	// OriginalText is the user's request text, retained so a buffered
	// fallback call can be re-issued without asking the client to resend.
	OriginalText string

	// Live is true while output may still be produced.
	Live bool

	CreatedAt   time.Time
	CompletedAt time.Time

	// Err holds the terminal error description, if any.
	Err string
}

type entry struct {
	session Session
	evictAt *time.Timer
}

// Registry is an in-memory map of streaming sessions. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	grace   time.Duration
	logger  *zap.Logger
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithGracePeriod overrides the post-termination eviction delay.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Registry) { r.grace = d }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		grace:   DefaultGracePeriod,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new live session and returns its id. It never blocks on
// upstream work.
func (r *Registry) Create(connectionID, agentID, model, originalText string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[id] = &entry{session: Session{
		ID:           id,
		ConnectionID: connectionID,
		AgentID:      agentID,
		Model:        model,
		OriginalText: originalText,
		Live:         true,
		CreatedAt:    time.Now().UTC(),
	}}

	r.logger.Debug("session created",
		zap.String("session_id", id),
		zap.String("connection_id", connectionID),
		zap.String("agent_id", agentID),
		zap.String("model", model))
	return id
}

// Get returns a copy of the session, or false if it does not exist.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// IsLive reports whether the session exists and may still produce output.
func (r *Registry) IsLive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	return ok && e.session.Live
}

// MarkTerminal transitions a session to its terminal state. Idempotent:
// liveness only ever flips live -> terminal, the completion timestamp is
// recorded once, and the last caller wins on the error text.
func (r *Registry) MarkTerminal(sessionID string, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markTerminalLocked(sessionID, errText)
}

func (r *Registry) markTerminalLocked(sessionID string, errText string) {
	e, ok := r.entries[sessionID]
	if !ok {
		return
	}

	if e.session.Live {
		e.session.Live = false
		e.session.CompletedAt = time.Now().UTC()
	}
	if errText != "" {
		e.session.Err = errText
	}

	r.logger.Debug("session terminal",
		zap.String("session_id", sessionID),
		zap.String("error", e.session.Err))
}

// EvictAfterGrace removes the session after the registry's grace period,
// giving observers time to inspect the final state. Scheduling twice is a
// no-op.
func (r *Registry) EvictAfterGrace(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictAfterGraceLocked(sessionID)
}

func (r *Registry) evictAfterGraceLocked(sessionID string) {
	e, ok := r.entries[sessionID]
	if !ok || e.evictAt != nil || r.closed {
		return
	}
	e.evictAt = time.AfterFunc(r.grace, func() {
		r.Evict(sessionID)
	})
}

// Evict removes the session immediately.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		if e.evictAt != nil {
			e.evictAt.Stop()
		}
		delete(r.entries, sessionID)
	}
}

// CleanupForConnection marks every live session owned by the connection as
// terminal with ReasonConnectionClosed and schedules their eviction.
func (r *Registry) CleanupForConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		if e.session.ConnectionID != connectionID || !e.session.Live {
			continue
		}
		r.markTerminalLocked(id, ReasonConnectionClosed)
		r.evictAfterGraceLocked(id)
	}
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.session.Live {
			n++
		}
	}
	return n
}

// Close stops all pending eviction timers. Sessions still in the registry are
// left in place; the registry must not be used after Close.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, e := range r.entries {
		if e.evictAt != nil {
			e.evictAt.Stop()
		}
	}
}
