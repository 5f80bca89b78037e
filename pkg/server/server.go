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

// Package server exposes the swarm backend over HTTP: the WebSocket endpoint
// that carries the event protocol, the REST status surface, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/hub"
	"github.com/swarmlabs/swarm/pkg/llm/openrouter"
	"github.com/swarmlabs/swarm/pkg/metrics"
	"github.com/swarmlabs/swarm/pkg/orchestrator"
	"github.com/swarmlabs/swarm/pkg/persona"
	"github.com/swarmlabs/swarm/pkg/protocol"
	"github.com/swarmlabs/swarm/pkg/session"
)

// Config holds server settings.
type Config struct {
	Addr string
}

// TranscriptStore persists and reads back chat messages. Optional.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, msg protocol.ChatMessage) error
	RecentMessages(ctx context.Context, limit int) ([]protocol.ChatMessage, error)
	RoomMessages(ctx context.Context, roomID string, limit int) ([]protocol.ChatMessage, error)
}

// ModelSource lists the models available upstream. Optional.
type ModelSource interface {
	Models(ctx context.Context) ([]openrouter.ModelInfo, error)
}

// Options carries the server's collaborators.
type Options struct {
	Hub          *hub.Hub
	Sessions     *session.Registry
	Orchestrator *orchestrator.Orchestrator
	Personas     *persona.Registry
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Transcript   TranscriptStore
	Models       ModelSource
}

// Server ties the WebSocket transport and REST surface to the registries.
type Server struct {
	cfg        Config
	hub        *hub.Hub
	sessions   *session.Registry
	orch       *orchestrator.Orchestrator
	personas   *persona.Registry
	metrics    *metrics.Metrics
	transcript TranscriptStore
	models     ModelSource
	logger     *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	// baseCtx outlives individual requests; streaming sessions hang off it so
	// they survive the request goroutine and stop on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a server.
func New(cfg Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		hub:        opts.Hub,
		sessions:   opts.Sessions,
		orch:       opts.Orchestrator,
		personas:   opts.Personas,
		metrics:    opts.Metrics,
		transcript: opts.Transcript,
		models:     opts.Models,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser frontend is served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("GET /api/ws/health", s.handleWSHealth)
	mux.HandleFunc("GET /api/ws/agents/status", s.handleAgentStatuses)
	mux.HandleFunc("PUT /api/ws/agents/{agent_id}/status", s.handleUpdateAgentStatus)
	mux.HandleFunc("POST /api/ws/agents/{agent_id}/message", s.handleSendAgentMessage)
	mux.HandleFunc("GET /api/ws/rooms", s.handleRooms)
	mux.HandleFunc("GET /api/ws/stats", s.handleStats)
	mux.HandleFunc("GET /api/ws/messages", s.handleMessages)

	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/models", s.handleModels)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, cancels in-flight streaming sessions,
// and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// handleWS upgrades the connection and runs the handshake: register, send the
// system snapshot, confirm the connection, then start the pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous_" + connID[:8]
	}

	client := newWSClient(connID, userID, conn, s)
	s.hub.Register(connID, userID, client)
	s.metrics.Connections.Set(float64(s.hub.ConnectionCount()))

	go client.writePump()

	now := time.Now().UTC()
	client.Send(protocol.EventSystemState, protocol.SystemStatePayload{
		Agents:           s.hub.AgentStates(),
		ActiveRooms:      s.hub.Rooms(),
		ConnectedClients: s.hub.ConnectionCount(),
		Timestamp:        now,
	})
	client.Send(protocol.EventConnectionStatus, protocol.ConnectionStatusPayload{
		Status:    "connected",
		ClientID:  connID,
		UserID:    userID,
		Timestamp: now,
	})

	client.readPump()
}

// onDisconnect tears down everything a connection owned.
func (s *Server) onDisconnect(c *wsClient) {
	s.sessions.CleanupForConnection(c.id)
	s.hub.Unregister(c.id)
	s.metrics.Connections.Set(float64(s.hub.ConnectionCount()))
	s.metrics.Rooms.Set(float64(len(s.hub.Rooms())))
}
