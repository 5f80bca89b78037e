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
package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendQueueSize  = 256
)

// wsClient is one WebSocket attachment. Its send channel decouples event
// producers (orchestrator goroutines, broadcasts) from the socket: writes go
// through a single writer goroutine, and a full queue drops the event rather
// than blocking the producer.
type wsClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	server *Server
	logger *zap.Logger

	send      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(id, userID string, conn *websocket.Conn, s *Server) *wsClient {
	return &wsClient{
		id:     id,
		userID: userID,
		conn:   conn,
		server: s,
		logger: s.logger.With(zap.String("connection_id", id), zap.String("user_id", userID)),
		send:   make(chan protocol.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Send implements hub.Sender. Never blocks.
func (c *wsClient) Send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to encode outbound payload",
			zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case c.send <- protocol.Envelope{Event: event, Data: data}:
	case <-c.done:
	default:
		c.logger.Warn("send queue full, dropping event", zap.String("event", event))
	}
}

// close shuts the client down once. Safe to call from either pump.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump owns all writes to the socket, including keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump reads inbound envelopes and dispatches them one at a time, so
// events from a single connection are handled serially.
func (c *wsClient) readPump() {
	defer func() {
		c.server.onDisconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn("skipping malformed inbound frame", zap.Error(err))
			c.sendError("Malformed event frame", err)
			continue
		}
		c.server.dispatch(c, env)
	}
}

// sendError reports a request error to this connection.
func (c *wsClient) sendError(message string, err error) {
	payload := protocol.ErrorPayload{Message: message}
	if err != nil {
		payload.Detail = err.Error()
	}
	c.Send(protocol.EventError, payload)
}
