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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/protocol"
)

// dispatch routes one inbound event. Called serially per connection from the
// read pump.
func (s *Server) dispatch(c *wsClient, env protocol.Envelope) {
	s.metrics.MessagesHandled.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case protocol.EventSendMessage:
		s.handleSendMessage(c, env.Data)
	case protocol.EventSubscribeAgent:
		s.handleSubscribeAgent(c, env.Data)
	case protocol.EventUnsubscribeAgent:
		s.handleUnsubscribeAgent(c, env.Data)
	case protocol.EventJoinCollaboration:
		s.handleJoinCollaboration(c, env.Data)
	case protocol.EventLeaveCollaboration:
		s.handleLeaveCollaboration(c, env.Data)
	case protocol.EventHeartbeat:
		c.Send(protocol.EventHeartbeatResponse, protocol.HeartbeatResponsePayload{
			Timestamp: time.Now().UTC(),
			Status:    "alive",
		})
	default:
		err := &protocol.ValidationError{Field: "event", Message: "unknown event " + env.Event}
		c.sendError("Unknown event", err)
	}
}

// handleSendMessage routes a user message: to a collaboration room, to one
// agent (optionally starting a streaming session), or broadcast to everyone.
func (s *Server) handleSendMessage(c *wsClient, data json.RawMessage) {
	var p protocol.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("Malformed send_message payload", err)
		return
	}
	if err := p.Validate(); err != nil {
		c.sendError("Invalid send_message payload", err)
		return
	}

	msg := protocol.ChatMessage{
		MessageID:   uuid.NewString(),
		MessageType: protocol.TypeUserMessage,
		Timestamp:   time.Now().UTC(),
		SenderID:    c.userID,
		SenderType:  "user",
		Content:     p.Content,
		Metadata:    p.Metadata,
		RoomID:      p.RoomID,
		RecipientID: p.RecipientID,
	}
	s.persist(msg)

	switch {
	case p.RoomID != "":
		s.hub.BroadcastRoom(p.RoomID, protocol.EventMessageReceived, msg)
		s.hub.CountMessage(p.RoomID)

	case p.RecipientID != "":
		if _, ok := s.hub.AgentState(p.RecipientID); !ok {
			c.sendError("Unknown agent", &protocol.NotFoundError{Kind: "agent", ID: p.RecipientID})
			return
		}
		s.hub.BroadcastAgentSubscribers(p.RecipientID, protocol.EventAgentMessageReceived, msg)

		if p.Stream {
			if _, err := s.orch.StartSession(s.baseCtx, c.id, p.RecipientID, p.Model, p.Content); err != nil {
				c.sendError("Failed to start streaming session", err)
			}
			return
		}
		if err := s.hub.SetAgentStatus(p.RecipientID, protocol.StatusThinking, "Processing user message", 0); err != nil {
			s.logger.Warn("status update failed", zap.String("agent_id", p.RecipientID), zap.Error(err))
		}

	default:
		s.hub.BroadcastAll(protocol.EventBroadcastMessage, msg)
	}
}

func (s *Server) handleSubscribeAgent(c *wsClient, data json.RawMessage) {
	var p protocol.AgentSubscriptionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("Malformed subscribe_agent payload", err)
		return
	}
	if err := p.Validate(); err != nil {
		c.sendError("Invalid subscribe_agent payload", err)
		return
	}

	snap, err := s.hub.SubscribeAgent(c.id, p.AgentID)
	if err != nil {
		c.sendError("Subscription failed", err)
		return
	}
	c.Send(protocol.EventAgentStateUpdate, protocol.AgentStateUpdatePayload{
		AgentID:   p.AgentID,
		State:     snap,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleUnsubscribeAgent(c *wsClient, data json.RawMessage) {
	var p protocol.AgentSubscriptionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("Malformed unsubscribe_agent payload", err)
		return
	}
	if err := p.Validate(); err != nil {
		c.sendError("Invalid unsubscribe_agent payload", err)
		return
	}
	s.hub.UnsubscribeAgent(c.id, p.AgentID)
}

func (s *Server) handleJoinCollaboration(c *wsClient, data json.RawMessage) {
	var p protocol.CollaborationPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			c.sendError("Malformed join_collaboration payload", err)
			return
		}
	}

	if _, err := s.hub.JoinRoom(c.id, p.RoomID); err != nil {
		c.sendError("Failed to join room", err)
		return
	}
	s.metrics.Rooms.Set(float64(len(s.hub.Rooms())))
}

func (s *Server) handleLeaveCollaboration(c *wsClient, data json.RawMessage) {
	var p protocol.CollaborationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("Malformed leave_collaboration payload", err)
		return
	}
	if p.RoomID == "" {
		c.sendError("Invalid leave_collaboration payload",
			&protocol.ValidationError{Field: "room_id", Message: "room_id is required"})
		return
	}

	if err := s.hub.LeaveRoom(c.id, p.RoomID); err != nil {
		c.sendError("Failed to leave room", err)
		return
	}
	s.metrics.Rooms.Set(float64(len(s.hub.Rooms())))
}

// persist writes a message to the transcript store when one is configured.
func (s *Server) persist(msg protocol.ChatMessage) {
	if s.transcript == nil {
		return
	}
	if err := s.transcript.AppendMessage(s.baseCtx, msg); err != nil {
		s.logger.Warn("transcript append failed",
			zap.String("message_id", msg.MessageID), zap.Error(err))
	}
}
