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

// Package protocol defines the WebSocket event vocabulary and the closed
// enum types validated at the wire boundary. Unknown enum values are rejected
// here with ValidationError instead of failing deep inside business logic.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event names.
const (
	EventSendMessage        = "send_message"
	EventSubscribeAgent     = "subscribe_agent"
	EventUnsubscribeAgent   = "unsubscribe_agent"
	EventJoinCollaboration  = "join_collaboration"
	EventLeaveCollaboration = "leave_collaboration"
	EventHeartbeat          = "heartbeat"
)

// Outbound event names.
const (
	EventConnectionStatus     = "connection_status"
	EventSystemState          = "system_state"
	EventAgentStateUpdate     = "agent_state_update"
	EventAgentStatusUpdate    = "agent_status_update"
	EventMessageReceived      = "message_received"
	EventAgentMessageReceived = "agent_message_received"
	EventBroadcastMessage     = "broadcast_message"
	EventAgentMessage         = "agent_message"
	EventStreamStart          = "response_stream_start"
	EventStreamChunk          = "response_stream_chunk"
	EventStreamEnd            = "response_stream_end"
	EventStreamError          = "response_stream_error"
	EventCollaborationJoined  = "collaboration_joined"
	EventCollaborationLeft    = "collaboration_left"
	EventParticipantJoined    = "participant_joined"
	EventParticipantLeft      = "participant_left"
	EventHeartbeatResponse    = "heartbeat_response"
	EventError                = "error"
)

// AgentStatus is the displayed status of one persona.
type AgentStatus string

const (
	StatusIdle          AgentStatus = "idle"
	StatusThinking      AgentStatus = "thinking"
	StatusWorking       AgentStatus = "working"
	StatusCollaborating AgentStatus = "collaborating"
	StatusError         AgentStatus = "error"
)

// ParseAgentStatus validates a wire status string.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch AgentStatus(s) {
	case StatusIdle, StatusThinking, StatusWorking, StatusCollaborating, StatusError:
		return AgentStatus(s), nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", s)}
}

// MessageType classifies chat messages on the wire.
type MessageType string

const (
	TypeAgentMessage       MessageType = "agent_message"
	TypeAgentThinking      MessageType = "agent_thinking"
	TypeAgentCollaboration MessageType = "agent_collaboration"
	TypeAgentStatus        MessageType = "agent_status"
	TypeUserMessage        MessageType = "user_message"
	TypeSystemMessage      MessageType = "system_message"
	TypeError              MessageType = "error"
	TypeHeartbeat          MessageType = "heartbeat"
)

// ParseMessageType validates a wire message type string.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case TypeAgentMessage, TypeAgentThinking, TypeAgentCollaboration, TypeAgentStatus,
		TypeUserMessage, TypeSystemMessage, TypeError, TypeHeartbeat:
		return MessageType(s), nil
	}
	return "", &ValidationError{Field: "message_type", Message: fmt.Sprintf("invalid message type %q", s)}
}

// Envelope is the wire frame for every WebSocket event, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the chat message structure carried by message events.
type ChatMessage struct {
	MessageID   string                 `json:"message_id"`
	MessageType MessageType            `json:"message_type"`
	Timestamp   time.Time              `json:"timestamp"`
	SenderID    string                 `json:"sender_id"`
	SenderType  string                 `json:"sender_type"` // "user", "agent", "system"
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	RoomID      string                 `json:"room_id,omitempty"`
	RecipientID string                 `json:"recipient_id,omitempty"`
}

// SendMessagePayload is the body of a send_message event.
type SendMessagePayload struct {
	Content     string                 `json:"content"`
	RecipientID string                 `json:"recipient_id,omitempty"`
	RoomID      string                 `json:"room_id,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Stream      bool                   `json:"stream,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks required fields.
func (p *SendMessagePayload) Validate() error {
	if p.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}

// AgentSubscriptionPayload is the body of subscribe_agent / unsubscribe_agent.
type AgentSubscriptionPayload struct {
	AgentID string `json:"agent_id"`
}

// Validate checks required fields.
func (p *AgentSubscriptionPayload) Validate() error {
	if p.AgentID == "" {
		return &ValidationError{Field: "agent_id", Message: "agent_id is required"}
	}
	return nil
}

// CollaborationPayload is the body of join_collaboration / leave_collaboration.
type CollaborationPayload struct {
	RoomID string `json:"room_id,omitempty"`
}

// StreamStartPayload announces a new streaming session to its owner.
type StreamStartPayload struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamChunkPayload carries one content delta.
type StreamChunkPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Chunk     string `json:"chunk"`
	Sequence  int    `json:"sequence"`
}

// StreamEndPayload closes out a streaming session.
type StreamEndPayload struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamErrorPayload reports a failed streaming session to its owner.
type StreamErrorPayload struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionStatusPayload confirms a successful connection handshake.
type ConnectionStatusPayload struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemStatePayload is the initial snapshot sent to each new connection.
type SystemStatePayload struct {
	Agents           interface{} `json:"agents"`
	ActiveRooms      interface{} `json:"active_rooms"`
	ConnectedClients int         `json:"connected_clients"`
	Timestamp        time.Time   `json:"timestamp"`
}

// AgentStateUpdatePayload carries a full agent state snapshot to one
// subscriber.
type AgentStateUpdatePayload struct {
	AgentID   string      `json:"agent_id"`
	State     interface{} `json:"state"`
	Timestamp time.Time   `json:"timestamp"`
}

// HeartbeatResponsePayload answers a client heartbeat.
type HeartbeatResponsePayload struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// AgentStatusUpdatePayload is broadcast on every agent status transition.
type AgentStatusUpdatePayload struct {
	AgentID     string      `json:"agent_id"`
	Status      AgentStatus `json:"status"`
	CurrentTask string      `json:"current_task,omitempty"`
	Progress    float64     `json:"progress"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CollaborationJoinedPayload confirms a room join to the joining connection.
type CollaborationJoinedPayload struct {
	RoomID       string    `json:"room_id"`
	Participants []string  `json:"participants"`
	Timestamp    time.Time `json:"timestamp"`
}

// CollaborationLeftPayload confirms a room leave to the leaving connection.
type CollaborationLeftPayload struct {
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantPayload announces a participant joining or leaving a room.
type ParticipantPayload struct {
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is sent to the originating connection on request errors.
type ErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"error,omitempty"`
}
