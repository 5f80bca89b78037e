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

// Package hub tracks client connections, collaboration rooms, and per-agent
// display state, and targets outbound events at them. All registries live
// behind one mutex; callers never reach into the maps directly.
package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/persona"
	"github.com/swarmlabs/swarm/pkg/protocol"
)

// Sender delivers one outbound event to a single client connection.
// Implementations must be non-blocking; a send to a slow or closed client is
// dropped, not waited on.
type Sender interface {
	Send(event string, payload interface{})
}

// connection is one logical client attachment.
type connection struct {
	id          string
	userID      string
	connectedAt time.Time
	rooms       map[string]struct{}
	agentSubs   map[string]struct{}
	sender      Sender
}

// room is a named collaboration channel, created lazily on first join and
// deleted when its last member leaves.
type room struct {
	id           string
	createdAt    time.Time
	members      map[string]struct{} // connection ids
	agents       map[string]struct{}
	messageCount int
}

// Hub is the connection/room registry and agent status broadcaster.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*connection
	rooms  map[string]*room
	agents map[string]*agentState
	logger *zap.Logger
}

// New creates a hub seeded with an agent state per persona.
func New(personas *persona.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		conns:  make(map[string]*connection),
		rooms:  make(map[string]*room),
		agents: make(map[string]*agentState),
		logger: logger,
	}
	for _, p := range personas.List() {
		h.agents[p.ID] = &agentState{
			agentID:      p.ID,
			agentName:    p.Name,
			status:       protocol.StatusIdle,
			lastActivity: time.Now().UTC(),
			subscribers:  make(map[string]string),
		}
	}
	return h
}

// Register attaches a new connection.
func (h *Hub) Register(connID, userID string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[connID] = &connection{
		id:          connID,
		userID:      userID,
		connectedAt: time.Now().UTC(),
		rooms:       make(map[string]struct{}),
		agentSubs:   make(map[string]struct{}),
		sender:      sender,
	}
	h.logger.Info("client connected",
		zap.String("connection_id", connID),
		zap.String("user_id", userID))
}

// Unregister detaches a connection: it leaves every room it joined (notifying
// the remaining participants, deleting rooms that become empty) and is removed
// from every agent subscriber set.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}

	for roomID := range c.rooms {
		h.leaveRoomLocked(c, roomID, false)
	}
	for agentID := range c.agentSubs {
		if a, ok := h.agents[agentID]; ok {
			delete(a.subscribers, connID)
		}
	}
	delete(h.conns, connID)

	h.logger.Info("client disconnected",
		zap.String("connection_id", connID),
		zap.String("user_id", c.userID))
}

// UserID returns the user associated with a connection.
func (h *Hub) UserID(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return "", false
	}
	return c.userID, true
}

// JoinRoom adds the connection to a room, creating it lazily. An empty roomID
// generates a fresh one. Joining a room twice is a no-op. The joining
// connection receives collaboration_joined; other members receive
// participant_joined.
func (h *Hub) JoinRoom(connID, roomID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return "", &protocol.NotFoundError{Kind: "connection", ID: connID}
	}

	if roomID == "" {
		roomID = "collab_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			id:        roomID,
			createdAt: time.Now().UTC(),
			members:   make(map[string]struct{}),
			agents:    make(map[string]struct{}),
		}
		h.rooms[roomID] = r
	}

	_, already := r.members[connID]
	r.members[connID] = struct{}{}
	c.rooms[roomID] = struct{}{}

	now := time.Now().UTC()
	c.sender.Send(protocol.EventCollaborationJoined, protocol.CollaborationJoinedPayload{
		RoomID:       roomID,
		Participants: h.participantsLocked(r),
		Timestamp:    now,
	})
	if !already {
		for memberID := range r.members {
			if memberID == connID {
				continue
			}
			if m, ok := h.conns[memberID]; ok {
				m.sender.Send(protocol.EventParticipantJoined, protocol.ParticipantPayload{
					UserID:    c.userID,
					RoomID:    roomID,
					Timestamp: now,
				})
			}
		}
	}

	h.logger.Info("joined collaboration room",
		zap.String("user_id", c.userID),
		zap.String("room_id", roomID))
	return roomID, nil
}

// LeaveRoom removes the connection from a room.
func (h *Hub) LeaveRoom(connID, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return &protocol.NotFoundError{Kind: "connection", ID: connID}
	}
	if _, ok := c.rooms[roomID]; !ok {
		return &protocol.NotFoundError{Kind: "room", ID: roomID}
	}
	h.leaveRoomLocked(c, roomID, true)
	return nil
}

// leaveRoomLocked removes c from the room, notifies remaining members, and
// deletes the room once empty. Caller holds h.mu.
func (h *Hub) leaveRoomLocked(c *connection, roomID string, notifySelf bool) {
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}

	delete(r.members, c.id)
	delete(c.rooms, roomID)

	now := time.Now().UTC()
	if len(r.members) == 0 {
		delete(h.rooms, roomID)
	} else {
		for memberID := range r.members {
			if m, ok := h.conns[memberID]; ok {
				m.sender.Send(protocol.EventParticipantLeft, protocol.ParticipantPayload{
					UserID:    c.userID,
					RoomID:    roomID,
					Timestamp: now,
				})
			}
		}
	}

	if notifySelf {
		c.sender.Send(protocol.EventCollaborationLeft, protocol.CollaborationLeftPayload{
			RoomID:    roomID,
			Timestamp: now,
		})
	}

	h.logger.Info("left collaboration room",
		zap.String("user_id", c.userID),
		zap.String("room_id", roomID))
}

// participantsLocked returns the distinct user ids present in a room.
func (h *Hub) participantsLocked(r *room) []string {
	seen := make(map[string]struct{}, len(r.members))
	participants := make([]string, 0, len(r.members))
	for connID := range r.members {
		c, ok := h.conns[connID]
		if !ok {
			continue
		}
		if _, dup := seen[c.userID]; dup {
			continue
		}
		seen[c.userID] = struct{}{}
		participants = append(participants, c.userID)
	}
	return participants
}

// SubscribeAgent adds the connection to an agent's subscriber set and returns
// a snapshot of the agent state.
func (h *Hub) SubscribeAgent(connID, agentID string) (AgentSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return AgentSnapshot{}, &protocol.NotFoundError{Kind: "connection", ID: connID}
	}
	a, ok := h.agents[agentID]
	if !ok {
		return AgentSnapshot{}, &protocol.NotFoundError{Kind: "agent", ID: agentID}
	}

	c.agentSubs[agentID] = struct{}{}
	a.subscribers[connID] = c.userID

	h.logger.Info("subscribed to agent",
		zap.String("user_id", c.userID),
		zap.String("agent_id", agentID))
	return a.snapshot(), nil
}

// UnsubscribeAgent removes the connection from one agent's subscriber set.
// Other agents' subscriber sets are untouched.
func (h *Hub) UnsubscribeAgent(connID, agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(c.agentSubs, agentID)
	if a, ok := h.agents[agentID]; ok {
		delete(a.subscribers, connID)
	}
}

// Deliver sends one event to one connection. Best-effort: a connection that
// has already gone away (a race with disconnect) is a silent no-op.
func (h *Hub) Deliver(connID, event string, payload interface{}) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()

	if !ok {
		return
	}
	c.sender.Send(event, payload)
}

// BroadcastRoom sends an event to every member of a room.
func (h *Hub) BroadcastRoom(roomID, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for memberID := range r.members {
		if c, ok := h.conns[memberID]; ok {
			c.sender.Send(event, payload)
		}
	}
}

// BroadcastAgentSubscribers sends an event to every connection subscribed to
// an agent.
func (h *Hub) BroadcastAgentSubscribers(agentID, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.agents[agentID]
	if !ok {
		return
	}
	for connID := range a.subscribers {
		if c, ok := h.conns[connID]; ok {
			c.sender.Send(event, payload)
		}
	}
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.conns {
		c.sender.Send(event, payload)
	}
}

// CountMessage increments a room's message counter.
func (h *Hub) CountMessage(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		r.messageCount++
	}
}

// ConnectionCount returns the number of attached connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// RoomSnapshot is a read-only view of one collaboration room.
type RoomSnapshot struct {
	RoomID       string    `json:"room_id"`
	CreatedAt    time.Time `json:"created_at"`
	Participants []string  `json:"participants"`
	Agents       []string  `json:"agents"`
	MessageCount int       `json:"message_count"`
}

// Rooms returns snapshots of all active rooms, keyed by room id.
func (h *Hub) Rooms() map[string]RoomSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]RoomSnapshot, len(h.rooms))
	for id, r := range h.rooms {
		agents := make([]string, 0, len(r.agents))
		for a := range r.agents {
			agents = append(agents, a)
		}
		out[id] = RoomSnapshot{
			RoomID:       id,
			CreatedAt:    r.createdAt,
			Participants: h.participantsLocked(r),
			Agents:       agents,
			MessageCount: r.messageCount,
		}
	}
	return out
}
