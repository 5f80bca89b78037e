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
package hub

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/protocol"
)

// agentState is the live display state of one persona. Guarded by Hub.mu.
type agentState struct {
	agentID      string
	agentName    string
	status       protocol.AgentStatus
	currentTask  string
	progress     float64
	lastActivity time.Time
	subscribers  map[string]string // connection id -> user id
}

// AgentSnapshot is a read-only copy of an agent's display state.
type AgentSnapshot struct {
	AgentID        string               `json:"agent_id"`
	AgentName      string               `json:"agent_name"`
	Status         protocol.AgentStatus `json:"status"`
	CurrentTask    string               `json:"current_task,omitempty"`
	Progress       float64              `json:"progress"`
	LastActivity   time.Time            `json:"last_activity"`
	ConnectedUsers []string             `json:"connected_users"`
}

func (a *agentState) snapshot() AgentSnapshot {
	users := make([]string, 0, len(a.subscribers))
	seen := make(map[string]struct{}, len(a.subscribers))
	for _, userID := range a.subscribers {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	sort.Strings(users)
	return AgentSnapshot{
		AgentID:        a.agentID,
		AgentName:      a.agentName,
		Status:         a.status,
		CurrentTask:    a.currentTask,
		Progress:       a.progress,
		LastActivity:   a.lastActivity,
		ConnectedUsers: users,
	}
}

// SetAgentStatus records a status transition for one agent and broadcasts
// agent_status_update to every connected client. Status strings are validated
// before reaching here; an unknown agent id returns NotFoundError.
func (h *Hub) SetAgentStatus(agentID string, status protocol.AgentStatus, task string, progress float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.agents[agentID]
	if !ok {
		return &protocol.NotFoundError{Kind: "agent", ID: agentID}
	}

	a.status = status
	a.currentTask = task
	a.progress = progress
	a.lastActivity = time.Now().UTC()

	payload := protocol.AgentStatusUpdatePayload{
		AgentID:     agentID,
		Status:      status,
		CurrentTask: task,
		Progress:    progress,
		Timestamp:   a.lastActivity,
	}
	for _, c := range h.conns {
		c.sender.Send(protocol.EventAgentStatusUpdate, payload)
	}

	h.logger.Debug("agent status changed",
		zap.String("agent_id", agentID),
		zap.String("status", string(status)))
	return nil
}

// AgentState returns a snapshot of one agent.
func (h *Hub) AgentState(agentID string) (AgentSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.agents[agentID]
	if !ok {
		return AgentSnapshot{}, false
	}
	return a.snapshot(), true
}

// AgentStates returns snapshots of every agent, keyed by agent id.
func (h *Hub) AgentStates() map[string]AgentSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]AgentSnapshot, len(h.agents))
	for id, a := range h.agents {
		out[id] = a.snapshot()
	}
	return out
}
