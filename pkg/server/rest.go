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
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/pkg/protocol"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) success(w http.ResponseWriter, message string, data interface{}) {
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func (s *Server) handleWSHealth(w http.ResponseWriter, _ *http.Request) {
	states := s.hub.AgentStates()
	agents := make(map[string]interface{}, len(states))
	for id, state := range states {
		agents[id] = map[string]interface{}{
			"status":          state.Status,
			"connected_users": len(state.ConnectedUsers),
			"last_activity":   state.LastActivity,
		}
	}

	s.success(w, "WebSocket service is healthy", map[string]interface{}{
		"status":            "healthy",
		"connected_clients": s.hub.ConnectionCount(),
		"active_rooms":      len(s.hub.Rooms()),
		"active_sessions":   s.sessions.Active(),
		"agents":            agents,
	})
}

func (s *Server) handleAgentStatuses(w http.ResponseWriter, _ *http.Request) {
	s.success(w, "Agent statuses retrieved", map[string]interface{}{
		"agents": s.hub.AgentStates(),
	})
}

// handleUpdateAgentStatus lets internal services push a status transition.
func (s *Server) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	var body struct {
		Status      string  `json:"status"`
		CurrentTask string  `json:"current_task"`
		Progress    float64 `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "Request body required")
		return
	}

	status, err := protocol.ParseAgentStatus(body.Status)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Progress < 0 || body.Progress > 1 {
		s.fail(w, http.StatusBadRequest, "Progress must be a number between 0 and 1")
		return
	}

	if err := s.hub.SetAgentStatus(agentID, status, body.CurrentTask, body.Progress); err != nil {
		s.fail(w, http.StatusNotFound, err.Error())
		return
	}

	s.success(w, "Agent "+agentID+" status updated", map[string]interface{}{
		"agent_id":     agentID,
		"status":       status,
		"current_task": body.CurrentTask,
		"progress":     body.Progress,
	})
}

// handleSendAgentMessage broadcasts a message on behalf of an agent.
func (s *Server) handleSendAgentMessage(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	if _, ok := s.hub.AgentState(agentID); !ok {
		s.fail(w, http.StatusNotFound, "agent not found: "+agentID)
		return
	}

	var body struct {
		Content     string                 `json:"content"`
		MessageType string                 `json:"message_type"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "Request body required")
		return
	}
	if body.Content == "" {
		s.fail(w, http.StatusBadRequest, "Message content is required")
		return
	}

	msgType := protocol.TypeAgentMessage
	if body.MessageType != "" {
		var err error
		msgType, err = protocol.ParseMessageType(body.MessageType)
		if err != nil {
			s.fail(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	msg := protocol.ChatMessage{
		MessageID:   uuid.NewString(),
		MessageType: msgType,
		Timestamp:   time.Now().UTC(),
		SenderID:    agentID,
		SenderType:  "agent",
		Content:     body.Content,
		Metadata:    body.Metadata,
	}
	s.persist(msg)
	s.hub.BroadcastAll(protocol.EventAgentMessage, msg)

	s.success(w, "Message sent from agent "+agentID, map[string]interface{}{
		"agent_id":     agentID,
		"message_id":   msg.MessageID,
		"message_type": msgType,
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.hub.Rooms()
	s.success(w, "Active rooms retrieved", map[string]interface{}{
		"room_count": len(rooms),
		"rooms":      rooms,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	rooms := s.hub.Rooms()
	states := s.hub.AgentStates()

	totalParticipants := 0
	for _, room := range rooms {
		totalParticipants += len(room.Participants)
	}

	statusCounts := make(map[string]int)
	for _, state := range states {
		statusCounts[string(state.Status)]++
	}

	avgParticipants := 0.0
	if len(rooms) > 0 {
		avgParticipants = float64(totalParticipants) / float64(len(rooms))
	}

	s.success(w, "WebSocket statistics retrieved", map[string]interface{}{
		"connected_clients":             s.hub.ConnectionCount(),
		"active_rooms":                  len(rooms),
		"active_sessions":               s.sessions.Active(),
		"total_room_participants":       totalParticipants,
		"total_agents":                  len(states),
		"agent_status_distribution":     statusCounts,
		"average_participants_per_room": avgParticipants,
	})
}

// handleMessages returns recent transcript messages, optionally scoped to one
// room.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.transcript == nil {
		s.fail(w, http.StatusServiceUnavailable, "Transcript store not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.fail(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	var (
		msgs []protocol.ChatMessage
		err  error
	)
	if roomID := r.URL.Query().Get("room_id"); roomID != "" {
		msgs, err = s.transcript.RoomMessages(r.Context(), roomID, limit)
	} else {
		msgs, err = s.transcript.RecentMessages(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("transcript query failed", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	s.success(w, "Messages retrieved", map[string]interface{}{
		"count":    len(msgs),
		"messages": msgs,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	personas := s.personas.List()
	agents := make([]map[string]interface{}, 0, len(personas))
	for _, p := range personas {
		agents = append(agents, map[string]interface{}{
			"id":           p.ID,
			"name":         p.Name,
			"description":  p.Description,
			"capabilities": p.Capabilities,
		})
	}
	s.success(w, "Agents retrieved", map[string]interface{}{"agents": agents})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		s.fail(w, http.StatusServiceUnavailable, "Model source not configured")
		return
	}

	models, err := s.models.Models(r.Context())
	if err != nil {
		s.logger.Error("model list fetch failed", zap.Error(err))
		s.fail(w, http.StatusBadGateway, "Failed to fetch models")
		return
	}
	s.success(w, "Models retrieved", map[string]interface{}{
		"count":  len(models),
		"models": models,
	})
}
