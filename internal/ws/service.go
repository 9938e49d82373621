package ws

import (
	"log/slog"

	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
)

// Service ties the hub to the rest of the relay.
type Service struct {
	hubs    *HubManager
	handler *Handler
	metrics *metrics.Relay
	logger  *slog.Logger
}

// NewService creates a WebSocket service. m and logger may be nil.
func NewService(m *metrics.Relay, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	hubs := NewHubManager()
	return &Service{
		hubs:    hubs,
		handler: NewHandler(hubs, m, logger),
		metrics: m,
		logger:  logger,
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubs
}

// BroadcastMessage delivers a persisted message to every member of its
// workspace room, the author included. It returns the number of recipients.
func (s *Service) BroadcastMessage(msg model.Message) (int, error) {
	hub := s.hubs.Get(msg.WorkspaceID)
	if hub == nil {
		return 0, nil
	}

	frame, err := model.NewFrame(model.EventNewMessage, model.NewMessagePayload{ChatMessage: msg})
	if err != nil {
		return 0, err
	}
	n, err := hub.BroadcastFrame(frame, nil)
	if err != nil {
		return 0, err
	}
	s.metrics.Broadcast(string(model.EventNewMessage))
	s.logger.Debug("message broadcast", "workspace_id", msg.WorkspaceID, "message_id", msg.ID, "recipients", n)
	return n, nil
}

// RoomSize returns the number of clients subscribed to the workspace.
func (s *Service) RoomSize(workspaceID string) int {
	hub := s.hubs.Get(workspaceID)
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

// Close closes all WebSocket connections.
func (s *Service) Close() {
	s.hubs.Close()
}
