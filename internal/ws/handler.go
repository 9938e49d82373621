package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler accepts WebSocket connections and routes their frames.
type Handler struct {
	hubs    *HubManager
	metrics *metrics.Relay
	logger  *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hubs *HubManager, m *metrics.Relay, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hubs:    hubs,
		metrics: m,
		logger:  logger,
	}
}

// HandleConnection upgrades the request and serves the connection on
// behalf of principal until it closes. It returns once the pumps are started.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, principal model.Principal) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, principal)
	h.metrics.ConnectionOpened()
	h.logger.Debug("client connected", "user_id", principal.UserID)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleFrame routes one inbound frame.
func (h *Handler) handleFrame(client *Client, frame model.Frame) {
	switch frame.Event {
	case model.EventJoinWorkspace:
		h.handleJoin(client, frame)
	case model.EventLeaveWorkspace:
		h.handleLeave(client)
	case model.EventTypingStart:
		h.handleTyping(client, frame, model.EventUserTyping)
	case model.EventTypingStop:
		h.handleTyping(client, frame, model.EventUserStoppedTyping)
	default:
		h.replyError(client, "unknown event "+string(frame.Event), model.CodeUnknownEvent)
	}
}

func (h *Handler) handleJoin(client *Client, frame model.Frame) {
	workspaceID, ok := decodeWorkspaceID(frame.Data)
	if !ok {
		h.replyError(client, "join_workspace requires a workspace id", model.CodeBadFrame)
		return
	}

	_, left := h.hubs.Join(client, workspaceID)
	if left != nil {
		h.broadcastStopped(client, left)
	}
	h.logger.Debug("client joined workspace",
		"user_id", client.principal.UserID, "workspace_id", workspaceID)
}

func (h *Handler) handleLeave(client *Client) {
	if left := h.hubs.Leave(client); left != nil {
		h.broadcastStopped(client, left)
	}
}

func (h *Handler) handleTyping(client *Client, frame model.Frame, relayed model.EventKind) {
	workspaceID, ok := decodeWorkspaceID(frame.Data)
	if !ok {
		h.replyError(client, string(frame.Event)+" requires a workspace id", model.CodeBadFrame)
		return
	}

	hub := h.hubs.Room(client)
	if hub == nil || hub.WorkspaceID() != workspaceID {
		h.replyError(client, "not subscribed to workspace "+workspaceID, model.CodeNotInWorkspace)
		return
	}

	h.broadcast(hub, client, relayed, model.TypingPayload{
		UserID:   client.principal.UserID,
		UserName: client.principal.Name,
	})
}

// broadcastStopped tells the rest of a room the client is no longer typing.
func (h *Handler) broadcastStopped(client *Client, hub *Hub) {
	h.broadcast(hub, client, model.EventUserStoppedTyping, model.TypingPayload{
		UserID:   client.principal.UserID,
		UserName: client.principal.Name,
	})
}

func (h *Handler) broadcast(hub *Hub, except *Client, kind model.EventKind, payload any) {
	frame, err := model.NewFrame(kind, payload)
	if err != nil {
		h.logger.Error("failed to encode frame", "event", kind, "err", err)
		return
	}
	if _, err := hub.BroadcastFrame(frame, except); err != nil {
		h.logger.Error("failed to broadcast frame", "event", kind, "err", err)
		return
	}
	h.metrics.Broadcast(string(kind))
}

func (h *Handler) replyError(client *Client, message, code string) {
	frame, err := model.NewFrame(model.EventError, model.ErrorPayload{Message: message, ErrorCode: code})
	if err != nil {
		return
	}
	client.SendFrame(frame)
}

// decodeWorkspaceID accepts either a bare JSON string or {"workspaceId": ...}.
func decodeWorkspaceID(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var ref model.WorkspaceRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return "", false
		}
		id = ref.WorkspaceID
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// readPump reads frames until the connection fails, then removes the
// client from its room.
func (h *Handler) readPump(client *Client) {
	defer func() {
		if left := h.hubs.Leave(client); left != nil {
			h.broadcastStopped(client, left)
		}
		client.Close()
		client.Conn().Close()
		h.metrics.ConnectionClosed()
		h.logger.Debug("client disconnected", "user_id", client.principal.UserID)
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "user_id", client.principal.UserID, "err", err)
			}
			break
		}

		var frame model.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			h.replyError(client, "malformed frame", model.CodeBadFrame)
			continue
		}

		h.handleFrame(client, frame)
	}
}

// writePump drains the client's send channel onto the connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per WebSocket message.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// AllowOrigins returns an origin checker that accepts the listed origins.
// An empty list accepts every origin. Requests without an Origin header
// come from non-browser clients and are always accepted.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}
