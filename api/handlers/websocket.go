package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/workspace-chat/backend/internal/ws"
)

// WebSocketHandler upgrades requests onto the relay's event connection.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	logger    *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		wsHandler: wsHandler,
		logger:    logger,
	}
}

// Connect handles GET /api/ws. Workspaces are joined over the connection.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, getPrincipal(c)); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "err", err)
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}
