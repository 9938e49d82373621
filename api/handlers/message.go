package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/model"
)

// MessageStore persists workspace messages.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListPage(ctx context.Context, workspaceID string, pageNumber, pageSize int) (model.HistoryPage, error)
}

// Broadcaster fans a persisted message out to connected clients.
type Broadcaster interface {
	BroadcastMessage(msg model.Message) (int, error)
}

// MessageHandler handles HTTP requests for workspace messages.
type MessageHandler struct {
	store       MessageStore
	broadcaster Broadcaster
	limiter     *RateLimiter
	metrics     *metrics.Relay
	logger      *slog.Logger
	now         func() time.Time
}

// NewMessageHandler creates a new MessageHandler. limiter, m and logger may be nil.
func NewMessageHandler(store MessageStore, broadcaster Broadcaster, limiter *RateLimiter, m *metrics.Relay, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		store:       store,
		broadcaster: broadcaster,
		limiter:     limiter,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// List handles GET /api/workspaces/:id/messages - returns one history page,
// newest page first, messages in ascending order within the page.
func (h *MessageHandler) List(c *gin.Context) {
	workspaceID := c.Param("id")

	pageNumber, err := queryInt(c, "pageNumber", 1)
	if err != nil {
		sendError(c, http.StatusBadRequest, model.CodeValidation, err.Error())
		return
	}
	pageSize, err := queryInt(c, "pageSize", 0)
	if err != nil {
		sendError(c, http.StatusBadRequest, model.CodeValidation, err.Error())
		return
	}

	page, err := h.store.ListPage(c.Request.Context(), workspaceID, pageNumber, pageSize)
	if err != nil {
		h.logger.Error("failed to list messages", "workspace_id", workspaceID, "err", err)
		sendError(c, http.StatusInternalServerError, model.CodeInternal, "Failed to list messages")
		return
	}

	c.JSON(http.StatusOK, page)
}

// Create handles POST /api/workspaces/:id/messages - persists a message and
// broadcasts it to the workspace room.
func (h *MessageHandler) Create(c *gin.Context) {
	workspaceID := c.Param("id")
	principal := getPrincipal(c)

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, model.CodeValidation, "Invalid request body: "+err.Error())
		return
	}

	body, err := model.NormalizeBody(req.Body)
	if err != nil {
		message := "Message body is required"
		if errors.Is(err, model.ErrBodyTooLong) {
			message = "Message body exceeds " + strconv.Itoa(model.MaxBodyLength) + " characters"
		}
		sendError(c, http.StatusBadRequest, model.CodeValidation, message)
		return
	}

	if !h.limiter.Allow(principal.UserID) {
		h.metrics.RateLimited()
		sendError(c, http.StatusTooManyRequests, model.CodeRateLimited, "Too many messages, slow down")
		return
	}

	msg := model.Message{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Sender:      model.Sender{ID: principal.UserID, Name: principal.Name},
		Body:        body,
		CreatedAt:   h.now().UTC(),
	}
	if err := h.store.Create(c.Request.Context(), &msg); err != nil {
		h.logger.Error("failed to store message", "workspace_id", workspaceID, "err", err)
		sendError(c, http.StatusInternalServerError, model.CodeInternal, "Failed to store message")
		return
	}
	h.metrics.MessageStored()

	if h.broadcaster != nil {
		if _, err := h.broadcaster.BroadcastMessage(msg); err != nil {
			h.logger.Warn("failed to broadcast message", "message_id", msg.ID, "err", err)
		}
	}

	c.JSON(http.StatusCreated, model.SendMessageResponse{ChatMessage: msg})
}

// RegisterRoutes registers the message routes on a Gin router group.
func (h *MessageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/workspaces/:id/messages", h.List)
	rg.POST("/workspaces/:id/messages", h.Create)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
