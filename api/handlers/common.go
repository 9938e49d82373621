// Package handlers provides the relay's HTTP API request handlers.
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/workspace-chat/backend/internal/model"
)

const (
	principalKey = "principal"

	// Development identity used when a request names no user.
	defaultUserID   = "default-user"
	defaultUserName = "Default User"
)

// Identify is a development auth middleware. It trusts the X-User-ID and
// X-User-Name headers and stores the resulting principal on the context.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		name := strings.TrimSpace(c.GetHeader("X-User-Name"))
		if userID != "" {
			if name == "" {
				name = userID
			}
			c.Set(principalKey, model.Principal{UserID: userID, Name: name})
		}
		c.Next()
	}
}

// getPrincipal returns the request's principal, falling back to the
// development default user.
func getPrincipal(c *gin.Context) model.Principal {
	if v, exists := c.Get(principalKey); exists {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Principal{UserID: defaultUserID, Name: defaultUserName}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
