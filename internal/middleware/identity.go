package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/response"
)

// UserIDHeader carries the caller's user ID
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// RequireUser reads the caller's identity from the X-User-ID header.
// It sets user_id in the Gin context and tags the request logger with it.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if raw == "" {
			response.Unauthorized(c, "X-User-ID header required")
			c.Abort()
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			response.Unauthorized(c, "Invalid X-User-ID header")
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

// GetUserID returns the caller set by RequireUser
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}
