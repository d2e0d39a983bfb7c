package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/liveclient/internal/identity"
	"github.com/tutorlane/liveclient/pkg/response"
)

const (
	// ContextUserID is the key for the user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserName is the key for the display name in gin context.
	ContextUserName = "user_name"
)

// Auth extracts the platform access token from the Authorization header and
// attaches the caller's identity to the request context. The token is not
// verified here; the session service rejects forged tokens on every remote
// call the agent makes with it.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		id, err := identity.FromToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "malformed token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, id.UserID)
		c.Set(ContextUserName, id.Name)
		c.Request = c.Request.WithContext(identity.WithContext(c.Request.Context(), id))
		c.Next()
	}
}
