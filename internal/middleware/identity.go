package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mstudy/internal/pkg/errcode"
	"github.com/xxxsen/mstudy/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	UserIDHeader     = "X-User-ID"
	maxUserIDLen     = 128
)

// Identity reads the caller's user id from the X-User-ID header or the user_id
// query parameter. Authentication happens in front of this service.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			response.Abort(c, errcode.ErrUnauthorized, "missing user id")
			return
		}
		if len(userID) > maxUserIDLen || strings.ContainsAny(userID, "/\\") || userID == "." || userID == ".." {
			response.Abort(c, errcode.ErrUnauthorized, "invalid user id")
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}
