// Package middleware carries the request-level concerns: principal
// extraction and rate limiting. Authentication itself is an external
// collaborator; requests arrive with an opaque, already-verified
// principal in headers.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	headerUserID     = "X-User-ID"
	headerAdminToken = "X-Admin-Token"

	ctxUserID = "user_id"
)

// RequireUser extracts the caller's principal from X-User-ID and
// aborts with 401 when it is missing or malformed.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "missing or invalid user principal"})
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

// RequireAdmin gates the admin surface behind a shared token.
func RequireAdmin(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerAdminToken) != adminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "invalid admin token"})
			return
		}
		c.Next()
	}
}

// UserID returns the principal set by RequireUser, or 0 when absent.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
