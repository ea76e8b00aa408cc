package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Authenticator resolves a bearer token to a user ID. Identity management
// itself lives elsewhere; the server only consumes this port.
type Authenticator interface {
	Authenticate(token string) (userID string, ok bool)
}

// StaticTokens is a fixed token → user mapping, enough for single-box
// deployments and tests.
type StaticTokens map[string]string

// Authenticate implements Authenticator.
func (s StaticTokens) Authenticate(token string) (string, bool) {
	userID, ok := s[token]
	return userID, ok
}

const userIDKey = "taskwire.userID"

// requireAuth is the gin middleware enforcing bearer authentication.
func requireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, ok := auth.Authenticate(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUser returns the authenticated user ID set by requireAuth.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
