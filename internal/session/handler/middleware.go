package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/session/service"
)

const bearerPrefix = "bearer "

// AuthMiddleware validates the Bearer access token and puts the subject id in
// the request context. Malformed and expired tokens produce the same
// response.
func AuthMiddleware(sessions *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}

		subjectID, err := sessions.VerifyAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}

		c.Set(subjectKey, subjectID)
		c.Next()
	}
}

// extractBearer returns the Bearer token from an Authorization header value,
// or "" if missing or malformed.
func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
