// Package handler exposes the session core over HTTP. The route layer
// upstream owns password verification and credential transport; every
// rotation failure collapses into one generic 401 so responses never reveal
// whether a presented token ever existed.
package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/session/service"
)

const subjectKey = "subject_id"

// Handlers holds the HTTP handlers for the session service.
type Handlers struct {
	sessions *service.Service
}

// NewHandlers returns Handlers backed by the given session service.
func NewHandlers(sessions *service.Service) *Handlers {
	return &Handlers{sessions: sessions}
}

// SetupRouter builds the Gin router with auth routes and the protected API
// group.
func SetupRouter(sessions *service.Service) *gin.Engine {
	router := gin.Default()
	h := NewHandlers(sessions)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(sessions))
	{
		api.GET("/me", h.Me)
		api.POST("/logout-all", h.LogoutAll)
	}

	return router
}

// LoginRequest carries the subject to start a session for. The caller must
// have authenticated the subject already.
type LoginRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest carries the refresh token of the session to end.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
}

func tokenResponse(res *service.AuthResult) TokenResponse {
	return TokenResponse{
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt.Format(httpTimeLayout),
		RefreshToken:     res.RefreshSecret,
		RefreshExpiresAt: res.RefreshExpiresAt.Format(httpTimeLayout),
	}
}

const httpTimeLayout = "2006-01-02T15:04:05Z07:00" // RFC 3339

// Login starts a new session family and returns the credential pair.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), req.SubjectID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubject) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		log.Printf("handler: login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(res))
}

// Refresh rotates the refresh token and returns a fresh credential pair.
// Every rotation failure produces the same body and status; the kind is
// logged server-side only.
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound),
			errors.Is(err, service.ErrTokenExpired),
			errors.Is(err, service.ErrTokenRevoked),
			errors.Is(err, service.ErrReuseDetected):
			log.Printf("handler: refresh rejected: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		default:
			log.Printf("handler: refresh: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh session"})
		}
		return
	}

	c.JSON(http.StatusOK, tokenResponse(res))
}

// Logout ends the single session identified by the refresh token. Succeeds
// even when the token is unknown, so repeated logouts are safe and the
// endpoint is not an existence oracle.
func (h *Handlers) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		log.Printf("handler: logout: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll revokes every session of the authenticated subject.
func (h *Handlers) LogoutAll(c *gin.Context) {
	subjectID := c.GetString(subjectKey)
	if subjectID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.sessions.LogoutAll(c.Request.Context(), subjectID); err != nil {
		log.Printf("handler: logout-all: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out everywhere"})
}

// Me returns the subject of the presented access token.
func (h *Handlers) Me(c *gin.Context) {
	subjectID := c.GetString(subjectKey)
	if subjectID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subjectID})
}
