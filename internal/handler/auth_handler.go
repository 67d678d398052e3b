package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/canvass-backend-go/internal/middleware"
	"github.com/fieldops/canvass-backend-go/pkg/response"
)

// tokenTTL covers one canvassing shift
const tokenTTL = 12 * time.Hour

// AuthHandler issues volunteer tokens
type AuthHandler struct {
	jwtSecret string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

// IssueToken handles POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req struct {
		VolunteerID string `json:"volunteerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "volunteerId is required")
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, req.VolunteerID, tokenTTL)
	if err != nil {
		response.InternalError(c, "Failed to issue token")
		return
	}

	response.Success(c, gin.H{
		"token":     token,
		"expiresIn": int64(tokenTTL.Seconds()),
	})
}
