package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/canvass-backend-go/internal/location"
	"github.com/fieldops/canvass-backend-go/internal/middleware"
	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/repository"
	"github.com/fieldops/canvass-backend-go/internal/service"
	"github.com/fieldops/canvass-backend-go/internal/session"
	"github.com/fieldops/canvass-backend-go/internal/verify"
	"github.com/fieldops/canvass-backend-go/pkg/response"
)

// SessionHandler handles HTTP requests for walk sessions
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// StartSession handles POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req struct {
		WalkListID string `json:"walkListId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "walkListId is required")
		return
	}

	view, err := h.service.StartSession(req.WalkListID, middleware.Volunteer(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "Walk list not found")
			return
		}
		response.InternalError(c, "Failed to start session")
		return
	}

	response.Success(c, view)
}

// ResumeSession handles POST /api/v1/sessions/:id/resume
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	view, err := h.service.ResumeSession(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, view)
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.service.View(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, view)
}

// EndSession handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) EndSession(c *gin.Context) {
	if err := h.service.EndSession(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"ended": true})
}

// PushFix handles POST /api/v1/sessions/:id/location
func (h *SessionHandler) PushFix(c *gin.Context) {
	var req struct {
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		AccuracyM    float64 `json:"accuracyMeters"`
		CapturedAtMs int64   `json:"capturedAtEpochMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid location fix")
		return
	}

	sample := models.LocationSample{
		Coordinate:   models.GeoCoordinate{Latitude: req.Latitude, Longitude: req.Longitude},
		AccuracyM:    req.AccuracyM,
		CapturedAtMs: req.CapturedAtMs,
	}
	if err := h.service.PushFix(c.Param("id"), sample); err != nil {
		h.writeError(c, err)
		return
	}

	// The fix may have settled the verification; return the fresh view
	view, err := h.service.View(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, view)
}

// ReportFailure handles POST /api/v1/sessions/:id/location-error
func (h *SessionHandler) ReportFailure(c *gin.Context) {
	var req struct {
		Kind    string `json:"kind" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid failure report")
		return
	}

	kind := location.ErrorKind(req.Kind)
	switch kind {
	case location.PermissionDenied, location.PositionUnavailable, location.Timeout, location.CapabilityMissing:
	default:
		response.BadRequest(c, "Unknown failure kind")
		return
	}

	if err := h.service.ReportFailure(c.Param("id"), kind, req.Message); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"reported": true})
}

// Locate handles GET /api/v1/sessions/:id/locate
func (h *SessionHandler) Locate(c *gin.Context) {
	result, err := h.service.Locate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if location.KindOf(err) == location.Timeout {
			response.Error(c, http.StatusGatewayTimeout, "No fix received before the deadline")
			return
		}
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// UpdateFields handles PATCH /api/v1/sessions/:id/fields
func (h *SessionHandler) UpdateFields(c *gin.Context) {
	var update session.FieldUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.BadRequest(c, "Invalid field update")
		return
	}

	view, err := h.service.UpdateFields(c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, view)
}

// Advance handles POST /api/v1/sessions/:id/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	h.navigate(c, h.service.Advance)
}

// Skip handles POST /api/v1/sessions/:id/skip
func (h *SessionHandler) Skip(c *gin.Context) {
	h.navigate(c, h.service.Skip)
}

// Retreat handles POST /api/v1/sessions/:id/retreat
func (h *SessionHandler) Retreat(c *gin.Context) {
	h.navigate(c, h.service.Retreat)
}

// Undo handles POST /api/v1/sessions/:id/undo
func (h *SessionHandler) Undo(c *gin.Context) {
	h.navigate(c, h.service.Undo)
}

// Redo handles POST /api/v1/sessions/:id/redo
func (h *SessionHandler) Redo(c *gin.Context) {
	h.navigate(c, h.service.Redo)
}

// RetryVerification handles POST /api/v1/sessions/:id/retry
func (h *SessionHandler) RetryVerification(c *gin.Context) {
	h.navigate(c, h.service.RetryVerification)
}

// Reverify handles POST /api/v1/sessions/:id/reverify
func (h *SessionHandler) Reverify(c *gin.Context) {
	h.navigate(c, h.service.Reverify)
}

func (h *SessionHandler) navigate(c *gin.Context, op func(string) (service.SessionView, error)) {
	view, err := op(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, view)
}

// writeError maps core errors onto HTTP statuses: unknown sessions are 404,
// state-machine contract violations are 409, everything else is 500
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, "Session not found")
	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrInvalidRetreat),
		errors.Is(err, session.ErrSessionCompleted),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo),
		errors.Is(err, session.ErrNoActiveVerification),
		errors.Is(err, verify.ErrExhausted),
		errors.Is(err, verify.ErrTerminalState):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, "Internal error")
	}
}
