package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/repository"
	"github.com/fieldops/canvass-backend-go/internal/service"
	"github.com/fieldops/canvass-backend-go/pkg/response"
)

// WalkListHandler handles HTTP requests for walk lists
type WalkListHandler struct {
	service *service.WalkListService
}

// NewWalkListHandler creates a new walk list handler
func NewWalkListHandler(service *service.WalkListService) *WalkListHandler {
	return &WalkListHandler{service: service}
}

// Create handles POST /api/v1/walklists
func (h *WalkListHandler) Create(c *gin.Context) {
	var wl models.WalkList
	if err := c.ShouldBindJSON(&wl); err != nil {
		response.BadRequest(c, "Invalid walk list")
		return
	}

	if err := h.service.Create(&wl); err != nil {
		if errors.Is(err, service.ErrEmptyWalkList) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, "Failed to create walk list")
		return
	}

	response.Success(c, wl)
}

// GetByID handles GET /api/v1/walklists/:id
func (h *WalkListHandler) GetByID(c *gin.Context) {
	wl, err := h.service.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "Walk list not found")
			return
		}
		response.InternalError(c, "Failed to get walk list")
		return
	}
	response.Success(c, wl)
}

// List handles GET /api/v1/walklists
func (h *WalkListHandler) List(c *gin.Context) {
	lists, err := h.service.List()
	if err != nil {
		response.InternalError(c, "Failed to list walk lists")
		return
	}
	response.Success(c, lists)
}
