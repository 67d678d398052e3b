package service

import (
	"errors"

	"github.com/google/uuid"

	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/repository"
)

// ErrEmptyWalkList is returned when creating a walk list with no targets
var ErrEmptyWalkList = errors.New("service: walk list needs at least one target")

// WalkListService handles business logic for walk lists
type WalkListService struct {
	repo *repository.WalkListRepository
}

// NewWalkListService creates a new walk list service
func NewWalkListService(repo *repository.WalkListRepository) *WalkListService {
	return &WalkListService{repo: repo}
}

// Create validates and stores a walk list, assigning IDs where missing
func (s *WalkListService) Create(wl *models.WalkList) error {
	if len(wl.Targets) == 0 {
		return ErrEmptyWalkList
	}
	if wl.ID == "" {
		wl.ID = uuid.NewString()
	}
	for i := range wl.Targets {
		if wl.Targets[i].ID == "" {
			wl.Targets[i].ID = uuid.NewString()
		}
	}
	return s.repo.Create(wl)
}

// GetByID retrieves a single walk list
func (s *WalkListService) GetByID(id string) (*models.WalkList, error) {
	return s.repo.GetByID(id)
}

// List retrieves all walk lists
func (s *WalkListService) List() ([]models.WalkList, error) {
	return s.repo.List()
}
