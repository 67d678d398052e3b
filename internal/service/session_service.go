package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/canvass-backend-go/internal/geo"
	"github.com/fieldops/canvass-backend-go/internal/location"
	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/repository"
	"github.com/fieldops/canvass-backend-go/internal/session"
	"github.com/fieldops/canvass-backend-go/internal/verify"
)

// ErrSessionNotFound is returned for operations on unknown or ended sessions
var ErrSessionNotFound = errors.New("service: session not found")

// VerificationView is the verification status of the current stop as exposed to the UI
type VerificationView struct {
	Outcome  models.Outcome               `json:"outcome"`
	Attempts int                          `json:"attempts"`
	History  []models.VerificationAttempt `json:"history,omitempty"`
}

// SessionView is the full session state plus live verification status
type SessionView struct {
	models.SessionState
	Verification VerificationView `json:"verification"`
}

// LocateResult is a one-shot position preview relative to the current target
type LocateResult struct {
	Sample    models.LocationSample `json:"sample"`
	TargetID  string                `json:"targetId"`
	DistanceM float64               `json:"distanceMeters"`
}

// SessionService owns the active walk sessions and bridges the HTTP layer to
// the session, verification, and location cores. Each active session has its
// own push-fed location source that device fixes are routed into.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*activeSession

	sessionRepo   *repository.SessionRepository
	walkListRepo  *repository.WalkListRepository
	verifyCfg     verify.Config
	locateTimeout time.Duration
}

type activeSession struct {
	walk *session.Walk
	src  *location.PushSource
}

// NewSessionService creates a session service
func NewSessionService(sessionRepo *repository.SessionRepository, walkListRepo *repository.WalkListRepository, verifyCfg verify.Config, locateTimeout time.Duration) *SessionService {
	if locateTimeout <= 0 {
		locateTimeout = 8 * time.Second
	}
	return &SessionService{
		sessions:      make(map[string]*activeSession),
		sessionRepo:   sessionRepo,
		walkListRepo:  walkListRepo,
		verifyCfg:     verifyCfg,
		locateTimeout: locateTimeout,
	}
}

// StartSession starts a new walk session over the given walk list
func (s *SessionService) StartSession(walkListID, volunteer string) (SessionView, error) {
	wl, err := s.walkListRepo.GetByID(walkListID)
	if err != nil {
		return SessionView{}, fmt.Errorf("failed to load walk list: %w", err)
	}

	id := uuid.NewString()
	src := location.NewPushSource()
	w := session.New(id, wl.ID, volunteer, wl.Targets, src, s.sessionRepo, s.sessionEvents(id), s.verifyCfg)
	if err := w.Start(); err != nil {
		w.Close()
		src.Close()
		return SessionView{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &activeSession{walk: w, src: src}
	s.mu.Unlock()

	log.Printf("[SessionService] session %s started on walk list %s by %s (%d stops)",
		id, wl.ID, volunteer, len(wl.Targets))
	return s.view(w), nil
}

// ResumeSession rehydrates a persisted session. Resuming an already active
// session just returns its current view.
func (s *SessionService) ResumeSession(id string) (SessionView, error) {
	s.mu.Lock()
	if active, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return s.view(active.walk), nil
	}
	s.mu.Unlock()

	payload, err := s.sessionRepo.Load(id)
	if err == repository.ErrNotFound {
		return SessionView{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionView{}, err
	}

	var state models.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return SessionView{}, fmt.Errorf("failed to parse persisted session %s: %w", id, err)
	}

	src := location.NewPushSource()
	w, err := session.Resume(state, src, s.sessionRepo, s.sessionEvents(id), s.verifyCfg)
	if err != nil {
		src.Close()
		return SessionView{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &activeSession{walk: w, src: src}
	s.mu.Unlock()

	log.Printf("[SessionService] session %s resumed at stop %d", id, state.CurrentIndex)
	return s.view(w), nil
}

// View returns the current state of an active session
func (s *SessionService) View(id string) (SessionView, error) {
	active, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(active.walk), nil
}

// PushFix routes a device fix into the session's location source. A missing
// capture timestamp is stamped on arrival.
func (s *SessionService) PushFix(id string, sample models.LocationSample) error {
	active, err := s.get(id)
	if err != nil {
		return err
	}
	if sample.CapturedAtMs == 0 {
		sample.CapturedAtMs = time.Now().UnixMilli()
	}
	active.src.Push(sample)
	return nil
}

// ReportFailure routes a device-side acquisition failure into the session's source
func (s *SessionService) ReportFailure(id string, kind location.ErrorKind, message string) error {
	active, err := s.get(id)
	if err != nil {
		return err
	}
	active.src.PushError(&location.Error{Kind: kind, Message: message})
	return nil
}

// Locate waits for the next fix and reports the distance to the current target
func (s *SessionService) Locate(ctx context.Context, id string) (LocateResult, error) {
	active, err := s.get(id)
	if err != nil {
		return LocateResult{}, err
	}

	state := active.walk.State()
	if state.Completed || state.CurrentIndex < 0 || state.CurrentIndex >= len(state.Targets) {
		return LocateResult{}, session.ErrSessionCompleted
	}
	target := state.Targets[state.CurrentIndex]

	ctx, cancel := context.WithTimeout(ctx, s.locateTimeout)
	defer cancel()

	sample, err := active.src.GetOnce(ctx)
	if err != nil {
		return LocateResult{}, err
	}

	return LocateResult{
		Sample:    sample,
		TargetID:  target.ID,
		DistanceM: geo.DistanceMeters(sample.Coordinate, target.Coordinate),
	}, nil
}

// UpdateFields merges a partial update into the current stop record
func (s *SessionService) UpdateFields(id string, u session.FieldUpdate) (SessionView, error) {
	active, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := active.walk.UpdateCurrent(u); err != nil {
		return SessionView{}, err
	}
	return s.view(active.walk), nil
}

// Advance finalizes the current stop and moves on
func (s *SessionService) Advance(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Advance() })
}

// Skip finalizes the current stop as not attempted and moves on
func (s *SessionService) Skip(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Skip() })
}

// Retreat moves back to the immediately preceding stop
func (s *SessionService) Retreat(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Retreat() })
}

// Undo reverts the most recent navigation
func (s *SessionService) Undo(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Undo() })
}

// Redo replays the most recently undone navigation
func (s *SessionService) Redo(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Redo() })
}

// RetryVerification reopens an acquiring episode for the current stop
func (s *SessionService) RetryVerification(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.RetryVerification() })
}

// Reverify demands a fresh fix for the current stop
func (s *SessionService) Reverify(id string) (SessionView, error) {
	return s.navigate(id, func(w *session.Walk) error { return w.Reverify() })
}

// EndSession tears down an active session: the live subscription and source
// are released and the session is dropped from the registry. Persisted state
// stays in the store so the session can be resumed later unless completed.
func (s *SessionService) EndSession(id string) error {
	s.mu.Lock()
	active, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	active.walk.Close()
	active.src.Close()
	log.Printf("[SessionService] session %s ended", id)
	return nil
}

func (s *SessionService) navigate(id string, op func(*session.Walk) error) (SessionView, error) {
	active, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := op(active.walk); err != nil {
		return SessionView{}, err
	}
	return s.view(active.walk), nil
}

func (s *SessionService) get(id string) (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return active, nil
}

func (s *SessionService) view(w *session.Walk) SessionView {
	outcome, attempts, history := w.Verification()
	return SessionView{
		SessionState: w.State(),
		Verification: VerificationView{
			Outcome:  outcome,
			Attempts: attempts,
			History:  history,
		},
	}
}

func (s *SessionService) sessionEvents(id string) session.Events {
	return session.Events{
		VerificationChanged: func(targetID string, outcome models.Outcome, attempt int) {
			log.Printf("[SessionService] session %s target %s verification: %s (attempt %d)",
				id, targetID, outcome, attempt)
		},
		StopFinalized: func(rec models.StopRecord) {
			log.Printf("[SessionService] session %s finalized stop %s (contactAttempted=%t)",
				id, rec.Target.ID, rec.ContactAttempted)
		},
		SessionCompleted: func(records []models.StopRecord) {
			log.Printf("[SessionService] session %s completed with %d records", id, len(records))
		},
	}
}
