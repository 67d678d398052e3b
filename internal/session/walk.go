package session

import (
	"errors"
	"sync"
	"time"

	"github.com/fieldops/canvass-backend-go/internal/location"
	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/verify"
)

var (
	// ErrNotReady is returned by Advance when the contact or verification gate is not satisfied
	ErrNotReady = errors.New("session: stop is not ready to finalize")
	// ErrInvalidRetreat is returned when retreating past the first stop or past the
	// immediately preceding one
	ErrInvalidRetreat = errors.New("session: can only retreat to the immediately preceding stop")
	// ErrSessionCompleted is returned by mutating operations after the last stop was finalized
	ErrSessionCompleted = errors.New("session: session already completed")
	// ErrNothingToUndo is returned by Undo with an empty history
	ErrNothingToUndo = errors.New("session: nothing to undo")
	// ErrNothingToRedo is returned by Redo with an empty redo stack
	ErrNothingToRedo = errors.New("session: nothing to redo")
	// ErrNoActiveVerification is returned by RetryVerification when no engine is live
	ErrNoActiveVerification = errors.New("session: no active verification for the current stop")
	// ErrNoTargets is returned when starting a session over an empty walk list
	ErrNoTargets = errors.New("session: walk list has no targets")
)

// Store is the external persistence boundary the session autosaves to
type Store interface {
	Save(sessionID string, state []byte) error
	Load(sessionID string) ([]byte, error)
}

// Events are the callbacks a UI shell can attach to a walk session.
// All callbacks are invoked outside the session lock.
type Events struct {
	VerificationChanged func(targetID string, outcome models.Outcome, attemptNumber int)
	StopFinalized       func(models.StopRecord)
	SessionCompleted    func([]models.StopRecord)
}

// FieldUpdate is a partial update to the current stop record. Nil pointers
// leave the corresponding value untouched; a nil value inside Fields deletes
// that key.
type FieldUpdate struct {
	Fields           map[string]interface{} `json:"fields,omitempty"`
	ContactAttempted *bool                  `json:"contactAttempted,omitempty"`
	ContactMade      *bool                  `json:"contactMade,omitempty"`
	Notes            *string                `json:"notes,omitempty"`
}

// Walk is the state machine that walks a volunteer through an ordered list of
// stops, drives one verification engine at a time, and accumulates a
// StopRecord per stop. All exported methods are safe for concurrent use.
type Walk struct {
	mu         sync.Mutex
	id         string
	walkListID string
	volunteer  string
	targets    []models.Target
	current    int
	records    map[string]*models.StopRecord
	completed  bool
	retreated  bool

	history []snapshot
	redo    []snapshot

	source    location.Source
	store     Store
	events    Events
	verifyCfg verify.Config
	engine    *verify.Engine
	saver     *autosaver
	clock     func() int64
}

// New creates a session over the given targets. Call Start before anything else.
func New(id, walkListID, volunteer string, targets []models.Target, source location.Source, store Store, events Events, cfg verify.Config) *Walk {
	w := &Walk{
		id:         id,
		walkListID: walkListID,
		volunteer:  volunteer,
		targets:    targets,
		current:    -1,
		records:    make(map[string]*models.StopRecord),
		source:     source,
		store:      store,
		events:     events,
		verifyCfg:  cfg,
		clock:      func() int64 { return time.Now().UnixMilli() },
	}
	if store != nil {
		w.saver = newAutosaver(store, id)
	}
	return w
}

// Resume rebuilds a session from a persisted snapshot. Undo history does not
// survive a resume; only the structural state does.
func Resume(state models.SessionState, source location.Source, store Store, events Events, cfg verify.Config) (*Walk, error) {
	if len(state.Targets) == 0 {
		return nil, ErrNoTargets
	}

	w := New(state.ID, state.WalkListID, state.Volunteer, state.Targets, source, store, events, cfg)
	w.current = state.CurrentIndex
	w.completed = state.Completed
	for id, rec := range state.Records {
		w.records[id] = rec.Clone()
	}

	w.mu.Lock()
	var eng *verify.Engine
	if !w.completed {
		w.ensureCurrentRecordLocked()
		eng = w.buildEngineLocked()
	}
	w.mu.Unlock()

	beginEngine(eng)
	return w, nil
}

// ID returns the session identifier
func (w *Walk) ID() string { return w.id }

// Start positions the session at the first stop and begins verification for it
func (w *Walk) Start() error {
	if len(w.targets) == 0 {
		return ErrNoTargets
	}

	w.mu.Lock()
	if w.current >= 0 {
		w.mu.Unlock()
		return nil // already started
	}
	w.current = 0
	w.ensureCurrentRecordLocked()
	eng := w.buildEngineLocked()
	w.mu.Unlock()

	beginEngine(eng)
	w.autosave()
	return nil
}

// UpdateCurrent merges a partial update into the current stop record
func (w *Walk) UpdateCurrent(u FieldUpdate) error {
	w.mu.Lock()
	if w.completed {
		w.mu.Unlock()
		return ErrSessionCompleted
	}

	rec := w.ensureCurrentRecordLocked()
	if u.Fields != nil {
		for k, v := range u.Fields {
			if v == nil {
				delete(rec.Fields, k)
			} else {
				rec.Fields[k] = v
			}
		}
	}
	if u.ContactAttempted != nil {
		rec.ContactAttempted = *u.ContactAttempted
	}
	if u.ContactMade != nil {
		rec.ContactMade = *u.ContactMade
	}
	if u.Notes != nil {
		rec.Notes = *u.Notes
	}

	// A field edit invalidates any redone future, but does not snapshot:
	// undo granularity is per navigation, not per keystroke.
	w.redo = nil
	w.mu.Unlock()

	w.autosave()
	return nil
}

// CanAdvance reports whether the current stop may be finalized: the volunteer
// must have recorded a contact decision, and a verification-required stop must
// be Verified.
func (w *Walk) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canAdvanceLocked()
}

func (w *Walk) canAdvanceLocked() bool {
	if w.completed || w.current < 0 {
		return false
	}

	t := w.targets[w.current]
	rec := w.records[t.ID]
	if rec == nil || !rec.ContactAttempted {
		return false
	}
	return w.verifiedLocked(t, rec)
}

// verifiedLocked applies the verification gate. While an engine is live its
// state is authoritative; otherwise the recorded outcome on the stop stands.
func (w *Walk) verifiedLocked(t models.Target, rec *models.StopRecord) bool {
	if !t.VerificationRequired {
		return true
	}
	if w.engine != nil && w.engine.Target().ID == t.ID {
		return w.engine.State() == models.OutcomeVerified
	}
	return rec.Verification != nil && rec.Verification.Outcome == models.OutcomeVerified
}

// Advance finalizes the current stop and moves to the next one. Finalizing
// the last stop completes the session and emits SessionCompleted.
func (w *Walk) Advance() error {
	return w.finalizeAndAdvance(false)
}

// Skip finalizes the current stop without the verification gate, marking the
// contact as not attempted. Skip means "did not attempt this stop".
func (w *Walk) Skip() error {
	return w.finalizeAndAdvance(true)
}

func (w *Walk) finalizeAndAdvance(skip bool) error {
	w.mu.Lock()
	if w.completed || w.current < 0 {
		w.mu.Unlock()
		return ErrSessionCompleted
	}
	if !skip && !w.canAdvanceLocked() {
		w.mu.Unlock()
		return ErrNotReady
	}

	w.pushSnapshotLocked()

	rec := w.ensureCurrentRecordLocked()
	if skip {
		rec.ContactAttempted = false
	}
	if rec.Verification == nil && w.engine != nil && w.engine.Target().ID == rec.Target.ID {
		if win := w.engine.WinningAttempt(); win != nil {
			rec.Verification = win
		}
	}
	ts := w.clock()
	rec.FinalizedAtMs = &ts
	finalized := *rec.Clone()

	oldEngine := w.engine
	w.engine = nil
	w.retreated = false
	w.current++

	var completedRecords []models.StopRecord
	var newEngine *verify.Engine
	if w.current >= len(w.targets) {
		w.completed = true
		completedRecords = w.finalRecordsLocked()
	} else {
		w.ensureCurrentRecordLocked()
		newEngine = w.buildEngineLocked()
	}
	w.mu.Unlock()

	if oldEngine != nil {
		oldEngine.Stop()
	}
	beginEngine(newEngine)

	if w.events.StopFinalized != nil {
		w.events.StopFinalized(finalized)
	}
	if completedRecords != nil && w.events.SessionCompleted != nil {
		w.events.SessionCompleted(completedRecords)
	}

	w.autosave()
	return nil
}

// Retreat moves back to the immediately preceding stop and un-finalizes it so
// it can be edited. The recorded verification outcome is kept; call Reverify
// to demand a fresh fix.
func (w *Walk) Retreat() error {
	w.mu.Lock()
	if w.completed {
		w.mu.Unlock()
		return ErrSessionCompleted
	}
	if w.current <= 0 || w.retreated {
		w.mu.Unlock()
		return ErrInvalidRetreat
	}

	w.pushSnapshotLocked()

	oldEngine := w.engine
	w.engine = nil
	w.current--
	w.retreated = true

	rec := w.ensureCurrentRecordLocked()
	rec.FinalizedAtMs = nil

	eng := w.buildEngineLocked()
	w.mu.Unlock()

	if oldEngine != nil {
		oldEngine.Stop()
	}
	beginEngine(eng)

	w.autosave()
	return nil
}

// Undo restores the session to the state before the most recent navigation
func (w *Walk) Undo() error {
	w.mu.Lock()
	if len(w.history) == 0 {
		w.mu.Unlock()
		return ErrNothingToUndo
	}

	w.redo = append(w.redo, w.takeSnapshotLocked())
	s := w.history[len(w.history)-1]
	w.history = w.history[:len(w.history)-1]

	oldEngine, newEngine := w.restoreLocked(s)
	w.mu.Unlock()

	if oldEngine != nil {
		oldEngine.Stop()
	}
	beginEngine(newEngine)

	w.autosave()
	return nil
}

// Redo replays the most recently undone navigation
func (w *Walk) Redo() error {
	w.mu.Lock()
	if len(w.redo) == 0 {
		w.mu.Unlock()
		return ErrNothingToRedo
	}

	w.history = append(w.history, w.takeSnapshotLocked())
	s := w.redo[len(w.redo)-1]
	w.redo = w.redo[:len(w.redo)-1]

	oldEngine, newEngine := w.restoreLocked(s)
	w.mu.Unlock()

	if oldEngine != nil {
		oldEngine.Stop()
	}
	beginEngine(newEngine)

	w.autosave()
	return nil
}

// RetryVerification reopens an acquiring episode for the current stop
func (w *Walk) RetryVerification() error {
	w.mu.Lock()
	eng := w.engine
	w.mu.Unlock()

	if eng == nil {
		return ErrNoActiveVerification
	}
	return eng.Retry()
}

// Reverify discards the live engine for the current stop and starts a fresh
// one, demanding a new fix before the stop can be finalized again
func (w *Walk) Reverify() error {
	w.mu.Lock()
	if w.completed || w.current < 0 {
		w.mu.Unlock()
		return ErrSessionCompleted
	}

	t := w.targets[w.current]
	if !t.VerificationRequired {
		w.mu.Unlock()
		return ErrNoActiveVerification
	}

	oldEngine := w.engine
	w.ensureCurrentRecordLocked()
	eng := w.newEngineLocked(t)
	w.engine = eng
	w.mu.Unlock()

	if oldEngine != nil {
		oldEngine.Stop()
	}
	return eng.Begin()
}

// Verification reports the verification status of the current stop
func (w *Walk) Verification() (models.Outcome, int, []models.VerificationAttempt) {
	w.mu.Lock()
	eng := w.engine
	var recorded *models.VerificationAttempt
	if !w.completed && w.current >= 0 {
		if rec := w.records[w.targets[w.current].ID]; rec != nil {
			recorded = rec.Verification
		}
	}
	w.mu.Unlock()

	if eng != nil {
		return eng.State(), eng.Attempts(), eng.History()
	}
	if recorded != nil {
		return recorded.Outcome, recorded.AttemptNumber, nil
	}
	return models.OutcomeVerified, 0, nil
}

// Completed reports whether every stop has been finalized
func (w *Walk) Completed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed
}

// State returns a deep-copied serializable snapshot of the session
func (w *Walk) State() models.SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// FinalRecords returns finalized stop records in walk-list order
func (w *Walk) FinalRecords() []models.StopRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finalRecordsLocked()
}

// Close releases the live subscription and the autosave worker. Mandatory
// when the session ends or the volunteer navigates away.
func (w *Walk) Close() {
	w.mu.Lock()
	eng := w.engine
	w.engine = nil
	saver := w.saver
	w.saver = nil
	w.mu.Unlock()

	if eng != nil {
		eng.Stop()
	}
	if saver != nil {
		saver.close()
	}
}

func (w *Walk) stateLocked() models.SessionState {
	records := make(map[string]*models.StopRecord, len(w.records))
	for id, rec := range w.records {
		records[id] = rec.Clone()
	}
	targets := make([]models.Target, len(w.targets))
	copy(targets, w.targets)

	return models.SessionState{
		ID:           w.id,
		WalkListID:   w.walkListID,
		Volunteer:    w.volunteer,
		Targets:      targets,
		CurrentIndex: w.current,
		Records:      records,
		Completed:    w.completed,
	}
}

func (w *Walk) finalRecordsLocked() []models.StopRecord {
	out := make([]models.StopRecord, 0, len(w.targets))
	for _, t := range w.targets {
		if rec := w.records[t.ID]; rec != nil && rec.Finalized() {
			out = append(out, *rec.Clone())
		}
	}
	return out
}

func (w *Walk) ensureCurrentRecordLocked() *models.StopRecord {
	t := w.targets[w.current]
	rec := w.records[t.ID]
	if rec == nil {
		rec = &models.StopRecord{
			Target: t,
			Fields: make(map[string]interface{}),
		}
		w.records[t.ID] = rec
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]interface{})
	}
	return rec
}

// buildEngineLocked creates an engine for the current target when one is
// needed: verification required and no Verified outcome already on record.
// The returned engine still needs Begin called outside the lock.
func (w *Walk) buildEngineLocked() *verify.Engine {
	t := w.targets[w.current]
	rec := w.records[t.ID]

	if t.VerificationRequired && rec != nil &&
		rec.Verification != nil && rec.Verification.Outcome == models.OutcomeVerified {
		w.engine = nil
		return nil
	}

	eng := w.newEngineLocked(t)
	w.engine = eng
	return eng
}

func (w *Walk) newEngineLocked(t models.Target) *verify.Engine {
	var eng *verify.Engine
	eng = verify.New(t, w.source, w.verifyCfg, func(targetID string, outcome models.Outcome, attempt int) {
		w.recordAttempt(eng, targetID)
		if w.events.VerificationChanged != nil {
			w.events.VerificationChanged(targetID, outcome, attempt)
		}
		w.autosave()
	})
	return eng
}

// recordAttempt copies the engine's latest attempt onto the stop record so
// the audit trail survives the engine instance
func (w *Walk) recordAttempt(eng *verify.Engine, targetID string) {
	hist := eng.History()
	if len(hist) == 0 {
		return
	}
	last := hist[len(hist)-1]

	w.mu.Lock()
	if w.engine == eng {
		if rec := w.records[targetID]; rec != nil && !rec.Finalized() {
			rec.Verification = &last
		}
	}
	w.mu.Unlock()
}

func (w *Walk) autosave() {
	w.mu.Lock()
	saver := w.saver
	var state models.SessionState
	if saver != nil {
		state = w.stateLocked()
	}
	w.mu.Unlock()

	if saver != nil {
		saver.submit(state)
	}
}

func beginEngine(eng *verify.Engine) {
	if eng != nil {
		eng.Begin()
	}
}
