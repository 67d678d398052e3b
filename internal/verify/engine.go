package verify

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fieldops/canvass-backend-go/internal/geo"
	"github.com/fieldops/canvass-backend-go/internal/location"
	"github.com/fieldops/canvass-backend-go/internal/models"
)

var (
	// ErrTerminalState is returned when Retry is called in Verified or Unavailable
	ErrTerminalState = errors.New("verify: engine is in a terminal state")
	// ErrExhausted is returned when Retry is called after the attempt budget ran out
	ErrExhausted = errors.New("verify: attempt budget exhausted")
)

// Config defines the retry policy for verification
type Config struct {
	MaxAttempts int          // total attempts including the first; <= 0 means DefaultMaxAttempts
	Clock       func() int64 // epoch ms; nil means wall clock
}

// DefaultMaxAttempts is 1 initial attempt plus 3 retries
const DefaultMaxAttempts = 4

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = func() int64 { return time.Now().UnixMilli() }
	}
	return c
}

// ChangeFunc is notified on every state transition of an engine
type ChangeFunc func(targetID string, outcome models.Outcome, attemptNumber int)

// Engine is a per-target verification state machine. It consumes fixes from a
// location.Source, gates them on accuracy and distance thresholds, and settles
// in a terminal outcome (Verified, Unavailable, or Exhausted).
//
// The engine owns at most one live subscription; Stop must be called when the
// caller moves to another target or ends the session.
type Engine struct {
	mu       sync.Mutex
	target   models.Target
	source   location.Source
	cfg      Config
	onChange ChangeFunc

	state          models.Outcome
	attempts       int
	history        []models.VerificationAttempt
	sub            location.Subscription
	episodeStartMs int64
	announced      bool
}

type change struct {
	outcome models.Outcome
	attempt int
}

// New creates an engine for the given target. When the target does not require
// verification the engine short-circuits to Verified with a nil sample, so the
// attempt history still distinguishes it from a genuine fix.
func New(target models.Target, source location.Source, cfg Config, onChange ChangeFunc) *Engine {
	e := &Engine{
		target:   target,
		source:   source,
		cfg:      cfg.normalized(),
		onChange: onChange,
		state:    models.OutcomeAcquiring,
	}

	if !target.VerificationRequired {
		e.state = models.OutcomeVerified
		e.history = append(e.history, models.VerificationAttempt{
			Outcome:       models.OutcomeVerified,
			AttemptNumber: 0,
		})
	}

	return e
}

// Begin subscribes to the source and opens the first acquiring episode. For a
// target that does not require verification it only announces the
// short-circuit Verified outcome. No-op once the engine is terminal.
func (e *Engine) Begin() error {
	e.mu.Lock()
	if !e.target.VerificationRequired && !e.announced {
		e.announced = true
		e.mu.Unlock()
		e.emit([]change{{outcome: models.OutcomeVerified, attempt: 0}})
		return nil
	}
	if e.state.Terminal() || e.sub != nil {
		e.mu.Unlock()
		return nil
	}
	e.episodeStartMs = e.cfg.Clock()
	e.mu.Unlock()

	sub, err := e.source.Watch(e.handleSample, e.handleError)
	if err != nil {
		e.handleError(err)
		return err
	}

	e.mu.Lock()
	if e.state.Terminal() {
		// A terminal transition raced the subscribe; release immediately.
		e.mu.Unlock()
		sub.Stop()
		return nil
	}
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Retry reopens an acquiring episode from a non-terminal state. It is the only
// externally triggered transition back into Acquiring.
func (e *Engine) Retry() error {
	e.mu.Lock()

	if e.state == models.OutcomeExhausted {
		e.mu.Unlock()
		return ErrExhausted
	}
	if e.state.Terminal() {
		e.mu.Unlock()
		return ErrTerminalState
	}
	if e.attempts >= e.cfg.MaxAttempts {
		e.mu.Unlock()
		return ErrExhausted
	}

	e.state = models.OutcomeAcquiring
	e.episodeStartMs = e.cfg.Clock()
	e.history = append(e.history, models.VerificationAttempt{
		Outcome:       models.OutcomeAcquiring,
		AttemptNumber: e.attempts,
	})
	needSub := e.sub == nil
	changes := []change{{outcome: models.OutcomeAcquiring, attempt: e.attempts}}
	e.mu.Unlock()

	e.emit(changes)

	if needSub {
		return e.Begin()
	}
	return nil
}

// Stop releases the live subscription, if any. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

// State returns the current outcome
func (e *Engine) State() models.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attempts returns how many attempts have been consumed
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// Target returns the target this engine verifies
func (e *Engine) Target() models.Target {
	return e.target
}

// History returns a copy of the append-only attempt history
func (e *Engine) History() []models.VerificationAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.VerificationAttempt, len(e.history))
	copy(out, e.history)
	return out
}

// WinningAttempt returns the attempt that settled the engine, or nil while
// the engine is still non-terminal
func (e *Engine) WinningAttempt() *models.VerificationAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Terminal() {
		return nil
	}
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].Outcome == e.state {
			a := e.history[i]
			return &a
		}
	}
	return nil
}

func (e *Engine) handleSample(sample models.LocationSample) {
	e.mu.Lock()

	if e.state.Terminal() {
		e.mu.Unlock()
		return
	}

	// A fix captured before this acquiring episode began is a cached position
	// from a previous stop; it must not count as an attempt.
	if sample.CapturedAtMs < e.episodeStartMs {
		e.mu.Unlock()
		return
	}

	dist := geo.DistanceMeters(sample.Coordinate, e.target.Coordinate)

	var changes []change
	switch {
	case !sample.HasKnownAccuracy() || sample.AccuracyM > e.target.RequiredAccuracyM:
		changes = e.resolveNonTerminalLocked(models.OutcomeAccuracyInsufficient, &sample, &dist)
	case dist > e.target.MaxDistanceM:
		changes = e.resolveNonTerminalLocked(models.OutcomeTooFarFromTarget, &sample, &dist)
	default:
		n := e.attempts + 1
		e.state = models.OutcomeVerified
		e.history = append(e.history, models.VerificationAttempt{
			Sample:        &sample,
			DistanceM:     &dist,
			Outcome:       models.OutcomeVerified,
			AttemptNumber: n,
		})
		changes = []change{{outcome: models.OutcomeVerified, attempt: n}}
	}

	sub := e.releaseIfTerminalLocked()
	e.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	e.emit(changes)
}

func (e *Engine) handleError(err error) {
	e.mu.Lock()

	if e.state.Terminal() {
		e.mu.Unlock()
		return
	}

	var changes []change
	switch location.KindOf(err) {
	case location.PermissionDenied, location.CapabilityMissing:
		e.state = models.OutcomeUnavailable
		e.history = append(e.history, models.VerificationAttempt{
			Outcome:       models.OutcomeUnavailable,
			AttemptNumber: e.attempts,
		})
		changes = []change{{outcome: models.OutcomeUnavailable, attempt: e.attempts}}
	default:
		// Timeout / position unavailable: stay in the last non-terminal
		// state but burn an attempt.
		log.Printf("[VerifyEngine] transient acquisition failure for target %s: %v", e.target.ID, err)
		changes = e.resolveNonTerminalLocked(e.state, nil, nil)
	}

	sub := e.releaseIfTerminalLocked()
	e.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	e.emit(changes)
}

// resolveNonTerminalLocked records a failed attempt, transitions to the given
// non-terminal outcome, and escalates to Exhausted when the budget runs out
func (e *Engine) resolveNonTerminalLocked(outcome models.Outcome, sample *models.LocationSample, dist *float64) []change {
	e.attempts++
	e.state = outcome
	e.history = append(e.history, models.VerificationAttempt{
		Sample:        sample,
		DistanceM:     dist,
		Outcome:       outcome,
		AttemptNumber: e.attempts,
	})
	changes := []change{{outcome: outcome, attempt: e.attempts}}

	if e.attempts >= e.cfg.MaxAttempts {
		e.state = models.OutcomeExhausted
		e.history = append(e.history, models.VerificationAttempt{
			Outcome:       models.OutcomeExhausted,
			AttemptNumber: e.attempts,
		})
		changes = append(changes, change{outcome: models.OutcomeExhausted, attempt: e.attempts})
	}

	return changes
}

func (e *Engine) releaseIfTerminalLocked() location.Subscription {
	if !e.state.Terminal() || e.sub == nil {
		return nil
	}
	sub := e.sub
	e.sub = nil
	return sub
}

func (e *Engine) emit(changes []change) {
	if e.onChange == nil {
		return
	}
	for _, c := range changes {
		e.onChange(e.target.ID, c.outcome, c.attempt)
	}
}
