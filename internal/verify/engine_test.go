package verify

import (
	"testing"

	"github.com/fieldops/canvass-backend-go/internal/geo"
	"github.com/fieldops/canvass-backend-go/internal/location"
	"github.com/fieldops/canvass-backend-go/internal/models"
)

var testBase = models.GeoCoordinate{Latitude: 42.3601, Longitude: -71.0589}

func fixedClock(ms int64) func() int64 {
	return func() int64 { return ms }
}

func sampleNear(coord models.GeoCoordinate, accuracy float64, ts int64) models.LocationSample {
	return models.LocationSample{Coordinate: coord, AccuracyM: accuracy, CapturedAtMs: ts}
}

func startEngine(t *testing.T, target models.Target, src location.Source, cfg Config) *Engine {
	t.Helper()
	e := New(target, src, cfg, nil)
	if err := e.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	return e
}

func TestBoundaryValuesAccepted(t *testing.T) {
	// Place the fix ~15 m from the target and make the threshold exactly
	// that distance; <= semantics must accept it.
	fix := geo.DestinationPoint(testBase, 90, 15)
	dist := geo.DistanceMeters(fix, testBase)

	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         dist,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.Push(sampleNear(fix, 10, 2000)) // accuracy exactly at the threshold

	if got := e.State(); got != models.OutcomeVerified {
		t.Fatalf("expected Verified at exact thresholds, got %s", got)
	}

	win := e.WinningAttempt()
	if win == nil || win.Sample == nil {
		t.Fatal("expected winning attempt with a real sample")
	}
	if win.AttemptNumber != 1 {
		t.Errorf("expected winning attempt number 1, got %d", win.AttemptNumber)
	}
}

func TestAccuracyJustOverThresholdRejected(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.Push(sampleNear(testBase, 10.01, 2000))

	if got := e.State(); got != models.OutcomeAccuracyInsufficient {
		t.Fatalf("expected AccuracyInsufficient, got %s", got)
	}
	if e.Attempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", e.Attempts())
	}
}

func TestDistanceJustOverThresholdRejected(t *testing.T) {
	fix := geo.DestinationPoint(testBase, 180, 20)
	dist := geo.DistanceMeters(fix, testBase)

	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         dist - 0.01,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.Push(sampleNear(fix, 5, 2000))

	if got := e.State(); got != models.OutcomeTooFarFromTarget {
		t.Fatalf("expected TooFarFromTarget, got %s", got)
	}
}

func TestUnknownAccuracyRejected(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.Push(sampleNear(testBase, 0, 2000))

	if got := e.State(); got != models.OutcomeAccuracyInsufficient {
		t.Fatalf("expected AccuracyInsufficient for unknown accuracy, got %s", got)
	}
}

func TestNotRequiredShortCircuits(t *testing.T) {
	target := models.Target{ID: "t1", Coordinate: testBase, VerificationRequired: false}

	e := New(target, location.NewPushSource(), Config{}, nil)

	if got := e.State(); got != models.OutcomeVerified {
		t.Fatalf("expected immediate Verified, got %s", got)
	}
	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("expected single attempt record, got %d", len(hist))
	}
	if hist[0].Sample != nil {
		t.Fatal("short-circuit attempt must carry a nil sample")
	}
}

func TestExhaustionAndRetryRejected(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{MaxAttempts: 3, Clock: fixedClock(1000)})

	for i := 0; i < 3; i++ {
		src.Push(sampleNear(testBase, 50, int64(2000+i)))
	}

	if got := e.State(); got != models.OutcomeExhausted {
		t.Fatalf("expected Exhausted after 3 failed attempts, got %s", got)
	}
	if e.Attempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", e.Attempts())
	}

	if err := e.Retry(); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted from retry, got %v", err)
	}

	// Further samples must not move the state
	src.Push(sampleNear(testBase, 5, 3000))
	if got := e.State(); got != models.OutcomeExhausted {
		t.Fatalf("terminal state changed to %s", got)
	}
}

func TestStaleSampleIgnored(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(5000)})

	// Captured before the acquiring episode began: a cached fix
	src.Push(sampleNear(testBase, 5, 4999))

	if got := e.State(); got != models.OutcomeAcquiring {
		t.Fatalf("stale sample moved state to %s", got)
	}
	if e.Attempts() != 0 {
		t.Fatalf("stale sample consumed an attempt: %d", e.Attempts())
	}
	if len(e.History()) != 0 {
		t.Fatal("stale sample appended to history")
	}
}

func TestPermissionDeniedIsTerminal(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.PushError(&location.Error{Kind: location.PermissionDenied})

	if got := e.State(); got != models.OutcomeUnavailable {
		t.Fatalf("expected Unavailable, got %s", got)
	}
	if err := e.Retry(); err != ErrTerminalState {
		t.Fatalf("expected ErrTerminalState from retry, got %v", err)
	}
}

func TestTransientErrorBurnsAttempt(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: fixedClock(1000)})

	src.PushError(&location.Error{Kind: location.Timeout})

	if got := e.State(); got != models.OutcomeAcquiring {
		t.Fatalf("expected to remain Acquiring, got %s", got)
	}
	if e.Attempts() != 1 {
		t.Fatalf("expected timeout to count as an attempt, got %d", e.Attempts())
	}
}

func TestRetryReopensAcquiring(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	now := int64(1000)
	clock := func() int64 { return now }

	src := location.NewPushSource()
	e := startEngine(t, target, src, Config{Clock: clock})

	src.Push(sampleNear(testBase, 50, 2000))
	if got := e.State(); got != models.OutcomeAccuracyInsufficient {
		t.Fatalf("setup: expected AccuracyInsufficient, got %s", got)
	}

	now = 3000
	if err := e.Retry(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := e.State(); got != models.OutcomeAcquiring {
		t.Fatalf("expected Acquiring after retry, got %s", got)
	}

	// The new episode starts at 3000; a fix cached before it stays ignored
	src.Push(sampleNear(testBase, 5, 2500))
	if got := e.State(); got != models.OutcomeAcquiring {
		t.Fatalf("cached fix accepted after retry: %s", got)
	}

	src.Push(sampleNear(testBase, 5, 3500))
	if got := e.State(); got != models.OutcomeVerified {
		t.Fatalf("expected Verified, got %s", got)
	}
}

func TestChangeCallbackObservesTransitions(t *testing.T) {
	target := models.Target{
		ID:                   "t1",
		Coordinate:           testBase,
		RequiredAccuracyM:    10,
		MaxDistanceM:         15,
		VerificationRequired: true,
	}

	var seen []models.Outcome
	src := location.NewPushSource()
	e := New(target, src, Config{Clock: fixedClock(1000)}, func(id string, o models.Outcome, attempt int) {
		if id != "t1" {
			t.Errorf("unexpected target id %s", id)
		}
		seen = append(seen, o)
	})
	if err := e.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	src.Push(sampleNear(testBase, 50, 2000))
	src.Push(sampleNear(testBase, 5, 2100))

	want := []models.Outcome{models.OutcomeAccuracyInsufficient, models.OutcomeVerified}
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}
