package models

// Outcome represents the state of a verification attempt against a target
type Outcome string

const (
	OutcomeAcquiring            Outcome = "acquiring"
	OutcomeAccuracyInsufficient Outcome = "accuracy_insufficient"
	OutcomeTooFarFromTarget     Outcome = "too_far_from_target"
	OutcomeVerified             Outcome = "verified"
	OutcomeUnavailable          Outcome = "unavailable"
	OutcomeExhausted            Outcome = "exhausted"
)

// Terminal reports whether no further automatic transition can occur
func (o Outcome) Terminal() bool {
	return o == OutcomeVerified || o == OutcomeUnavailable || o == OutcomeExhausted
}

// Target represents one stop on a walk list, e.g. a voter address
type Target struct {
	ID                   string        `json:"id"`
	Coordinate           GeoCoordinate `json:"coordinate"`
	RequiredAccuracyM    float64       `json:"requiredAccuracyMeters"`
	MaxDistanceM         float64       `json:"maxDistanceMeters"`
	VerificationRequired bool          `json:"verificationRequired"`
}

// VerificationAttempt records one evaluation of the engine against a target.
// Sample is nil for attempts that did not consume a fix (source failures,
// exhaustion, and the short-circuit path when verification is not required).
type VerificationAttempt struct {
	Sample        *LocationSample `json:"sample,omitempty"`
	DistanceM     *float64        `json:"distanceMeters,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	AttemptNumber int             `json:"attemptNumber"`
}
