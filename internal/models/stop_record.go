package models

// StopRecord represents the data collected at one stop. It is mutated while
// the stop is current and frozen once FinalizedAtMs is set.
type StopRecord struct {
	Target           Target                 `json:"target"`
	Verification     *VerificationAttempt   `json:"verification,omitempty"`
	ContactAttempted bool                   `json:"contactAttempted"`
	ContactMade      bool                   `json:"contactMade"`
	Fields           map[string]interface{} `json:"fields"`
	Notes            string                 `json:"notes"`
	FinalizedAtMs    *int64                 `json:"finalizedAtEpochMs,omitempty"`
}

// Finalized reports whether the record has been frozen by advancing past it
func (r *StopRecord) Finalized() bool {
	return r.FinalizedAtMs != nil
}

// Clone returns a deep copy of the record
func (r *StopRecord) Clone() *StopRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Verification != nil {
		v := *r.Verification
		if r.Verification.Sample != nil {
			s := *r.Verification.Sample
			v.Sample = &s
		}
		if r.Verification.DistanceM != nil {
			d := *r.Verification.DistanceM
			v.DistanceM = &d
		}
		c.Verification = &v
	}
	if r.FinalizedAtMs != nil {
		t := *r.FinalizedAtMs
		c.FinalizedAtMs = &t
	}
	c.Fields = make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return &c
}
