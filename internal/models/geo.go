package models

// GeoCoordinate represents a point on the Earth's surface in decimal degrees
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample represents one device position fix with reported accuracy
type LocationSample struct {
	Coordinate   GeoCoordinate `json:"coordinate"`
	AccuracyM    float64       `json:"accuracyMeters"`    // 1-sigma radius; <= 0 means unknown
	CapturedAtMs int64         `json:"capturedAtEpochMs"` // Unix timestamp in milliseconds
}

// HasKnownAccuracy reports whether the platform supplied a usable accuracy radius
func (s LocationSample) HasKnownAccuracy() bool {
	return s.AccuracyM > 0
}
