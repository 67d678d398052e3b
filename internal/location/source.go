package location

import (
	"context"
	"fmt"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

// ErrorKind classifies location acquisition failures. PermissionDenied and
// CapabilityMissing mean retrying will never help; Timeout and
// PositionUnavailable are transient.
type ErrorKind string

const (
	PermissionDenied    ErrorKind = "permission_denied"
	PositionUnavailable ErrorKind = "position_unavailable"
	Timeout             ErrorKind = "timeout"
	CapabilityMissing   ErrorKind = "capability_missing"
)

// Error is a location acquisition failure with a distinguished kind
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("location: %s", e.Kind)
	}
	return fmt.Sprintf("location: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the ErrorKind from an error, or "" if it is not a location error
func KindOf(err error) ErrorKind {
	if le, ok := err.(*Error); ok {
		return le.Kind
	}
	return ""
}

// Subscription is a live watch on a source. Stop releases it; Stop is
// idempotent and must be called when the subscriber is done.
type Subscription interface {
	Stop()
}

// Source abstracts the platform geolocation capability. It owns no retry or
// threshold logic; it only delivers fixes and classified failures.
//
// Watch delivers zero or more samples ordered by capture time until the
// subscription is stopped. GetOnce blocks for a single fix, honoring ctx
// cancellation and deadline.
type Source interface {
	GetOnce(ctx context.Context) (models.LocationSample, error)
	Watch(onSample func(models.LocationSample), onError func(error)) (Subscription, error)
}
