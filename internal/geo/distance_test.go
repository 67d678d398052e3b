package geo

import (
	"math"
	"testing"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

func TestDistanceSymmetric(t *testing.T) {
	a := models.GeoCoordinate{Latitude: 40.7128, Longitude: -74.0060}
	b := models.GeoCoordinate{Latitude: 40.7484, Longitude: -73.9857}

	ab := DistanceMeters(a, b)
	ba := DistanceMeters(b, a)

	if math.Abs(ab-ba) > 1e-6 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceZeroForSamePoint(t *testing.T) {
	a := models.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}

	if d := DistanceMeters(a, a); math.Abs(d) > 1e-6 {
		t.Fatalf("expected 0 distance for identical points, got %f", d)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// Paris to London, roughly 343.5 km great-circle
	paris := models.GeoCoordinate{Latitude: 48.8566, Longitude: 2.3522}
	london := models.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}

	d := DistanceMeters(paris, london)
	if d < 340000 || d > 347000 {
		t.Fatalf("Paris-London distance out of range: %f m", d)
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	start := models.GeoCoordinate{Latitude: 35.6762, Longitude: 139.6503}

	for _, dist := range []float64{5, 15, 50, 1000} {
		dest := DestinationPoint(start, 45, dist)
		got := DistanceMeters(start, dest)
		if math.Abs(got-dist) > 0.01 {
			t.Errorf("destination at %f m measured back as %f m", dist, got)
		}
	}
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := models.GeoCoordinate{Latitude: 0, Longitude: 0}

	north := Bearing(origin, models.GeoCoordinate{Latitude: 1, Longitude: 0})
	if math.Abs(north) > 0.01 {
		t.Errorf("expected bearing ~0 for due north, got %f", north)
	}

	east := Bearing(origin, models.GeoCoordinate{Latitude: 0, Longitude: 1})
	if math.Abs(east-90) > 0.01 {
		t.Errorf("expected bearing ~90 for due east, got %f", east)
	}
}
