package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

func sampleAt(lat, lon float64, ts int64) models.LocationSample {
	return models.LocationSample{
		Coordinate:   models.GeoCoordinate{Latitude: lat, Longitude: lon},
		AccuracyM:    5,
		CapturedAtMs: ts,
	}
}

func TestWatchDeliversInOrder(t *testing.T) {
	src := NewPushSource()

	var got []models.LocationSample
	sub, err := src.Watch(func(s models.LocationSample) {
		got = append(got, s)
	}, func(err error) {
		t.Errorf("unexpected error callback: %v", err)
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer sub.Stop()

	src.Push(sampleAt(1, 1, 100))
	src.Push(sampleAt(2, 2, 200))

	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].CapturedAtMs != 100 || got[1].CapturedAtMs != 200 {
		t.Fatalf("samples out of order: %+v", got)
	}
}

func TestStopEndsDelivery(t *testing.T) {
	src := NewPushSource()

	count := 0
	sub, err := src.Watch(func(models.LocationSample) { count++ }, func(error) {})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	src.Push(sampleAt(1, 1, 100))
	sub.Stop()
	sub.Stop() // idempotent
	src.Push(sampleAt(2, 2, 200))

	if count != 1 {
		t.Fatalf("expected 1 delivery after stop, got %d", count)
	}
}

func TestGetOnceReceivesNextPush(t *testing.T) {
	src := NewPushSource()

	done := make(chan struct{})
	var got models.LocationSample
	var gotErr error
	go func() {
		got, gotErr = src.GetOnce(context.Background())
		close(done)
	}()

	// Let the waiter register before pushing
	time.Sleep(20 * time.Millisecond)
	src.Push(sampleAt(3, 4, 500))

	<-done
	if gotErr != nil {
		t.Fatalf("GetOnce failed: %v", gotErr)
	}
	if got.CapturedAtMs != 500 {
		t.Fatalf("wrong sample: %+v", got)
	}
}

func TestGetOnceTimesOut(t *testing.T) {
	src := NewPushSource()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := src.GetOnce(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if KindOf(err) != Timeout {
		t.Fatalf("expected Timeout kind, got %v", err)
	}
}

func TestWatchAfterCloseFails(t *testing.T) {
	src := NewPushSource()
	src.Close()

	_, err := src.Watch(func(models.LocationSample) {}, func(error) {})
	if KindOf(err) != CapabilityMissing {
		t.Fatalf("expected CapabilityMissing, got %v", err)
	}
}

func TestPushErrorReachesSubscriber(t *testing.T) {
	src := NewPushSource()

	var got error
	sub, err := src.Watch(func(models.LocationSample) {}, func(e error) { got = e })
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer sub.Stop()

	src.PushError(&Error{Kind: PositionUnavailable})

	if KindOf(got) != PositionUnavailable {
		t.Fatalf("expected PositionUnavailable, got %v", got)
	}
	if !errors.As(got, new(*Error)) {
		t.Fatalf("expected *location.Error, got %T", got)
	}
}
