package location

import (
	"context"
	"sync"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

// PushSource is a Source fed externally: the HTTP layer pushes device fixes
// into it, and tests push scripted fixes. It fans each push out to all live
// watch subscriptions and to any blocked GetOnce caller.
type PushSource struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]watchFns
	waiters map[int]chan onceResult
	closed  bool
}

type watchFns struct {
	onSample func(models.LocationSample)
	onError  func(error)
}

type onceResult struct {
	sample models.LocationSample
	err    error
}

// NewPushSource creates an empty push-fed source
func NewPushSource() *PushSource {
	return &PushSource{
		subs:    make(map[int]watchFns),
		waiters: make(map[int]chan onceResult),
	}
}

// Push delivers a fix to all subscribers and pending one-shot callers
func (s *PushSource) Push(sample models.LocationSample) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]watchFns, 0, len(s.subs))
	for _, f := range s.subs {
		fns = append(fns, f)
	}
	for id, ch := range s.waiters {
		ch <- onceResult{sample: sample}
		delete(s.waiters, id)
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may Stop() from within
	for _, f := range fns {
		f.onSample(sample)
	}
}

// PushError delivers an acquisition failure to all subscribers and pending
// one-shot callers
func (s *PushSource) PushError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]watchFns, 0, len(s.subs))
	for _, f := range s.subs {
		fns = append(fns, f)
	}
	for id, ch := range s.waiters {
		ch <- onceResult{err: err}
		delete(s.waiters, id)
	}
	s.mu.Unlock()

	for _, f := range fns {
		f.onError(err)
	}
}

// GetOnce blocks until the next pushed fix or failure, or until ctx expires
func (s *PushSource) GetOnce(ctx context.Context) (models.LocationSample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.LocationSample{}, &Error{Kind: CapabilityMissing, Message: "source closed"}
	}
	id := s.nextID
	s.nextID++
	ch := make(chan onceResult, 1)
	s.waiters[id] = ch
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res.sample, res.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return models.LocationSample{}, &Error{Kind: Timeout, Message: "no fix before deadline"}
		}
		return models.LocationSample{}, ctx.Err()
	}
}

// Watch registers callbacks for every subsequent push until Stop is called
func (s *PushSource) Watch(onSample func(models.LocationSample), onError func(error)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &Error{Kind: CapabilityMissing, Message: "source closed"}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = watchFns{onSample: onSample, onError: onError}

	return &pushSubscription{source: s, id: id}, nil
}

// Close releases the source; live subscriptions receive CapabilityMissing
func (s *PushSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := make([]watchFns, 0, len(s.subs))
	for _, f := range s.subs {
		fns = append(fns, f)
	}
	s.subs = make(map[int]watchFns)
	for id, ch := range s.waiters {
		ch <- onceResult{err: &Error{Kind: CapabilityMissing, Message: "source closed"}}
		delete(s.waiters, id)
	}
	s.mu.Unlock()

	for _, f := range fns {
		f.onError(&Error{Kind: CapabilityMissing, Message: "source closed"})
	}
}

type pushSubscription struct {
	source *PushSource
	id     int
	once   sync.Once
}

func (p *pushSubscription) Stop() {
	p.once.Do(func() {
		p.source.mu.Lock()
		delete(p.source.subs, p.id)
		p.source.mu.Unlock()
	})
}
