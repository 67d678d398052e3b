package session

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/fieldops/canvass-backend-go/internal/models"
)

// autosaver persists session snapshots fire-and-forget. A single worker
// drains a one-slot mailbox, so a newer payload supersedes an unsaved older
// one and at most one save is in flight. Failures are logged; the next
// trigger retries with fresher state.
type autosaver struct {
	store Store
	id    string

	mu        sync.Mutex
	pending   *models.SessionState
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newAutosaver(store Store, sessionID string) *autosaver {
	a := &autosaver{
		store: store,
		id:    sessionID,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *autosaver) submit(state models.SessionState) {
	a.mu.Lock()
	a.pending = &state
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *autosaver) close() {
	a.closeOnce.Do(func() { close(a.done) })
}

func (a *autosaver) run() {
	for {
		select {
		case <-a.done:
			a.flush()
			return
		case <-a.wake:
			a.flush()
		}
	}
}

func (a *autosaver) flush() {
	a.mu.Lock()
	state := a.pending
	a.pending = nil
	a.mu.Unlock()

	if state == nil {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		log.Printf("[WalkSession] failed to serialize session %s: %v", a.id, err)
		return
	}
	if err := a.store.Save(a.id, payload); err != nil {
		log.Printf("[WalkSession] autosave failed for session %s: %v", a.id, err)
	}
}
