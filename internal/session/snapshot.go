package session

import (
	"github.com/fieldops/canvass-backend-go/internal/models"
	"github.com/fieldops/canvass-backend-go/internal/verify"
)

// snapshot is an immutable structural copy of the session used for undo/redo.
// Live engine instances are never captured; they are rebuilt on restore.
type snapshot struct {
	current   int
	completed bool
	retreated bool
	records   map[string]*models.StopRecord
}

func (w *Walk) takeSnapshotLocked() snapshot {
	records := make(map[string]*models.StopRecord, len(w.records))
	for id, rec := range w.records {
		records[id] = rec.Clone()
	}
	return snapshot{
		current:   w.current,
		completed: w.completed,
		retreated: w.retreated,
		records:   records,
	}
}

// pushSnapshotLocked records the pre-mutation state and invalidates the redo stack
func (w *Walk) pushSnapshotLocked() {
	w.history = append(w.history, w.takeSnapshotLocked())
	w.redo = nil
}

// restoreLocked installs a snapshot and rebuilds the engine for the restored
// current stop. It returns the engine to stop and the engine to begin, both
// to be handled outside the lock.
func (w *Walk) restoreLocked(s snapshot) (oldEngine, newEngine *verify.Engine) {
	oldEngine = w.engine
	w.engine = nil

	w.current = s.current
	w.completed = s.completed
	w.retreated = s.retreated
	w.records = make(map[string]*models.StopRecord, len(s.records))
	for id, rec := range s.records {
		// Clone again so the snapshot stays reusable by redo
		w.records[id] = rec.Clone()
	}

	if !w.completed && w.current >= 0 && w.current < len(w.targets) {
		w.ensureCurrentRecordLocked()
		newEngine = w.buildEngineLocked()
	}

	return oldEngine, newEngine
}
