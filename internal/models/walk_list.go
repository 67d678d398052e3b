package models

import "time"

// WalkList represents an ordered set of targets a volunteer visits in one session
type WalkList struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Targets   []Target  `json:"targets" db:"targets_json"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// SessionState is the serializable snapshot of a walk session, as persisted
// to the session store and handed to the UI
type SessionState struct {
	ID           string                 `json:"id"`
	WalkListID   string                 `json:"walkListId"`
	Volunteer    string                 `json:"volunteer"`
	Targets      []Target               `json:"targets"`
	CurrentIndex int                    `json:"currentIndex"`
	Records      map[string]*StopRecord `json:"records"`
	Completed    bool                   `json:"completed"`
}
