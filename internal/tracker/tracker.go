// Package tracker keeps the ephemeral "where is the player now" state.
package tracker

import (
	"sync"

	"colonytrack/internal/domain"
)

// Tracker is a small state machine over Location, FSDJump, Docked and
// Commander events. State is in-memory only; a restart starts blank until
// the journal is replayed.
type Tracker struct {
	mu        sync.Mutex
	system    string
	station   string
	docked    bool
	commander string
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Apply advances the tracker for one event. Events of other kinds are
// ignored.
func (t *Tracker) Apply(ev *domain.Event) {
	if ev == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case domain.KindLocation:
		t.system = ev.Location.StarSystem
		t.docked = ev.Location.Docked
		if ev.Location.Docked {
			t.station = ev.Location.StationName
		} else {
			t.station = ""
		}
	case domain.KindFSDJump:
		// A jump always undocks.
		t.system = ev.Jump.StarSystem
		t.station = ""
		t.docked = false
	case domain.KindDocked:
		t.system = ev.Docked.StarSystem
		t.station = ev.Docked.StationName
		t.docked = true
	case domain.KindCommander:
		t.commander = ev.Commander.Name
	}
}

// Current returns the current system, station and docked flag. System and
// station are empty until the corresponding events have been seen; station
// is only meaningful while docked.
func (t *Tracker) Current() (system, station string, docked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.system, t.station, t.docked
}

// Commander returns the last seen commander name, if any.
func (t *Tracker) Commander() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commander
}
