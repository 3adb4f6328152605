package tracker

import (
	"testing"

	"colonytrack/internal/domain"
)

func TestTracker_Transitions(t *testing.T) {
	tr := New()

	system, station, docked := tr.Current()
	if system != "" || station != "" || docked {
		t.Fatalf("fresh tracker not blank: %q %q %v", system, station, docked)
	}

	// Location while docked sets all three.
	tr.Apply(&domain.Event{Kind: domain.KindLocation, Location: &domain.LocationEvent{
		StarSystem: "Sol", Docked: true, StationName: "Daedalus",
	}})
	system, station, docked = tr.Current()
	if system != "Sol" || station != "Daedalus" || !docked {
		t.Errorf("after docked location: %q %q %v", system, station, docked)
	}

	// Location while not docked clears the station.
	tr.Apply(&domain.Event{Kind: domain.KindLocation, Location: &domain.LocationEvent{
		StarSystem: "Sol", Docked: false, StationName: "Daedalus",
	}})
	_, station, docked = tr.Current()
	if station != "" || docked {
		t.Errorf("undocked location kept station %q docked=%v", station, docked)
	}

	// Dock.
	tr.Apply(&domain.Event{Kind: domain.KindDocked, Docked: &domain.DockedEvent{
		StarSystem: "Sol", StationName: "Galileo",
	}})
	system, station, docked = tr.Current()
	if system != "Sol" || station != "Galileo" || !docked {
		t.Errorf("after dock: %q %q %v", system, station, docked)
	}

	// A jump always undocks.
	tr.Apply(&domain.Event{Kind: domain.KindFSDJump, Jump: &domain.FSDJumpEvent{StarSystem: "Lave"}})
	system, station, docked = tr.Current()
	if system != "Lave" || station != "" || docked {
		t.Errorf("after jump: %q %q %v", system, station, docked)
	}
}

func TestTracker_Commander(t *testing.T) {
	tr := New()
	if tr.Commander() != "" {
		t.Fatal("fresh tracker has a commander")
	}
	tr.Apply(&domain.Event{Kind: domain.KindCommander, Commander: &domain.CommanderEvent{Name: "Jameson"}})
	if got := tr.Commander(); got != "Jameson" {
		t.Errorf("Commander = %q, want Jameson", got)
	}
}
