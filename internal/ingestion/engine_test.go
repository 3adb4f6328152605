package ingestion

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"colonytrack/internal/domain"
	"colonytrack/internal/storage"
	"colonytrack/internal/storage/memory"
	"colonytrack/internal/tracker"
)

func newTestEngine() (*Engine, *memory.SiteStore, *tracker.Tracker) {
	store := memory.NewSiteStore(nil)
	tr := tracker.New()
	return NewEngine(store, tr, nil), store, tr
}

func at(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func dockedEvent(marketID int64, station, stationType, system string) domain.Event {
	return domain.Event{
		Timestamp: at(0),
		Kind:      domain.KindDocked,
		Docked: &domain.DockedEvent{
			StationName:   station,
			StationType:   stationType,
			StarSystem:    system,
			SystemAddress: 999,
			MarketID:      marketID,
		},
	}
}

func depotEvent(marketID int64, progress float64, resources []domain.DepotResource) domain.Event {
	return domain.Event{
		Timestamp: at(1),
		Kind:      domain.KindColonisationDepot,
		Depot: &domain.ColonisationDepot{
			MarketID:             marketID,
			ConstructionProgress: progress,
			ResourcesRequired:    resources,
		},
	}
}

func contributionEvent(marketID int64, name string, total int) domain.Event {
	return domain.Event{
		Timestamp: at(2),
		Kind:      domain.KindColonisationContribution,
		Contribution: &domain.ColonisationContribution{
			MarketID: marketID,
			Name:     name,
			Amount:   total,
		},
	}
}

func TestEngine_DockAtPlaceholder(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	touched, err := engine.Apply(ctx, []domain.Event{
		dockedEvent(100, "Alpha Site", domain.StationTypeSpaceConstructionDepot, "Sol"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(touched, []string{"Sol"}) {
		t.Errorf("touched = %v, want [Sol]", touched)
	}

	site, err := store.GetByMarketID(ctx, 100)
	if err != nil {
		t.Fatalf("site not created: %v", err)
	}
	if site.Progress != 0 || len(site.Commodities) != 0 {
		t.Errorf("placeholder not empty: progress=%v commodities=%v", site.Progress, site.Commodities)
	}

	// A depot snapshot fills in commodities...
	_, err = engine.Apply(ctx, []domain.Event{
		depotEvent(100, 0.5, []domain.DepotResource{
			{Name: "$steel_name;", NameLocalised: "Steel", Required: 1000, Provided: 500, Payment: 3000},
		}),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// ...and a later dock under a corrected name keeps them.
	_, err = engine.Apply(ctx, []domain.Event{
		dockedEvent(100, "Alpha Site Renamed", domain.StationTypeSpaceConstructionDepot, "Sol"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	site, _ = store.GetByMarketID(ctx, 100)
	if site.StationName != "Alpha Site Renamed" {
		t.Errorf("StationName = %q", site.StationName)
	}
	if len(site.Commodities) != 1 || site.Commodities[0].Provided != 500 {
		t.Errorf("commodities lost on rename: %+v", site.Commodities)
	}
}

func TestEngine_DockAtOrdinaryStationIgnored(t *testing.T) {
	engine, store, tr := newTestEngine()
	ctx := context.Background()

	touched, err := engine.Apply(ctx, []domain.Event{
		dockedEvent(200, "Daedalus", "Orbis", "Sol"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("touched = %v, want none", touched)
	}
	if _, err := store.GetByMarketID(ctx, 200); !errors.Is(err, storage.ErrNotFound) {
		t.Error("ordinary station created a site")
	}

	// The tracker still advances.
	system, station, docked := tr.Current()
	if system != "Sol" || station != "Daedalus" || !docked {
		t.Errorf("tracker = %q %q %v", system, station, docked)
	}
}

func TestEngine_DepotMetadataFallbackChain(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	// The snapshot has blank metadata; the tracker knows where we are.
	_, err := engine.Apply(ctx, []domain.Event{
		dockedEvent(100, "Alpha Site", domain.StationTypeSpaceConstructionDepot, "Sol"),
		depotEvent(100, 0.25, []domain.DepotResource{
			{Name: "$steel_name;", NameLocalised: "Steel", Required: 1000, Provided: 250},
		}),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	site, _ := store.GetByMarketID(ctx, 100)
	if site.StarSystem != "Sol" || site.StationName != "Alpha Site" {
		t.Errorf("metadata not preserved: %q %q", site.StarSystem, site.StationName)
	}
	if site.Progress != 25 {
		t.Errorf("Progress = %v, want 25", site.Progress)
	}

	// With no prior site and no tracker state the system falls back to
	// the placeholder literal.
	engine2, store2, _ := newTestEngine()
	_, err = engine2.Apply(ctx, []domain.Event{depotEvent(300, 0, nil)})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	site, _ = store2.GetByMarketID(ctx, 300)
	if site.StarSystem != "Unknown" {
		t.Errorf("StarSystem = %q, want Unknown", site.StarSystem)
	}
}

func TestEngine_DepotSnapshotStatus(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.Apply(ctx, []domain.Event{
		depotEvent(100, 0.5, []domain.DepotResource{
			{Name: "$steel_name;", NameLocalised: "Steel", Required: 1000, Provided: 500},
		}),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	site, _ := store.GetByMarketID(ctx, 100)
	c := site.Commodities[0]
	if c.Remaining() != 500 {
		t.Errorf("Remaining = %d, want 500", c.Remaining())
	}
	if c.Status() != domain.StatusInProgress {
		t.Errorf("Status = %s, want in_progress", c.Status())
	}
}

func TestEngine_ContributionCumulativeAndIdempotent(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	batch := []domain.Event{
		depotEvent(100, 0.1, []domain.DepotResource{
			{Name: "$steel_name;", NameLocalised: "Steel", Required: 1000, Provided: 100},
		}),
		contributionEvent(100, "Steel", 400),
		contributionEvent(100, "Steel", 400), // duplicate delivery
		contributionEvent(100, "Steel", 300), // stale, out of order
	}

	touched, err := engine.Apply(ctx, batch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(touched, []string{"Unknown"}) {
		t.Errorf("touched = %v", touched)
	}

	site, _ := store.GetByMarketID(ctx, 100)
	if site.Commodities[0].Provided != 400 {
		t.Errorf("Provided = %d, want 400", site.Commodities[0].Provided)
	}

	// Ingesting the identical batch again changes nothing.
	if _, err := engine.Apply(ctx, batch); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	again, _ := store.GetByMarketID(ctx, 100)
	if again.Commodities[0].Provided != 400 || len(again.Commodities) != 1 {
		t.Errorf("re-ingestion changed state: %+v", again.Commodities)
	}
}

func TestEngine_ContributionForUnknownSiteIsNoop(t *testing.T) {
	engine, _, _ := newTestEngine()

	touched, err := engine.Apply(context.Background(), []domain.Event{
		contributionEvent(404, "Steel", 100),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("touched = %v, want none", touched)
	}
}

// failingStore rejects upserts after N successes to simulate a mid-batch
// storage failure.
type failingStore struct {
	storage.SiteStore
	remaining int
}

var errDiskGone = errors.New("disk gone")

func (f *failingStore) UpsertSite(ctx context.Context, site *domain.ConstructionSite) error {
	if f.remaining <= 0 {
		return errDiskGone
	}
	f.remaining--
	return f.SiteStore.UpsertSite(ctx, site)
}

func TestEngine_StoreFailureStopsBatchKeepsTouched(t *testing.T) {
	store := &failingStore{SiteStore: memory.NewSiteStore(nil), remaining: 1}
	engine := NewEngine(store, tracker.New(), nil)

	touched, err := engine.Apply(context.Background(), []domain.Event{
		dockedEvent(1, "Alpha", domain.StationTypeSpaceConstructionDepot, "Sol"),
		dockedEvent(2, "Bravo", domain.StationTypeSpaceConstructionDepot, "Lave"),
		dockedEvent(3, "Charlie", domain.StationTypeSpaceConstructionDepot, "Riedquat"),
	})
	if !errors.Is(err, errDiskGone) {
		t.Fatalf("err = %v, want errDiskGone", err)
	}
	if !reflect.DeepEqual(touched, []string{"Sol"}) {
		t.Errorf("touched = %v, want [Sol]", touched)
	}
}
