// Package ingestion projects decoded journal events into the site store
// and the current-location tracker.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
	"colonytrack/internal/observability"
	"colonytrack/internal/storage"
	"colonytrack/internal/tracker"
)

// placeholderSystem is used when neither the stored site, the snapshot nor
// the tracker knows the star system.
const placeholderSystem = "Unknown"

// Engine consumes ordered event batches. It owns no notification fan-out:
// it only reports which star systems a batch touched.
type Engine struct {
	store   storage.SiteStore
	tracker *tracker.Tracker
	logger  logrus.FieldLogger
}

// NewEngine creates an ingestion engine over the given store and tracker.
func NewEngine(store storage.SiteStore, tr *tracker.Tracker, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{store: store, tracker: tr, logger: logger}
}

// Apply processes an ordered event batch (a whole file on first sight, an
// incremental tail afterwards) and returns the star systems whose sites
// changed, sorted and de-duplicated.
//
// A store failure stops the remaining events of this batch; systems
// already touched are still returned so the caller can fan out
// notifications for the partial application.
func (e *Engine) Apply(ctx context.Context, events []domain.Event) ([]string, error) {
	touched := make(map[string]bool)

	for i := range events {
		ev := &events[i]

		// Location state first: depot handling below reads the tracker.
		e.tracker.Apply(ev)

		var err error
		switch ev.Kind {
		case domain.KindDocked:
			err = e.applyDocked(ctx, ev.Docked, touched)
		case domain.KindColonisationDepot:
			err = e.applyDepot(ctx, ev.Depot, touched)
		case domain.KindColonisationContribution:
			err = e.applyContribution(ctx, ev.Contribution, touched)
		}
		if err != nil {
			observability.RecordIngestionError(string(ev.Kind))
			return sortedKeys(touched), fmt.Errorf("apply %s: %w", ev.Kind, err)
		}
	}

	return sortedKeys(touched), nil
}

// applyDocked upserts site metadata when the player docks at a
// construction facility. Commodity progress is never touched from a dock:
// a renamed station must not discard delivered amounts.
func (e *Engine) applyDocked(ctx context.Context, dock *domain.DockedEvent, touched map[string]bool) error {
	if !domain.IsConstructionDepot(dock.StationType) || dock.MarketID == 0 {
		return nil
	}

	site, err := e.store.GetByMarketID(ctx, dock.MarketID)
	switch {
	case err == nil:
		changed := false
		if dock.StationName != "" && site.StationName != dock.StationName {
			site.StationName = dock.StationName
			changed = true
		}
		if dock.StationType != "" && site.StationType != dock.StationType {
			site.StationType = dock.StationType
			changed = true
		}
		if dock.StarSystem != "" && site.StarSystem != dock.StarSystem {
			site.StarSystem = dock.StarSystem
			changed = true
		}
		if dock.SystemAddress != 0 && site.SystemAddress != dock.SystemAddress {
			site.SystemAddress = dock.SystemAddress
			changed = true
		}
		if !changed {
			return nil
		}
	case errors.Is(err, storage.ErrNotFound):
		// First contact with this market: placeholder until a depot
		// snapshot arrives.
		site = &domain.ConstructionSite{
			MarketID:      dock.MarketID,
			StationName:   dock.StationName,
			StationType:   dock.StationType,
			StarSystem:    dock.StarSystem,
			SystemAddress: dock.SystemAddress,
			Source:        domain.SourceJournal,
		}
	default:
		return err
	}

	if err := e.store.UpsertSite(ctx, site); err != nil {
		return err
	}
	observability.DefaultMetrics.SitesUpserted.Inc()
	touched[site.StarSystem] = true
	return nil
}

// applyDepot treats a depot snapshot as a replace-in-place of one site's
// progress and commodity list. Metadata is sticky: the snapshot's own
// metadata is used only for fields the stored site does not have yet,
// because the game re-emits snapshots with blank station/system fields
// while the player sits at the depot.
func (e *Engine) applyDepot(ctx context.Context, depot *domain.ColonisationDepot, touched map[string]bool) error {
	existing, err := e.store.GetByMarketID(ctx, depot.MarketID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	trackerSystem, trackerStation, trackerDocked := e.tracker.Current()

	site := &domain.ConstructionSite{
		MarketID:             depot.MarketID,
		Progress:             depot.ConstructionProgress * 100,
		ConstructionComplete: depot.ConstructionComplete,
		ConstructionFailed:   depot.ConstructionFailed,
		Source:               domain.SourceJournal,
	}

	if !trackerDocked {
		trackerStation = ""
	}
	site.StationName = pickMeta(metaOf(existing).StationName, depot.StationName, trackerStation, "")
	site.StationType = pickMeta(metaOf(existing).StationType, depot.StationType, "", "")
	site.StarSystem = pickMeta(metaOf(existing).StarSystem, depot.StarSystem, trackerSystem, placeholderSystem)
	site.SystemAddress = metaOf(existing).SystemAddress
	if site.SystemAddress == 0 {
		site.SystemAddress = depot.SystemAddress
	}

	site.Commodities = make([]domain.Commodity, 0, len(depot.ResourcesRequired))
	for _, r := range depot.ResourcesRequired {
		site.Commodities = append(site.Commodities, domain.Commodity{
			Name:      r.Name,
			LocalName: commodity.DisplayName(r.Name, r.NameLocalised),
			Required:  r.Required,
			Provided:  r.Provided,
			Payment:   r.Payment,
		})
	}

	if err := e.store.UpsertSite(ctx, site); err != nil {
		return err
	}
	observability.DefaultMetrics.SitesUpserted.Inc()
	touched[site.StarSystem] = true
	return nil
}

// applyContribution forwards the cumulative delivered total for one
// commodity. The store's max-merge guard makes duplicate and out-of-order
// delivery safe.
func (e *Engine) applyContribution(ctx context.Context, c *domain.ColonisationContribution, touched map[string]bool) error {
	if err := e.store.UpdateCommodityProvided(ctx, c.MarketID, c.Name, c.Amount); err != nil {
		return err
	}
	observability.DefaultMetrics.ContributionsMade.Inc()

	site, err := e.store.GetByMarketID(ctx, c.MarketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil // update was a no-op for an unknown site
		}
		return err
	}
	touched[site.StarSystem] = true
	return nil
}

// metaOf lets the metadata pickers read from a possibly-nil site.
func metaOf(site *domain.ConstructionSite) *domain.ConstructionSite {
	if site == nil {
		return &domain.ConstructionSite{}
	}
	return site
}

// pickMeta returns the first non-blank value in priority order:
// stored site, snapshot, tracker, placeholder.
func pickMeta(existing, snapshot, fromTracker, placeholder string) string {
	switch {
	case existing != "":
		return existing
	case snapshot != "":
		return snapshot
	case fromTracker != "":
		return fromTracker
	default:
		return placeholder
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
