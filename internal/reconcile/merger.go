// Package reconcile merges the locally-projected sites of one star system
// with the externally-fetched authoritative snapshot at read time.
package reconcile

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
	"colonytrack/internal/observability"
	"colonytrack/internal/storage"
)

// Merger combines local and external site state. It runs per read
// request, never during ingestion, and writes back any upgrades it finds.
type Merger struct {
	store  storage.SiteStore
	source Source
	logger logrus.FieldLogger
}

// NewMerger creates a merger over the given store and external source.
func NewMerger(store storage.SiteStore, source Source, logger logrus.FieldLogger) *Merger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Merger{store: store, source: source, logger: logger}
}

// Reconcile returns the merged, name-sorted site list for one star system.
//
// External rules: a site unknown locally is inserted as-is (tagged
// external). For a known site the external name, type and both lifecycle
// flags win unconditionally, while commodity provided amounts only ratchet
// upward — external data can advance local progress, never regress it.
// Any external failure degrades to local-only data.
func (m *Merger) Reconcile(ctx context.Context, system string) ([]*domain.ConstructionSite, error) {
	local, err := m.store.GetBySystem(ctx, system)
	if err != nil {
		return nil, err
	}

	external := m.fetchExternal(ctx, system)
	if len(external) == 0 {
		return local, nil // GetBySystem is already name-sorted
	}

	byMarket := make(map[int64]*domain.ConstructionSite, len(local))
	for _, site := range local {
		byMarket[site.MarketID] = site
	}

	for _, ext := range external {
		site, known := byMarket[ext.MarketID]
		if !known {
			ext.Source = domain.SourceExternal
			if err := m.store.UpsertSite(ctx, ext); err != nil {
				return nil, err
			}
			byMarket[ext.MarketID] = ext
			local = append(local, ext)
			observability.DefaultMetrics.ExternalSitesMerged.Inc()
			continue
		}

		mergeSite(site, ext)
		site.Source = domain.SourceExternal
		if err := m.store.UpsertSite(ctx, site); err != nil {
			return nil, err
		}
	}

	sort.Slice(local, func(i, j int) bool {
		return local[i].StationName < local[j].StationName
	})
	return local, nil
}

// fetchExternal wraps the source call; every failure is degraded to "no
// external data" so a community API outage never breaks local reads.
func (m *Merger) fetchExternal(ctx context.Context, system string) []*domain.ConstructionSite {
	external, err := m.source.FetchSystem(ctx, system)
	observability.RecordReconcileFetch(err)
	if err != nil {
		m.logger.WithError(err).WithField("system", system).
			Warn("external fetch failed, using local data only")
		return nil
	}
	return external
}

// mergeSite applies external precedence onto a locally-known site.
func mergeSite(site, ext *domain.ConstructionSite) {
	// External is authoritative for identity and lifecycle state.
	site.StationName = ext.StationName
	site.StationType = ext.StationType
	site.ConstructionComplete = ext.ConstructionComplete
	site.ConstructionFailed = ext.ConstructionFailed

	// Commodity progress is a one-directional ratchet.
	for _, extC := range ext.Commodities {
		key := commodity.Key(extC.Name)
		found := false
		for i := range site.Commodities {
			if commodity.Key(site.Commodities[i].Name) == key {
				if extC.Provided > site.Commodities[i].Provided {
					site.Commodities[i].Provided = extC.Provided
				}
				found = true
				break
			}
		}
		if !found {
			// Locally unseen requirement; adopt the external row.
			site.Commodities = append(site.Commodities, extC)
		}
	}
}
