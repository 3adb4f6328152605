// Package memory provides an in-memory SiteStore used by tests and the
// -use-memory run mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
	"colonytrack/internal/storage"
)

// SiteStore is an in-memory implementation of storage.SiteStore.
type SiteStore struct {
	mu     sync.Mutex
	sites  map[int64]*domain.ConstructionSite
	logger logrus.FieldLogger
}

// Compile-time interface check.
var _ storage.SiteStore = (*SiteStore)(nil)

// NewSiteStore creates a new in-memory site store.
func NewSiteStore(logger logrus.FieldLogger) *SiteStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SiteStore{
		sites:  make(map[int64]*domain.ConstructionSite),
		logger: logger,
	}
}

// UpsertSite inserts or fully replaces a site by market ID.
func (s *SiteStore) UpsertSite(_ context.Context, site *domain.ConstructionSite) error {
	if site == nil || site.MarketID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := site.Clone()
	cp.UpdatedAt = time.Now().UTC()
	s.sites[cp.MarketID] = cp
	return nil
}

// GetByMarketID retrieves one site. Returns ErrNotFound if absent.
func (s *SiteStore) GetByMarketID(_ context.Context, marketID int64) (*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	site, ok := s.sites[marketID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return site.Clone(), nil
}

// GetBySystem retrieves all sites in a star system, ordered by station name.
func (s *SiteStore) GetBySystem(_ context.Context, system string) ([]*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ConstructionSite
	for _, site := range s.sites {
		if site.StarSystem == system {
			result = append(result, site.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StationName < result[j].StationName
	})
	return result, nil
}

// ListSystems returns every star system with at least one site, sorted.
func (s *SiteStore) ListSystems(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var systems []string
	for _, site := range s.sites {
		if site.StarSystem != "" && !seen[site.StarSystem] {
			seen[site.StarSystem] = true
			systems = append(systems, site.StarSystem)
		}
	}
	sort.Strings(systems)
	return systems, nil
}

// ListAll returns every stored site, ordered by market ID.
func (s *SiteStore) ListAll(_ context.Context) ([]*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.ConstructionSite, 0, len(s.sites))
	for _, site := range s.sites {
		result = append(result, site.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID < result[j].MarketID
	})
	return result, nil
}

// Stats returns aggregate counts over the stored projection.
func (s *SiteStore) Stats(_ context.Context) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &storage.Stats{}
	systems := make(map[string]bool)
	for _, site := range s.sites {
		stats.Sites++
		if site.StarSystem != "" {
			systems[site.StarSystem] = true
		}
		if site.ConstructionComplete {
			stats.Completed++
		} else if !site.ConstructionFailed {
			stats.InProgress++
		}
	}
	stats.Systems = len(systems)
	return stats, nil
}

// UpdateCommodityProvided raises one commodity's provided amount to
// max(existing, provided).
//
// Deliberately lock-free at this level: it composes GetByMarketID and
// UpsertSite, which each take the store mutex.
func (s *SiteStore) UpdateCommodityProvided(ctx context.Context, marketID int64, name string, provided int) error {
	site, err := s.GetByMarketID(ctx, marketID)
	if err != nil {
		s.logger.WithField("market_id", marketID).
			Warn("commodity update for unknown site, skipping")
		return nil
	}

	key := commodity.Key(name)
	found := false
	for i := range site.Commodities {
		if commodity.Key(site.Commodities[i].Name) == key {
			if provided > site.Commodities[i].Provided {
				site.Commodities[i].Provided = provided
			}
			found = true
			break
		}
	}
	if !found {
		s.logger.WithFields(logrus.Fields{
			"market_id": marketID,
			"commodity": key,
		}).Warn("commodity update for unknown commodity, skipping")
		return nil
	}

	return s.UpsertSite(ctx, site)
}

// ClearAll removes every stored site.
func (s *SiteStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sites = make(map[int64]*domain.ConstructionSite)
	return nil
}
