package storage

import (
	"context"

	"colonytrack/internal/domain"
)

// SchemaVersion is stamped into every backend on creation. A stored value
// that is absent or different causes the backend to destroy its backing
// storage and recreate it empty; there is no in-place migration. Callers
// repopulate by re-ingesting the journal.
const SchemaVersion = "3"

// Stats summarizes the stored projection.
type Stats struct {
	Systems    int
	Sites      int
	InProgress int
	Completed  int
}

// SiteStore provides access to construction-site storage.
//
// Implementations serialize every operation through one exclusive,
// non-reentrant critical section per store instance. UpdateCommodityProvided
// must not acquire that section itself: it composes GetByMarketID and
// UpsertSite, which do, and a second acquisition would deadlock.
type SiteStore interface {
	// UpsertSite inserts or fully replaces a site by market ID,
	// stamping UpdatedAt.
	UpsertSite(ctx context.Context, site *domain.ConstructionSite) error

	// GetByMarketID retrieves one site. Returns ErrNotFound if absent.
	GetByMarketID(ctx context.Context, marketID int64) (*domain.ConstructionSite, error)

	// GetBySystem retrieves all sites in a star system, ordered by
	// station name.
	GetBySystem(ctx context.Context, system string) ([]*domain.ConstructionSite, error)

	// ListSystems returns every star system with at least one site.
	ListSystems(ctx context.Context) ([]string, error)

	// ListAll returns every stored site.
	ListAll(ctx context.Context) ([]*domain.ConstructionSite, error)

	// Stats returns aggregate counts over the stored projection.
	Stats(ctx context.Context) (*Stats, error)

	// UpdateCommodityProvided raises one commodity's provided amount to
	// max(existing, provided). Missing site or commodity is a logged
	// no-op, not an error.
	UpdateCommodityProvided(ctx context.Context, marketID int64, name string, provided int) error

	// ClearAll removes every stored site.
	ClearAll(ctx context.Context) error
}
