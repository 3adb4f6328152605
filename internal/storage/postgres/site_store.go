package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
	"colonytrack/internal/observability"
	"colonytrack/internal/storage"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sites (
	market_id      BIGINT PRIMARY KEY,
	station_name   TEXT NOT NULL,
	station_type   TEXT NOT NULL,
	star_system    TEXT NOT NULL,
	system_address BIGINT NOT NULL,
	progress       DOUBLE PRECISION NOT NULL,
	complete       BOOLEAN NOT NULL,
	failed         BOOLEAN NOT NULL,
	commodities    JSONB NOT NULL,
	updated_at     BIGINT NOT NULL,
	source         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_star_system ON sites (star_system);
`

// SiteStore implements storage.SiteStore using PostgreSQL. The same
// reset-and-recreate schema policy as the sqlite backend applies, except
// "delete the backing file" becomes "drop the tables".
type SiteStore struct {
	mu     sync.Mutex
	pool   *Pool
	logger logrus.FieldLogger
}

// Compile-time interface check.
var _ storage.SiteStore = (*SiteStore)(nil)

// NewSiteStore creates a Postgres-backed site store, applying the schema
// and resetting it when the stored schema version does not match.
func NewSiteStore(ctx context.Context, pool *Pool, logger logrus.FieldLogger) (*SiteStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &SiteStore{pool: pool, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// initSchema creates the tables and stamps the schema version, dropping
// everything first when an older version is found.
func (s *SiteStore) initSchema(ctx context.Context) error {
	if !s.schemaCurrent(ctx) {
		s.logger.Warn("site schema version mismatch, dropping tables")
		observability.DefaultMetrics.SchemaResets.Inc()
		if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS sites, meta`); err != nil {
			return fmt.Errorf("drop stale schema: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', $1) ON CONFLICT (key) DO NOTHING`,
		storage.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// schemaCurrent reports whether the stored schema version matches. A fresh
// database (no tables yet) counts as current.
func (s *SiteStore) schemaCurrent(ctx context.Context) bool {
	var hasTables int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name IN ('meta', 'sites')`,
	).Scan(&hasTables)
	if err != nil || hasTables == 0 {
		return err == nil
	}

	var version string
	err = s.pool.QueryRow(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return false
	}
	return version == storage.SchemaVersion
}

// UpsertSite inserts or fully replaces a site by market ID.
func (s *SiteStore) UpsertSite(ctx context.Context, site *domain.ConstructionSite) error {
	if site == nil || site.MarketID == 0 {
		return storage.ErrInvalidInput
	}

	blob, err := json.Marshal(site.Commodities)
	if err != nil {
		return fmt.Errorf("encode commodities: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sites (
			market_id, station_name, station_type, star_system, system_address,
			progress, complete, failed, commodities, updated_at, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (market_id) DO UPDATE SET
			station_name = EXCLUDED.station_name,
			station_type = EXCLUDED.station_type,
			star_system = EXCLUDED.star_system,
			system_address = EXCLUDED.system_address,
			progress = EXCLUDED.progress,
			complete = EXCLUDED.complete,
			failed = EXCLUDED.failed,
			commodities = EXCLUDED.commodities,
			updated_at = EXCLUDED.updated_at,
			source = EXCLUDED.source
	`,
		site.MarketID,
		site.StationName,
		site.StationType,
		site.StarSystem,
		site.SystemAddress,
		site.Progress,
		site.ConstructionComplete,
		site.ConstructionFailed,
		string(blob),
		time.Now().UTC().UnixMilli(),
		site.Source,
	)
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}

const siteColumns = `market_id, station_name, station_type, star_system, system_address,
	progress, complete, failed, commodities, updated_at, source`

// GetByMarketID retrieves one site. Returns ErrNotFound if absent.
func (s *SiteStore) GetByMarketID(ctx context.Context, marketID int64) (*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE market_id = $1`, marketID)
	site, err := scanSite(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get site by market id: %w", err)
	}
	return site, nil
}

// GetBySystem retrieves all sites in a star system, ordered by station name.
func (s *SiteStore) GetBySystem(ctx context.Context, system string) ([]*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE star_system = $1 ORDER BY station_name ASC`, system)
	if err != nil {
		return nil, fmt.Errorf("get sites by system: %w", err)
	}
	defer rows.Close()

	return scanSites(rows)
}

// ListSystems returns every star system with at least one site, sorted.
func (s *SiteStore) ListSystems(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT star_system FROM sites WHERE star_system != '' ORDER BY star_system ASC`)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	var systems []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan system: %w", err)
		}
		systems = append(systems, name)
	}
	return systems, rows.Err()
}

// ListAll returns every stored site, ordered by market ID.
func (s *SiteStore) ListAll(ctx context.Context) ([]*domain.ConstructionSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM sites ORDER BY market_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	return scanSites(rows)
}

// Stats returns aggregate counts over the stored projection.
func (s *SiteStore) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &storage.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT star_system) FILTER (WHERE star_system != ''),
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT complete AND NOT failed),
			COUNT(*) FILTER (WHERE complete)
		FROM sites
	`).Scan(&stats.Systems, &stats.Sites, &stats.InProgress, &stats.Completed)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// UpdateCommodityProvided raises one commodity's provided amount to
// max(existing, provided).
//
// Composes GetByMarketID and UpsertSite, which each take the store mutex;
// taking it here as well would deadlock.
func (s *SiteStore) UpdateCommodityProvided(ctx context.Context, marketID int64, name string, provided int) error {
	site, err := s.GetByMarketID(ctx, marketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.WithField("market_id", marketID).
				Warn("commodity update for unknown site, skipping")
			return nil
		}
		return err
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
func (s *SiteStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, `DELETE FROM sites`); err != nil {
		return fmt.Errorf("clear sites: %w", err)
	}
	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*domain.ConstructionSite, error) {
	var (
		site      domain.ConstructionSite
		blob      []byte
		updatedMS int64
	)
	err := row.Scan(
		&site.MarketID,
		&site.StationName,
		&site.StationType,
		&site.StarSystem,
		&site.SystemAddress,
		&site.Progress,
		&site.ConstructionComplete,
		&site.ConstructionFailed,
		&blob,
		&updatedMS,
		&site.Source,
	)
	if err != nil {
		return nil, err
	}
	site.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	if err := json.Unmarshal(blob, &site.Commodities); err != nil {
		return nil, fmt.Errorf("decode commodities: %w", err)
	}
	return &site, nil
}

func scanSites(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*domain.ConstructionSite, error) {
	var sites []*domain.ConstructionSite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}
