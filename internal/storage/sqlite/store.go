// Package sqlite provides the file-backed SiteStore.
//
// The schema-version policy is reset-and-recreate: a database created by a
// different schema version is deleted outright and rebuilt empty. The
// journal on disk is the source of truth, so callers repopulate by
// re-ingesting it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

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
	market_id      INTEGER PRIMARY KEY,
	station_name   TEXT NOT NULL,
	station_type   TEXT NOT NULL,
	star_system    TEXT NOT NULL,
	system_address INTEGER NOT NULL,
	progress       REAL NOT NULL,
	complete       INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	commodities    TEXT NOT NULL,
	updated_at     INTEGER NOT NULL,
	source         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_star_system ON sites (star_system);
`

// SiteStore persists construction sites in a single SQLite file.
type SiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	logger logrus.FieldLogger
}

// Compile-time interface check.
var _ storage.SiteStore = (*SiteStore)(nil)

// Open opens (or creates) the site database at path. A schema version
// mismatch deletes the backing file and starts over empty.
func Open(path string, logger logrus.FieldLogger) (*SiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cleanPath := filepath.Clean(path)

	db, err := openDB(cleanPath)
	if err != nil {
		return nil, err
	}

	if !schemaCurrent(db) {
		logger.WithField("path", cleanPath).
			Warn("site database schema version mismatch, resetting")
		observability.DefaultMetrics.SchemaResets.Inc()
		_ = db.Close()
		if err := removeDatabase(cleanPath); err != nil {
			return nil, fmt.Errorf("reset site database: %w", err)
		}
		db, err = openDB(cleanPath)
		if err != nil {
			return nil, err
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SiteStore{db: db, logger: logger}, nil
}

// Close closes the database handle.
func (s *SiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openDB(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// schemaCurrent reports whether the stored schema version matches
// storage.SchemaVersion. A missing meta table or row counts as a mismatch
// only when the sites table already exists; a brand-new file is current.
func schemaCurrent(db *sql.DB) bool {
	var hasTables int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('meta', 'sites')`,
	).Scan(&hasTables)
	if err != nil {
		return false
	}
	if hasTables == 0 {
		return true // fresh database
	}

	var version string
	err = db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return false
	}
	return version == storage.SchemaVersion
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		storage.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// removeDatabase deletes the database file and its WAL sidecars.
func removeDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sites (
			market_id, station_name, station_type, star_system, system_address,
			progress, complete, failed, commodities, updated_at, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market_id) DO UPDATE SET
			station_name = excluded.station_name,
			station_type = excluded.station_type,
			star_system = excluded.star_system,
			system_address = excluded.system_address,
			progress = excluded.progress,
			complete = excluded.complete,
			failed = excluded.failed,
			commodities = excluded.commodities,
			updated_at = excluded.updated_at,
			source = excluded.source
	`,
		site.MarketID,
		site.StationName,
		site.StationType,
		site.StarSystem,
		site.SystemAddress,
		site.Progress,
		boolToInt(site.ConstructionComplete),
		boolToInt(site.ConstructionFailed),
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

	row := s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE market_id = ?`, marketID)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE star_system = ? ORDER BY station_name ASC`, system)
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

	rows, err := s.db.QueryContext(ctx,
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

	rows, err := s.db.QueryContext(ctx,
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
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT CASE WHEN star_system != '' THEN star_system END),
			COUNT(*),
			COALESCE(SUM(CASE WHEN complete = 0 AND failed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(complete), 0)
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

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sites`); err != nil {
		return fmt.Errorf("clear sites: %w", err)
	}
	return nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*domain.ConstructionSite, error) {
	var (
		site      domain.ConstructionSite
		complete  int
		failed    int
		blob      string
		updatedMS int64
	)
	err := row.Scan(
		&site.MarketID,
		&site.StationName,
		&site.StationType,
		&site.StarSystem,
		&site.SystemAddress,
		&site.Progress,
		&complete,
		&failed,
		&blob,
		&updatedMS,
		&site.Source,
	)
	if err != nil {
		return nil, err
	}
	site.ConstructionComplete = complete != 0
	site.ConstructionFailed = failed != 0
	site.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	if err := json.Unmarshal([]byte(blob), &site.Commodities); err != nil {
		return nil, fmt.Errorf("decode commodities: %w", err)
	}
	return &site, nil
}

func scanSites(rows *sql.Rows) ([]*domain.ConstructionSite, error) {
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
