package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"colonytrack/internal/domain"
	"colonytrack/internal/storage"
)

func openTestStore(t *testing.T) (*SiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.db")
	store, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func testSite(marketID int64, system, station string) *domain.ConstructionSite {
	return &domain.ConstructionSite{
		MarketID:    marketID,
		StationName: station,
		StationType: domain.StationTypeSpaceConstructionDepot,
		StarSystem:  system,
		Progress:    50,
		Commodities: []domain.Commodity{
			{Name: "$steel_name;", LocalName: "Steel", Required: 1000, Provided: 500, Payment: 3000},
			{Name: "$aluminium_name;", LocalName: "Aluminium", Required: 400, Provided: 400, Payment: 1500},
		},
		Source: domain.SourceJournal,
	}
}

func TestStore_UpsertRoundtrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSite(ctx, testSite(100, "Sol", "Alpha")))

	got, err := store.GetByMarketID(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, "Alpha", got.StationName)
	require.Equal(t, "Sol", got.StarSystem)
	require.Len(t, got.Commodities, 2)
	require.Equal(t, "$steel_name;", got.Commodities[0].Name)
	require.Equal(t, 500, got.Commodities[0].Provided)
	require.False(t, got.UpdatedAt.IsZero())

	// Replace-by-key: a second upsert overwrites, never duplicates.
	updated := testSite(100, "Sol", "Alpha Renamed")
	require.NoError(t, store.UpsertSite(ctx, updated))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Alpha Renamed", all[0].StationName)
}

func TestStore_NotFound(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.GetByMarketID(context.Background(), 404)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetBySystemOrdered(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSite(ctx, testSite(2, "Sol", "Bravo")))
	require.NoError(t, store.UpsertSite(ctx, testSite(1, "Sol", "Alpha")))
	require.NoError(t, store.UpsertSite(ctx, testSite(3, "Lave", "Charlie")))

	sites, err := store.GetBySystem(ctx, "Sol")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "Alpha", sites[0].StationName)
	require.Equal(t, "Bravo", sites[1].StationName)

	systems, err := store.ListSystems(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Lave", "Sol"}, systems)
}

func TestStore_UpdateCommodityProvided(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSite(ctx, testSite(100, "Sol", "Alpha")))

	// Max-merge: raises, then refuses to regress.
	require.NoError(t, store.UpdateCommodityProvided(ctx, 100, "Steel", 800))
	got, err := store.GetByMarketID(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 800, got.Commodities[0].Provided)

	require.NoError(t, store.UpdateCommodityProvided(ctx, 100, "steel", 600))
	got, err = store.GetByMarketID(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 800, got.Commodities[0].Provided)

	// Missing site and missing commodity are warned no-ops.
	require.NoError(t, store.UpdateCommodityProvided(ctx, 404, "steel", 100))
	require.NoError(t, store.UpdateCommodityProvided(ctx, 100, "gold", 100))
}

func TestStore_Stats(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	done := testSite(1, "Sol", "Alpha")
	done.ConstructionComplete = true
	failed := testSite(2, "Sol", "Bravo")
	failed.ConstructionFailed = true
	active := testSite(3, "Lave", "Charlie")

	for _, s := range []*domain.ConstructionSite{done, failed, active} {
		require.NoError(t, store.UpsertSite(ctx, s))
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, &storage.Stats{Systems: 2, Sites: 3, InProgress: 1, Completed: 1}, stats)
}

func TestStore_ClearAll(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSite(ctx, testSite(1, "Sol", "Alpha")))
	require.NoError(t, store.ClearAll(ctx))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStore_SchemaMismatchResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.db")

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpsertSite(context.Background(), testSite(1, "Sol", "Alpha")))
	require.NoError(t, store.Close())

	// Tamper with the stored schema version.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE meta SET value = 'stale' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopen: the file is deleted and recreated empty, then restamped.
	store, err = Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetByMarketID(context.Background(), 1)
	require.True(t, errors.Is(err, storage.ErrNotFound), "expected empty store after reset, got %v", err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Sites)
}
