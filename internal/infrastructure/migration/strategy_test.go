package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/database"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/repository"
	"github.com/warehouse-ops/ntconsole/internal/shared/config"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "backend.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestGooseStrategy_MigrateCreatesBackendSchema(t *testing.T) {
	db := openSQLite(t)
	s, err := NewGooseStrategy(database.DriverSQLite, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, s.Migrate(db))
	version, err := s.GetVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// a second run has nothing to apply
	require.NoError(t, s.Migrate(db))

	backend := repository.NewWarehouseBackend(db, nil, logger.NewNopLogger())
	ctx := context.Background()
	tk, items, err := backend.CreateTicket(ctx, "tmp_1", []ticket.LineItemDraft{
		{Code: "A", Quantity: 1, ClientRef: "tmp_2"},
		{Code: "B", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	tickets, err := backend.FetchTicketsPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, tk.ID, tickets[0].ID)
	assert.Equal(t, "tmp_1", tickets[0].ClientRef)

	fetched, err := backend.FetchLineItemsPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	refs := []string{fetched[0].ClientRef, fetched[1].ClientRef}
	assert.ElementsMatch(t, []string{"tmp_2", ""}, refs)

	// item numbers stay unique per ticket
	_, err = backend.CreateLineItem(ctx, tk.ID, ticket.LineItemDraft{ItemNumber: items[0].ItemNumber, Code: "C", Quantity: 1})
	assert.Error(t, err)
}

func TestGooseStrategy_MigrateDownStepsBack(t *testing.T) {
	db := openSQLite(t)
	s, err := NewGooseStrategy(database.DriverSQLite, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(db))

	require.NoError(t, s.MigrateDown(db, 1))
	version, err := s.GetVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.False(t, db.Migrator().HasColumn("line_items", "client_ref"))
	assert.True(t, db.Migrator().HasTable("line_items"))

	require.NoError(t, s.MigrateDown(db, 1))
	version, err = s.GetVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.False(t, db.Migrator().HasTable("tickets"))

	assert.Error(t, s.MigrateDown(db, 0))
}

func TestGooseStrategy_Status(t *testing.T) {
	db := openSQLite(t)
	s, err := NewGooseStrategy("", logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(db))
	assert.NoError(t, s.Status(db))
}

func TestGooseStrategy_CreateWritesScript(t *testing.T) {
	s, err := NewGooseStrategy(database.DriverMySQL, logger.NewNopLogger())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, s.Create(dir, "add_shift_index"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "add_shift_index.sql")
}

func TestNewGooseStrategy_RejectsUnknownDriver(t *testing.T) {
	_, err := NewGooseStrategy("postgres", logger.NewNopLogger())
	assert.Error(t, err)
}
