package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/config"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/database"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/migration"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/pubsub"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/repository"
	sharedConfig "github.com/warehouse-ops/ntconsole/internal/shared/config"
	"github.com/warehouse-ops/ntconsole/internal/shared/id"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func setupContainer(t *testing.T) (*Container, *repository.WarehouseBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	db, err := database.Open(&sharedConfig.DatabaseConfig{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(dir, "backend.db"),
	})
	require.NoError(t, err)
	strategy, err := migration.NewGooseStrategy(database.DriverSQLite, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, strategy.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Reconcile: sharedConfig.ReconcileConfig{
			SuppressionTTLSeconds:       5,
			FetchPageSize:               2,
			BulkInsertDelayMs:           1,
			OverdueCheckIntervalSeconds: 3600,
			OverdueAlertCooldownMinutes: 30,
		},
		Queue: sharedConfig.QueueConfig{
			Backend:  QueueBackendFile,
			FilePath: filepath.Join(dir, "queue.json"),
		},
	}

	log := logger.NewNopLogger()
	c, err := NewContainer(cfg, db, client, log)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	// A second writer sharing the backend, standing in for another console.
	other := repository.NewWarehouseBackend(db, pubsub.NewRedisFeedBus(client, log), log)
	return c, other
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func noProvisional(items []*ticket.LineItem) bool {
	for _, li := range items {
		if id.IsTemporary(li.ID) {
			return false
		}
	}
	return true
}

func TestContainer_EndToEnd(t *testing.T) {
	c, other := setupContainer(t)
	ctx := context.Background()

	// Present before start: arrives through hydration.
	seeded, _, err := other.CreateTicket(ctx, "", []ticket.LineItemDraft{
		{Code: "A", Quantity: 1},
		{Code: "B", Quantity: 2},
		{Code: "C", Quantity: 3},
	})
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))
	store := c.Store()
	require.Len(t, store.Tickets(), 1)
	require.Len(t, store.LineItems(seeded.ID), 3)

	// A change made elsewhere arrives through the feed.
	_, err = other.CreateLineItem(ctx, seeded.ID, ticket.LineItemDraft{Code: "D", Quantity: 4})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(store.LineItems(seeded.ID)) == 4
	}, 5*time.Second, 10*time.Millisecond)

	// A local create is confirmed once, never duplicated by its echo.
	w := doJSON(t, c.Engine(), http.MethodPost, "/api/tickets", map[string]any{
		"items": []map[string]any{{"code": "E", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Eventually(t, func() bool {
		return len(store.Tickets()) == 2 && len(store.AllLineItems()) == 5
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, noProvisional(store.AllLineItems()))

	// A bulk insert on the seeded ticket lands every item.
	w = doJSON(t, c.Engine(), http.MethodPost, "/api/tickets/"+seeded.ID+"/items/bulk", map[string]any{
		"items": []map[string]any{{"code": "F", "quantity": 1}, {"code": "G", "quantity": 1}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Eventually(t, func() bool {
		items := store.LineItems(seeded.ID)
		return len(items) == 6 && noProvisional(items)
	}, 5*time.Second, 10*time.Millisecond)

	// A local delete stays deleted after its echo.
	w = doJSON(t, c.Engine(), http.MethodDelete, "/api/tickets/"+seeded.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	_, ok := store.Ticket(seeded.ID)
	assert.False(t, ok)
	assert.Empty(t, store.LineItems(seeded.ID))
}

func TestNewContainer_RejectsUnknownQueueBackend(t *testing.T) {
	cfg := &config.Config{Queue: sharedConfig.QueueConfig{Backend: "s3"}}
	_, err := NewContainer(cfg, nil, nil, logger.NewNopLogger())
	assert.Error(t, err)
}
