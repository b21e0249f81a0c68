package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/application/reconcile"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/database"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/persistence/models"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/repository"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	sharedConfig "github.com/warehouse-ops/ntconsole/internal/shared/config"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func TestWriteShiftReport(t *testing.T) {
	report := reconcile.ShiftReport{
		Date: "2024-01-01",
		Shifts: []reconcile.ShiftCounts{
			{Shift: biztime.ShiftMorning, Total: 3, ByStatus: map[vo.PaymentStatus]int{vo.PaymentAwaiting: 2, vo.PaymentPaid: 1}, Overdue: 1},
			{Shift: biztime.ShiftAfternoon, ByStatus: map[vo.PaymentStatus]int{}},
			{Shift: biztime.ShiftNight, ByStatus: map[vo.PaymentStatus]int{}},
		},
		Skipped: 1,
	}

	var out bytes.Buffer
	require.NoError(t, writeShiftReport(&out, report))

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "Line items created on 2024-01-01", lines[0])
	assert.Equal(t, []string{"SHIFT", "TOTAL", "awaiting_payment", "partially_paid", "paid", "OVERDUE"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"1", "3", "2", "0", "1", "1"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"3", "0", "0", "0", "0", "0"}, strings.Fields(lines[5]))
	assert.Contains(t, out.String(), "1 line item(s) skipped")
}

func TestShiftsCommand_ReadsBackend(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "backend.db")

	db, err := database.Open(&sharedConfig.DatabaseConfig{Driver: database.DriverSQLite, SQLitePath: dbPath})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	backend := repository.NewWarehouseBackend(db, nil, logger.NewNopLogger())
	_, _, err = backend.CreateTicket(context.Background(), "", []ticket.LineItemDraft{
		{Code: "A", Quantity: 1},
		{Code: "B", Quantity: 2},
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  driver: sqlite\n  sqlite_path: %s\nlogger:\n  output_path: stderr\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"shifts", "--config", configPath, "--json"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got reconcile.ShiftReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, biztime.FormatDate(biztime.NowUTC()), got.Date)

	total := 0
	for _, c := range got.Shifts {
		total += c.Total
	}
	assert.Equal(t, 2, total)
}
