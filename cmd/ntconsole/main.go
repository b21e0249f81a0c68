package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/warehouse-ops/ntconsole/internal/interfaces/cli/migrate"
	"github.com/warehouse-ops/ntconsole/internal/interfaces/cli/report"
	"github.com/warehouse-ops/ntconsole/internal/interfaces/cli/server"
)

//go:generate swag init --dir ../../ --generalInfo cmd/ntconsole/main.go --output ../../docs --parseInternal

// @title ntconsole API
// @version 1.0
// @description Live view of warehouse tickets and line items with local-first writes.
// @BasePath /api
func main() {
	rootCmd := &cobra.Command{
		Use:   "ntconsole",
		Short: "ntconsole - warehouse ticket console",
		Long:  `ntconsole keeps a live view of warehouse tickets and line items in sync with the shared backend, with local-first writes, bulk inserts and shift reports.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		report.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
