// Package migration versions the backend schema with goose. The SQL scripts
// are embedded so the binary migrates without a checkout next to it.
package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/warehouse-ops/ntconsole/internal/infrastructure/database"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

//go:embed scripts/*.sql
var scripts embed.FS

const scriptsDir = "scripts"

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

type GooseStrategy struct {
	dialect string
	logger  logger.Interface
}

// NewGooseStrategy picks the goose dialect for a configured database driver.
func NewGooseStrategy(driver string, log logger.Interface) (*GooseStrategy, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &GooseStrategy{
		dialect: dialect,
		logger:  log.With("component", "migration.goose"),
	}, nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case database.DriverMySQL:
		return "mysql", nil
	case database.DriverSQLite, "":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate applies every pending script.
func (s *GooseStrategy) Migrate(db *gorm.DB) error {
	return s.run(db, func(sqlDB *sql.DB) error {
		currentVersion, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			s.logger.Errorw("failed to get current version", "error", err)
			return fmt.Errorf("failed to get current version: %w", err)
		}

		s.logger.Infow("starting goose migration", "version", currentVersion, "dialect", s.dialect)

		if err := goose.Up(sqlDB, scriptsDir); err != nil {
			s.logger.Errorw("migration failed", "error", err)
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		finalVersion, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("failed to get final version: %w", err)
		}

		s.logger.Infow("migration completed successfully",
			"from_version", currentVersion,
			"to_version", finalVersion)
		return nil
	})
}

func (s *GooseStrategy) GetName() string {
	return "goose"
}

// MigrateDown rolls back the given number of scripts, newest first.
func (s *GooseStrategy) MigrateDown(db *gorm.DB, steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	s.logger.Infow("starting down migration", "steps", steps)

	return s.run(db, func(sqlDB *sql.DB) error {
		for i := 0; i < steps; i++ {
			if err := goose.Down(sqlDB, scriptsDir); err != nil {
				s.logger.Errorw("down migration failed", "step", i+1, "error", err)
				return fmt.Errorf("failed to run down migration: %w", err)
			}
		}
		s.logger.Infow("down migration completed successfully")
		return nil
	})
}

func (s *GooseStrategy) GetVersion(db *gorm.DB) (int64, error) {
	var version int64
	err := s.run(db, func(sqlDB *sql.DB) error {
		v, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// Status logs the applied state of every script.
func (s *GooseStrategy) Status(db *gorm.DB) error {
	return s.run(db, func(sqlDB *sql.DB) error {
		if err := goose.Status(sqlDB, scriptsDir); err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		return nil
	})
}

// Create writes a new, empty SQL script into dir.
func (s *GooseStrategy) Create(dir, name string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	s.logger.Infow("migration created successfully", "name", name, "dir", dir)
	return nil
}

func (s *GooseStrategy) run(db *gorm.DB, fn func(*sql.DB) error) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(scripts)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return fn(sqlDB)
}

// gooseLogger routes goose output into the application logger. Fatalf
// only logs; goose also returns the error to the caller.
type gooseLogger struct {
	log logger.Interface
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infow(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Errorw(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
