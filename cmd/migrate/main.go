package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/liamcoop/staffrules/internal/logger"
	"github.com/liamcoop/staffrules/migrations"
)

// newMigrate uses the migrations compiled into the binary unless a
// directory is given
func newMigrate(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	if migrationsPath != "" {
		return migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (required)")
	flag.StringVar(&migrationsPath, "path", "", "Path to a migrations directory (defaults to the embedded set)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database or DATABASE_URL")
	}

	source := migrationsPath
	if source == "" {
		source = "embedded"
	}
	logger.Info("connecting to database", "migrations", source)

	m, err := newMigrate(databaseURL, migrationsPath)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		logger.Info("running migrations up")
		err = m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no migrations to run, database is up to date")
		case err != nil:
			logger.Fatal("failed to run migrations", "error", err)
		default:
			logger.Info("migrations completed")
		}

	case "down":
		logger.Info("rolling back migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if flag.NArg() < 1 {
			logger.Fatal("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			logger.Fatal("invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err)
		}
		logger.Info("forced version", "version", version)

	default:
		logger.Fatal("unknown command, use up, down, version or force", "command", command)
	}

	_ = logger.Shutdown(context.Background())
}
