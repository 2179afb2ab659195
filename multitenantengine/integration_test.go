//go:build integration

package multitenantengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/staffrules/migrations"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		t.Fatalf("Failed to open migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connStr)
	if err != nil {
		t.Fatalf("Failed to create migration instance: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		_, _ = m.Close()
		db.Close()
		_ = postgres.Terminate(ctx)
	}
	return db, cleanup
}

func TestManagerIntegration_CreateAndReload(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	opts := Options{DB: db, CalendarStart: monday, CalendarDays: 7}

	first := NewManager(opts)
	icu, err := first.CreateUnit(ctx, "icu", "Intensive Care")
	if err != nil {
		t.Fatalf("Failed to create unit: %v", err)
	}
	if _, err := first.CreateUnit(ctx, "ward", "Ward 4"); err != nil {
		t.Fatalf("Failed to create unit: %v", err)
	}
	if err := icu.Engine.AddRule(minStaffRule("min", 2)); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}
	first.Close()

	second := NewManager(opts)
	if err := second.LoadAllUnits(ctx); err != nil {
		t.Fatalf("Failed to load units: %v", err)
	}

	units := second.ListUnits()
	if len(units) != 2 || units[0] != "icu" || units[1] != "ward" {
		t.Fatalf("Expected [icu ward], got %v", units)
	}

	reloaded, err := second.GetUnit("icu")
	if err != nil {
		t.Fatalf("Failed to get unit: %v", err)
	}
	if reloaded.Name != "Intensive Care" {
		t.Errorf("Expected name 'Intensive Care', got %q", reloaded.Name)
	}
	if len(reloaded.Engine.GetRules()) != 1 {
		t.Errorf("Expected 1 rule after reload, got %d", len(reloaded.Engine.GetRules()))
	}
	if got := len(reloaded.Engine.EvaluateRules()); got != 7 {
		t.Errorf("Expected 7 violations, got %d", got)
	}

	ward, _ := second.GetEngine("ward")
	if len(ward.GetRules()) != 0 {
		t.Errorf("Expected ward to have no rules, got %d", len(ward.GetRules()))
	}
}

// TestManagerIntegration_DeleteKeepsData verifies DeleteUnit only unloads the engine
func TestManagerIntegration_DeleteKeepsData(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	m := NewManager(Options{DB: db})
	unit, err := m.CreateUnit(ctx, "icu", "")
	if err != nil {
		t.Fatalf("Failed to create unit: %v", err)
	}
	if err := unit.Engine.AddRule(minStaffRule("min", 1)); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}
	if err := m.DeleteUnit("icu"); err != nil {
		t.Fatalf("Failed to delete unit: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rules WHERE unit_id = $1`, "icu").Scan(&count); err != nil {
		t.Fatalf("Failed to count rules: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the stored rule to remain, got %d", count)
	}

	if err := m.LoadAllUnits(ctx); err != nil {
		t.Fatalf("Failed to load units: %v", err)
	}
	if _, err := m.GetEngine("icu"); err != nil {
		t.Errorf("Expected icu to be loaded again, got %v", err)
	}
}
