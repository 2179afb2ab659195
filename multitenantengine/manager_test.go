package multitenantengine

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/staffrules/roster"
	"github.com/liamcoop/staffrules/rules"
)

var monday = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newMemoryManager() *Manager {
	return NewManager(Options{CalendarStart: monday, CalendarDays: 7})
}

func minStaffRule(id string, min float64) *rules.Rule {
	return &rules.Rule{
		ID:      id,
		Name:    "Minimum staff",
		Enabled: true,
		Conditions: []rules.Condition{
			{Type: rules.KindTotalStaff, Operator: rules.OpGreaterThanOrEqual, Value: rules.Num(min)},
		},
	}
}

func TestManager_CreateUnit(t *testing.T) {
	m := newMemoryManager()
	ctx := context.Background()

	unit, err := m.CreateUnit(ctx, "icu", "Intensive Care")
	if err != nil {
		t.Fatalf("Failed to create unit: %v", err)
	}
	if unit.Name != "Intensive Care" {
		t.Errorf("Expected name 'Intensive Care', got %q", unit.Name)
	}

	engine, err := m.GetEngine("icu")
	if err != nil {
		t.Fatalf("Failed to get engine: %v", err)
	}
	if engine != unit.Engine {
		t.Error("GetEngine returned a different engine")
	}

	if _, err := m.CreateUnit(ctx, "icu", ""); !errors.Is(err, ErrUnitExists) {
		t.Errorf("Expected ErrUnitExists, got %v", err)
	}
	if _, err := m.CreateUnit(ctx, "bad id", ""); err == nil {
		t.Error("Expected an invalid unit ID to be rejected")
	}

	// Name defaults to the ID
	ward, _ := m.CreateUnit(ctx, "ward-4", "")
	if ward.Name != "ward-4" {
		t.Errorf("Expected default name ward-4, got %q", ward.Name)
	}
}

func TestManager_GetEngineNotFound(t *testing.T) {
	m := newMemoryManager()

	_, err := m.GetEngine("nonexistent")
	if !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Expected ErrUnitNotFound, got %v", err)
	}
	if _, err := m.SetRoster("nonexistent", roster.Data{}); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Expected ErrUnitNotFound from SetRoster, got %v", err)
	}
}

func TestManager_SetRosterAndCalendar(t *testing.T) {
	m := newMemoryManager()
	unit, err := m.CreateUnit(context.Background(), "icu", "")
	require.NoError(t, err)
	require.NoError(t, unit.Engine.AddRule(minStaffRule("min", 1)))

	// Nobody rostered: every day violates
	assert.Len(t, unit.Engine.EvaluateRules(), 7)

	warnings, err := m.SetRoster("icu", roster.Data{
		Employees:  []roster.Employee{{ID: "e1", Name: "Alice", RoleID: "rn"}},
		JobRoles:   []roster.JobRole{{ID: "rn", Name: "RN"}},
		ShiftTypes: []roster.ShiftType{{ID: "d", Name: "Day"}},
		Assignments: []roster.Assignment{
			{EmployeeID: "e1", Date: "2024-01-01", ShiftID: "d"},
			{EmployeeID: "e9", Date: "2024-01-02", ShiftID: "d"},
		},
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningUnknownEmployee, warnings[0].Kind)

	// Monday is covered now; the dangling assignment counts for nobody
	vs := unit.Engine.EvaluateRules()
	assert.Len(t, vs, 6)

	require.NoError(t, m.SetCalendar("icu", monday, 1))
	assert.Empty(t, unit.Engine.EvaluateRules())

	assert.Error(t, m.SetCalendar("icu", monday, -1))
	assert.ErrorIs(t, m.SetCalendar("missing", monday, 1), ErrUnitNotFound)
}

// TestManager_UnitIsolation verifies units never see each other's rules
func TestManager_UnitIsolation(t *testing.T) {
	m := newMemoryManager()
	ctx := context.Background()

	icu, _ := m.CreateUnit(ctx, "icu", "")
	ward, _ := m.CreateUnit(ctx, "ward", "")

	require.NoError(t, icu.Engine.AddRule(minStaffRule("min", 1)))

	assert.Len(t, icu.Engine.GetRules(), 1)
	assert.Empty(t, ward.Engine.GetRules())
	assert.Empty(t, ward.Engine.EvaluateRules())
}

func TestManager_ListAndDeleteUnits(t *testing.T) {
	m := newMemoryManager()
	ctx := context.Background()
	for _, id := range []string{"ward", "icu", "er"} {
		if _, err := m.CreateUnit(ctx, id, ""); err != nil {
			t.Fatalf("Failed to create unit %s: %v", id, err)
		}
	}

	if got := strings.Join(m.ListUnits(), ","); got != "er,icu,ward" {
		t.Errorf("Expected sorted units er,icu,ward, got %s", got)
	}

	if err := m.DeleteUnit("icu"); err != nil {
		t.Fatalf("Failed to delete unit: %v", err)
	}
	if _, err := m.GetEngine("icu"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Expected deleted unit to be gone, got %v", err)
	}
	if err := m.DeleteUnit("icu"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Expected ErrUnitNotFound on second delete, got %v", err)
	}
	if len(m.ListUnits()) != 2 {
		t.Errorf("Expected 2 units, got %d", len(m.ListUnits()))
	}
}

func TestManager_Concurrency(t *testing.T) {
	m := newMemoryManager()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.CreateUnit(ctx, "shared", ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if !errors.Is(err, ErrUnitExists) {
			t.Errorf("Unexpected error: %v", err)
		}
		failures++
	}
	if failures != 19 {
		t.Errorf("Expected exactly one successful create, got %d failures", failures)
	}
}

func TestManager_LoadAllUnits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stored, _ := json.Marshal(minStaffRule("min", 3))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("icu", "Intensive Care").
			AddRow("ward", "Ward 4"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT body")).
		WithArgs("icu").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(stored))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT body")).
		WithArgs("ward").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	m := NewManager(Options{DB: db, CalendarStart: monday, CalendarDays: 7})
	require.NoError(t, m.LoadAllUnits(context.Background()))

	assert.Equal(t, []string{"icu", "ward"}, m.ListUnits())

	icu, err := m.GetUnit("icu")
	require.NoError(t, err)
	assert.Equal(t, "Intensive Care", icu.Name)
	assert.Len(t, icu.Engine.GetRules(), 1)

	ward, _ := m.GetEngine("ward")
	assert.Empty(t, ward.GetRules())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_LoadAllUnitsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name")).
		WillReturnError(errors.New("relation \"units\" does not exist"))

	m := NewManager(Options{DB: db})
	assert.ErrorContains(t, m.LoadAllUnits(context.Background()), "failed to fetch units")
}

func TestManager_LoadAllUnitsWithoutDatabase(t *testing.T) {
	m := newMemoryManager()
	assert.NoError(t, m.LoadAllUnits(context.Background()))
	assert.Empty(t, m.ListUnits())
}

func TestManager_CreateUnitRecordsUnit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body")).
		WithArgs("icu").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO units")).
		WithArgs("icu", "Intensive Care").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(Options{DB: db})
	_, err = m.CreateUnit(context.Background(), "icu", "Intensive Care")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestManager_LocalAndRedisStores verifies rules survive a restart through
// SQLite and Redis, and evaluation results land in the shared cache
func TestManager_LocalAndRedisStores(t *testing.T) {
	local, err := rules.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer local.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	opts := Options{
		Local:         local,
		Redis:         client,
		RedisPrefix:   "test",
		RedisRules:    true,
		Cache:         rules.CacheConfig{Freshness: time.Minute},
		CalendarStart: monday,
		CalendarDays:  3,
	}
	ctx := context.Background()

	first := NewManager(opts)
	unit, err := first.CreateUnit(ctx, "icu", "")
	require.NoError(t, err)
	require.NoError(t, unit.Engine.AddRule(minStaffRule("min", 1)))
	assert.Len(t, unit.Engine.EvaluateRules(), 3)
	first.Close()

	assert.True(t, mr.Exists("test:rules:icu"))
	cached := 0
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "test:cache:icu:") {
			cached++
		}
	}
	assert.Equal(t, 1, cached)

	// With Redis gone the local copy still has them
	mr.Close()

	second := NewManager(opts)
	restarted, err := second.CreateUnit(ctx, "icu", "")
	require.NoError(t, err)
	require.Len(t, restarted.Engine.GetRules(), 1)
	assert.Equal(t, "min", restarted.Engine.GetRules()[0].ID)
}
