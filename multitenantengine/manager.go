// Package multitenantengine runs one rule engine per unit (ward or
// department). Each unit has its own roster, calendar, rule collection and
// evaluation cache.
package multitenantengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/staffrules/internal/logger"
	"github.com/liamcoop/staffrules/roster"
	"github.com/liamcoop/staffrules/rules"
)

var (
	ErrUnitNotFound = errors.New("unit not found")
	ErrUnitExists   = errors.New("unit already exists")
)

// Unit wraps a rules.Engine with the unit's roster and calendar
type Unit struct {
	ID       string
	Name     string
	Engine   *rules.Engine
	Roster   *roster.Roster
	Calendar *roster.StaticCalendar
}

// Options configures the stores shared by every unit. Nil stores are
// skipped: with no DB and no Local, rules live only in memory.
type Options struct {
	// DB is the remote rule store and the source of the unit list
	DB *sql.DB
	// Local is the SQLite database used when DB is unreachable
	Local *sql.DB
	// Redis, when set, shares evaluation results between server instances
	Redis       redis.Cmdable
	RedisPrefix string
	// RedisRules keeps rule collections in Redis when DB is nil
	RedisRules bool

	Cache         rules.CacheConfig
	CalendarStart time.Time
	CalendarDays  int
}

// Manager manages engines for all units
type Manager struct {
	units map[string]*Unit
	opts  Options
	mu    sync.RWMutex
}

// NewManager creates a manager with no units loaded
func NewManager(opts Options) *Manager {
	if opts.RedisPrefix == "" {
		opts.RedisPrefix = "staffrules"
	}
	if opts.CalendarStart.IsZero() {
		opts.CalendarStart = roster.StartOfDay(time.Now().UTC())
	}
	return &Manager{
		units: make(map[string]*Unit),
		opts:  opts,
	}
}

// LoadAllUnits reads the units table and initializes an engine for every unit
// not already loaded. Without a database it does nothing.
func (m *Manager) LoadAllUnits(ctx context.Context) error {
	if m.opts.DB == nil {
		return nil
	}

	rows, err := m.opts.DB.QueryContext(ctx, `
		SELECT id, name
		FROM units
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch units: %w", err)
	}
	defer rows.Close()

	type unitRow struct{ id, name string }
	var found []unitRow
	for rows.Next() {
		var r unitRow
		if err := rows.Scan(&r.id, &r.name); err != nil {
			return fmt.Errorf("failed to scan unit row: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating unit rows: %w", err)
	}

	unitsLoaded := 0
	for _, r := range found {
		if _, err := m.GetUnit(r.id); err == nil {
			continue
		}
		if _, err := m.addUnit(ctx, r.id, r.name, false); err != nil {
			return fmt.Errorf("failed to initialize unit %s: %w", r.id, err)
		}
		unitsLoaded++
	}

	logger.Info("units loaded", "count", unitsLoaded)
	return nil
}

// CreateUnit registers a unit, loads its stored rules and records it in the
// database
func (m *Manager) CreateUnit(ctx context.Context, unitID, name string) (*Unit, error) {
	if err := ValidateUnitID(unitID); err != nil {
		return nil, err
	}
	if name == "" {
		name = unitID
	}
	return m.addUnit(ctx, unitID, name, true)
}

func (m *Manager) addUnit(ctx context.Context, unitID, name string, record bool) (*Unit, error) {
	if _, err := m.GetUnit(unitID); err == nil {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrUnitExists)
	}

	repo, err := m.repository(unitID)
	if err != nil {
		return nil, err
	}

	ros := roster.New(roster.Data{})
	cal := roster.NewStaticCalendar(m.opts.CalendarStart, m.opts.CalendarDays)
	engineOpts := []rules.Option{rules.WithCache(m.cache(unitID))}
	if repo != nil {
		engineOpts = append(engineOpts, rules.WithRepository(repo))
	}

	engine, err := rules.NewEngine(ros, cal, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := engine.Load(ctx); err != nil {
		return nil, err
	}

	if record && m.opts.DB != nil {
		if _, err := m.opts.DB.ExecContext(ctx, `
			INSERT INTO units (id, name)
			VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, unitID, name); err != nil {
			return nil, fmt.Errorf("failed to record unit: %w", err)
		}
	}

	unit := &Unit{ID: unitID, Name: name, Engine: engine, Roster: ros, Calendar: cal}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.units[unitID]; exists {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrUnitExists)
	}
	m.units[unitID] = unit

	logger.Info("unit ready", "unit", unitID, "rules", len(engine.GetRules()))
	return unit, nil
}

func (m *Manager) repository(unitID string) (rules.RuleRepository, error) {
	var remote, local rules.RuleRepository

	switch {
	case m.opts.DB != nil:
		remote = rules.NewPostgresRuleRepository(m.opts.DB, unitID)
	case m.opts.Redis != nil && m.opts.RedisRules:
		remote = rules.NewRedisRuleRepository(m.opts.Redis, m.opts.RedisPrefix, unitID)
	}

	if m.opts.Local != nil {
		sqliteRepo, err := rules.NewSQLiteRuleRepository(m.opts.Local, unitID)
		if err != nil {
			return nil, err
		}
		local = sqliteRepo
	}

	if remote == nil && local == nil {
		return nil, nil
	}
	return rules.NewFallbackRepository(remote, local), nil
}

func (m *Manager) cache(unitID string) rules.EvaluationCache {
	if m.opts.Redis != nil {
		prefix := fmt.Sprintf("%s:cache:%s", m.opts.RedisPrefix, unitID)
		return rules.NewRedisEvaluationCache(m.opts.Redis, prefix, m.opts.Cache)
	}
	return rules.NewInMemoryEvaluationCache(m.opts.Cache)
}

// GetUnit retrieves a loaded unit
func (m *Manager) GetUnit(unitID string) (*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	unit, exists := m.units[unitID]
	if !exists {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrUnitNotFound)
	}
	return unit, nil
}

// GetEngine retrieves the engine for a specific unit
func (m *Manager) GetEngine(unitID string) (*rules.Engine, error) {
	unit, err := m.GetUnit(unitID)
	if err != nil {
		return nil, err
	}
	return unit.Engine, nil
}

// SetRoster replaces a unit's roster. Dangling references are returned as
// warnings; the roster is accepted regardless.
func (m *Manager) SetRoster(unitID string, data roster.Data) ([]RosterWarning, error) {
	unit, err := m.GetUnit(unitID)
	if err != nil {
		return nil, err
	}

	warnings := CheckRoster(data)
	unit.Roster.Replace(data)
	unit.Engine.SetRoster(unit.Roster)

	if len(warnings) > 0 {
		logger.Warn("roster has dangling references", "unit", unitID, "warnings", len(warnings))
	}
	return warnings, nil
}

// SetCalendar moves a unit's evaluation interval
func (m *Manager) SetCalendar(unitID string, start time.Time, days int) error {
	unit, err := m.GetUnit(unitID)
	if err != nil {
		return err
	}
	if days < 0 {
		return fmt.Errorf("days must not be negative, got %d", days)
	}
	unit.Calendar.SetInterval(start, days)
	return nil
}

// ListUnits returns all loaded unit IDs, sorted
func (m *Manager) ListUnits() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := make([]string, 0, len(m.units))
	for unitID := range m.units {
		units = append(units, unitID)
	}
	sort.Strings(units)
	return units
}

// DeleteUnit removes a unit's engine after its pending saves finish.
// Note: this does not delete the unit or its rules from the database.
func (m *Manager) DeleteUnit(unitID string) error {
	m.mu.Lock()
	unit, exists := m.units[unitID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("unit %s: %w", unitID, ErrUnitNotFound)
	}
	delete(m.units, unitID)
	m.mu.Unlock()

	unit.Engine.Flush()
	return nil
}

// Close waits for every unit's pending saves
func (m *Manager) Close() {
	m.mu.RLock()
	units := make([]*Unit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	m.mu.RUnlock()

	for _, u := range units {
		u.Engine.Flush()
	}
}
