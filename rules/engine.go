package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/staffrules/internal/logger"
	"github.com/liamcoop/staffrules/roster"
)

// Engine evaluates a unit's rules against its roster over a calendar
// interval. Passes are serialized; rule mutations may run concurrently with
// them and take effect on the next pass.
type Engine struct {
	roster   roster.Provider
	calendar roster.Calendar
	store    RuleStore
	cache    EvaluationCache
	exprs    *ExpressionCompiler
	repo     RuleRepository
	persist  *persister
	instance string

	diagnostics []Diagnostic
	rosterMu    sync.RWMutex
	mu          sync.Mutex
	// saveMu orders store snapshots with their persister sequence numbers
	saveMu sync.Mutex
}

// Option configures an Engine
type Option func(*Engine)

// WithStore replaces the default in-memory rule store
func WithStore(store RuleStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithCache replaces the default in-memory evaluation cache
func WithCache(cache EvaluationCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithRepository enables persistence: Load reads from repo and every
// mutation is saved to it in the background
func WithRepository(repo RuleRepository) Option {
	return func(e *Engine) { e.repo = repo }
}

// NewEngine creates an engine over a roster and calendar
func NewEngine(provider roster.Provider, calendar roster.Calendar, opts ...Option) (*Engine, error) {
	exprs, err := NewExpressionCompiler()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		roster:   provider,
		calendar: calendar,
		exprs:    exprs,
		instance: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.store == nil {
		en.store = NewInMemoryRuleStore()
	}
	if en.cache == nil {
		en.cache = NewInMemoryEvaluationCache(DefaultCacheConfig())
	}
	if en.repo != nil {
		en.persist = newPersister(en.repo)
	}
	return en, nil
}

// Load hydrates the rule store from the repository. Without a repository it
// does nothing.
func (en *Engine) Load(ctx context.Context) error {
	if en.repo == nil {
		return nil
	}
	loaded, err := en.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	en.store.Replace(loaded)
	en.cache.Invalidate()
	logger.Info("rules loaded", "count", len(loaded))
	return nil
}

// Flush waits for background saves to finish
func (en *Engine) Flush() {
	if en.persist != nil {
		en.persist.flush()
	}
}

// SetRoster swaps the roster the engine reads
func (en *Engine) SetRoster(provider roster.Provider) {
	en.rosterMu.Lock()
	en.roster = provider
	en.rosterMu.Unlock()
	en.cache.Invalidate()
}

func (en *Engine) currentRoster() roster.Provider {
	en.rosterMu.RLock()
	defer en.rosterMu.RUnlock()
	return en.roster
}

// Calendar returns the engine's calendar
func (en *Engine) Calendar() roster.Calendar {
	return en.calendar
}

// EvaluateRules evaluates every enabled rule over the calendar's interval
func (en *Engine) EvaluateRules() []*Violation {
	start, days := en.calendar.Interval()
	return en.EvaluateRulesFor(start, days)
}

// EvaluateRulesFor evaluates every enabled rule over days days from start.
// The result is sorted by date then severity. Repeated calls within the
// cache freshness window, with no rule change between them, return the
// same list without recomputing.
func (en *Engine) EvaluateRulesFor(start time.Time, days int) []*Violation {
	start = roster.StartOfDay(start)

	en.mu.Lock()
	defer en.mu.Unlock()

	version := en.store.Version()
	active := en.store.ListActive()
	provider := en.currentRoster()
	key := CacheKey{
		Start:       start.Unix(),
		Days:        days,
		Version:     version,
		Fingerprint: evaluationFingerprint(active, provider, en.instance),
	}
	if cached, ok := en.cache.Get(key); ok {
		logger.CacheHits.Add(1)
		return cached
	}

	violations, diags := en.evaluate(active, provider, start, days)
	SortViolations(violations)

	en.cache.Set(key, violations)
	en.diagnostics = diags
	logDiagnostics(diags)
	logger.EvaluationPasses.Add(1)
	logger.Debug("evaluation pass complete",
		"start", start.Format(roster.DateLayout),
		"days", days,
		"violations", len(violations),
		"diagnostics", len(diags),
	)
	return violations
}

// EvaluateSingleRule previews one rule over the calendar's interval without
// storing it or touching the cache. Disabled rules are evaluated too.
func (en *Engine) EvaluateSingleRule(rule *Rule) ([]*Violation, []Diagnostic) {
	if rule == nil {
		return nil, nil
	}
	preview := rule.Clone()
	preview.Enabled = true

	start, days := en.calendar.Interval()
	violations, diags := en.evaluate([]*Rule{preview}, en.currentRoster(), roster.StartOfDay(start), days)
	SortViolations(violations)
	return violations, diags
}

// EvaluateEmployeeRuleAcrossPeriod evaluates an employee-scoped rule once
// over the whole interval, returning at most one violation per employee
func (en *Engine) EvaluateEmployeeRuleAcrossPeriod(rule *Rule, start time.Time, days int) []*Violation {
	idx := NewRosterIndex(en.currentRoster())
	violations, diags := NewPeriodAggregator(idx).Evaluate(rule, roster.Dates(start, days))
	logDiagnostics(diags)
	return violations
}

// Diagnostics returns what the last computed pass could not evaluate
func (en *Engine) Diagnostics() []Diagnostic {
	en.mu.Lock()
	defer en.mu.Unlock()
	return append([]Diagnostic(nil), en.diagnostics...)
}

// diagnosticKey dedupes per-date diagnostics to one per rule condition
type diagnosticKey struct {
	ruleID string
	cond   int
	kind   string
}

func (en *Engine) evaluate(active []*Rule, provider roster.Provider, start time.Time, days int) ([]*Violation, []Diagnostic) {
	idx := NewRosterIndex(provider)
	dates := roster.Dates(start, days)
	cls := Classify(active)

	var violations []*Violation
	var diags []Diagnostic
	seen := make(map[diagnosticKey]bool)

	type datedRule struct {
		rule  *Rule
		conds []Condition
	}
	perDate := make([]datedRule, 0, len(cls.Daily)+len(cls.Advanced))
	for _, r := range cls.Daily {
		perDate = append(perDate, datedRule{rule: r, conds: r.Conditions})
	}
	for _, r := range cls.Advanced {
		conds, err := NormalizeTree(r.JSON)
		if err != nil {
			diags = append(diags, Diagnostic{
				RuleID: r.ID, RuleName: r.Name,
				Kind: DiagnosticMalformedTree, Detail: err.Error(),
			})
			continue
		}
		perDate = append(perDate, datedRule{rule: r, conds: conds})
	}

	if len(perDate) > 0 {
		ev := NewEvaluator(idx, en.exprs)
		for _, date := range dates {
			snap := BuildSnapshot(date, idx)
			for _, dr := range perDate {
				for i := range dr.conds {
					out := ev.Evaluate(&dr.conds[i], date, snap)
					switch out.Kind {
					case OutcomeViolation:
						out.Violation.RuleID = dr.rule.ID
						out.Violation.RuleName = dr.rule.Name
						violations = append(violations, out.Violation)
					case OutcomeUnhandled:
						k := diagnosticKey{dr.rule.ID, i, out.Reason}
						if seen[k] {
							continue
						}
						seen[k] = true
						diags = append(diags, Diagnostic{
							RuleID: dr.rule.ID, RuleName: dr.rule.Name, Date: date,
							Kind: out.Reason, Detail: out.Detail,
						})
					}
				}
			}
		}
	}

	if len(dates) > 0 {
		agg := NewPeriodAggregator(idx)
		for _, r := range cls.Employee {
			vs, ds := agg.Evaluate(r, dates)
			violations = append(violations, vs...)
			diags = append(diags, ds...)
		}
	}

	return violations, diags
}

func logDiagnostics(diags []Diagnostic) {
	for _, d := range diags {
		logger.WarnUnhandledCondition(d.RuleID, d.Kind, d.Detail)
	}
}

// AddRule validates and stores a new rule. An empty ID gets a fresh UUID.
func (en *Engine) AddRule(r *Rule) error {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if err := ValidateRule(r, en.exprs); err != nil {
		return err
	}
	if err := en.store.Add(r); err != nil {
		return err
	}
	en.changed()
	return nil
}

// UpdateRule validates and replaces an existing rule
func (en *Engine) UpdateRule(r *Rule) error {
	if err := ValidateRule(r, en.exprs); err != nil {
		return err
	}
	if err := en.store.Update(r); err != nil {
		return err
	}
	en.changed()
	return nil
}

// RemoveRule deletes a rule
func (en *Engine) RemoveRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}
	en.changed()
	return nil
}

// changed invalidates cached results and schedules a save. The snapshot and
// its sequence number are taken together, so a later snapshot always gets a
// higher number.
func (en *Engine) changed() {
	en.cache.Invalidate()
	if en.persist != nil {
		en.saveMu.Lock()
		en.persist.submit(en.store.List())
		en.saveMu.Unlock()
	}
}

// GetRules returns every rule in insertion order, enabled or not
func (en *Engine) GetRules() []*Rule {
	return en.store.List()
}

// GetRule returns one rule; ErrRuleNotFound when absent
func (en *Engine) GetRule(ruleID string) (*Rule, error) {
	return en.store.Get(ruleID)
}

// GetRuleTemplates lists the built-in rule presets
func (en *Engine) GetRuleTemplates() []Template {
	return Templates()
}

// CreateRuleFromTemplate instantiates a preset and adds it
func (en *Engine) CreateRuleFromTemplate(templateID string) (*Rule, error) {
	r, err := NewRuleFromTemplate(templateID)
	if err != nil {
		return nil, err
	}
	if err := en.AddRule(r); err != nil {
		return nil, fmt.Errorf("failed to add rule from template %s: %w", templateID, err)
	}
	return r, nil
}
