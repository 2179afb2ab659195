package rules

import (
	"fmt"
	"sync"
	"time"
)

// RuleStore holds the working set of rules. Version moves on every mutation
// so anything derived from the rule set can tell when it is out of date.
type RuleStore interface {
	// Add a new rule; ErrRuleExists when the ID is taken
	Add(rule *Rule) error

	// Get a rule by ID; ErrRuleNotFound when absent
	Get(id string) (*Rule, error)

	// List every rule in insertion order
	List() []*Rule

	// ListActive returns enabled rules in insertion order
	ListActive() []*Rule

	// Update replaces an existing rule, keeping its CreatedAt
	Update(rule *Rule) error

	// Delete removes a rule
	Delete(id string) error

	// Replace swaps the whole rule set, as after a load
	Replace(rules []*Rule)

	// Version is bumped by every mutation
	Version() uint64
}

// InMemoryRuleStore implements RuleStore with a map plus an order slice.
// Stored rules are private copies; callers get copies back.
type InMemoryRuleStore struct {
	rules   map[string]*Rule
	order   []string
	version uint64
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryRuleStore creates an empty store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
		now:   time.Now,
	}
}

// Add stamps CreatedAt/UpdatedAt when unset and appends the rule
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := s.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule.Clone()
	s.order = append(s.order, rule.ID)
	s.version++
	return nil
}

func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return rule.Clone(), nil
}

func (s *InMemoryRuleStore) List() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rules[id].Clone())
	}
	return out
}

func (s *InMemoryRuleStore) ListActive() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, id := range s.order {
		if r := s.rules[id]; r.Enabled {
			active = append(active, r.Clone())
		}
	}
	return active
}

// Update keeps the original CreatedAt and position
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()
	s.rules[rule.ID] = rule.Clone()
	s.version++
	return nil
}

func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	return nil
}

// Replace drops the current set. Later duplicates of an ID overwrite earlier
// ones in place.
func (s *InMemoryRuleStore) Replace(rules []*Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = make(map[string]*Rule, len(rules))
	s.order = s.order[:0]
	for _, r := range rules {
		if r == nil {
			continue
		}
		if _, dup := s.rules[r.ID]; !dup {
			s.order = append(s.order, r.ID)
		}
		s.rules[r.ID] = r.Clone()
	}
	s.version++
}

func (s *InMemoryRuleStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
