package rules

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestRuleStoreInterfaceExists checks InMemoryRuleStore satisfies RuleStore
func TestRuleStoreInterfaceExists(t *testing.T) {
	var _ RuleStore = (*InMemoryRuleStore)(nil)
}

func TestInMemoryRuleStoreAdd(t *testing.T) {
	store := NewInMemoryRuleStore()
	rule := simpleRule("test-1", Condition{Type: KindTotalStaff, Operator: OpEquals, Value: Num(1)})

	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	retrieved, err := store.Get("test-1")
	if err != nil {
		t.Fatalf("Get() failed after Add(): %v", err)
	}
	if retrieved.Name != rule.Name {
		t.Errorf("Retrieved rule Name = %s, want %s", retrieved.Name, rule.Name)
	}
	if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
		t.Error("Add() should stamp CreatedAt and UpdatedAt")
	}
}

func TestInMemoryRuleStoreErrors(t *testing.T) {
	store := NewInMemoryRuleStore()
	if err := store.Add(simpleRule("dup")); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if err := store.Add(simpleRule("dup")); !errors.Is(err, ErrRuleExists) {
		t.Errorf("duplicate Add() error = %v, want ErrRuleExists", err)
	}
	if _, err := store.Get("missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrRuleNotFound", err)
	}
	if err := store.Update(simpleRule("missing")); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrRuleNotFound", err)
	}
	if err := store.Delete("missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrRuleNotFound", err)
	}
}

// TestInMemoryRuleStoreOrder verifies List keeps insertion order through updates and deletes
func TestInMemoryRuleStoreOrder(t *testing.T) {
	store := NewInMemoryRuleStore()
	for _, id := range []string{"c", "a", "b", "d"} {
		if err := store.Add(simpleRule(id)); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	updated := simpleRule("a")
	updated.Name = "renamed"
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	var got []string
	for _, r := range store.List() {
		got = append(got, r.ID)
	}
	if fmt.Sprint(got) != "[c a d]" {
		t.Errorf("List() order = %v, want [c a d]", got)
	}
}

func TestInMemoryRuleStoreListActive(t *testing.T) {
	store := NewInMemoryRuleStore()
	off := simpleRule("off")
	off.Enabled = false
	for _, r := range []*Rule{simpleRule("on-1"), off, simpleRule("on-2")} {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	active := store.ListActive()
	if len(active) != 2 || active[0].ID != "on-1" || active[1].ID != "on-2" {
		t.Errorf("ListActive() = %v", active)
	}
	if len(store.List()) != 3 {
		t.Errorf("List() = %d rules, want 3", len(store.List()))
	}
}

// TestInMemoryRuleStoreTimestamps verifies Update keeps CreatedAt and moves UpdatedAt
func TestInMemoryRuleStoreTimestamps(t *testing.T) {
	store := NewInMemoryRuleStore()
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	if err := store.Add(simpleRule("r")); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	clock = clock.Add(time.Hour)
	if err := store.Update(simpleRule("r")); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := store.Get("r")
	if !got.CreatedAt.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v, want original", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(clock) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, clock)
	}
}

func TestInMemoryRuleStoreVersion(t *testing.T) {
	store := NewInMemoryRuleStore()
	v0 := store.Version()

	_ = store.Add(simpleRule("a"))
	v1 := store.Version()
	_ = store.Update(simpleRule("a"))
	v2 := store.Version()
	_ = store.Delete("a")
	v3 := store.Version()
	store.Replace([]*Rule{simpleRule("x")})
	v4 := store.Version()

	if !(v0 < v1 && v1 < v2 && v2 < v3 && v3 < v4) {
		t.Errorf("versions should increase: %d %d %d %d %d", v0, v1, v2, v3, v4)
	}

	// failed mutations leave the version alone
	_ = store.Delete("missing")
	if store.Version() != v4 {
		t.Error("failed Delete() bumped the version")
	}
}

func TestInMemoryRuleStoreReplace(t *testing.T) {
	store := NewInMemoryRuleStore()
	_ = store.Add(simpleRule("old"))

	first := simpleRule("a")
	second := simpleRule("a")
	second.Name = "second"
	store.Replace([]*Rule{first, simpleRule("b"), nil, second})

	list := store.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("List() after Replace = %v", list)
	}
	if list[0].Name != "second" {
		t.Errorf("duplicate ID should keep the later rule, got %q", list[0].Name)
	}
	if _, err := store.Get("old"); err == nil {
		t.Error("Replace() should drop previous rules")
	}
}

// TestInMemoryRuleStoreCopies verifies callers cannot mutate stored rules
func TestInMemoryRuleStoreCopies(t *testing.T) {
	store := NewInMemoryRuleStore()
	rule := simpleRule("r", Condition{Type: KindTotalStaff, Operator: OpEquals, Value: Num(1)})
	_ = store.Add(rule)

	rule.Conditions[0].Value.Number = 42
	got, _ := store.Get("r")
	if got.Conditions[0].Value.Number != 1 {
		t.Error("store should keep its own copy on Add")
	}

	got.Name = "changed"
	again, _ := store.Get("r")
	if again.Name == "changed" {
		t.Error("Get() should return a copy")
	}
}

func TestInMemoryRuleStoreConcurrentReadWrite(t *testing.T) {
	store := NewInMemoryRuleStore()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Add(simpleRule(fmt.Sprintf("r-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			_ = store.ListActive()
			_ = store.Version()
		}()
	}
	wg.Wait()

	if n := len(store.List()); n != 20 {
		t.Errorf("List() = %d rules, want 20", n)
	}
	if store.Version() != 20 {
		t.Errorf("Version() = %d, want 20", store.Version())
	}
}
