package rules

import (
	"fmt"
	"time"
)

// CacheKey identifies one evaluation pass. Version is the rule store's
// version, so a pass computed before any mutation can never be served after it.
// Fingerprint hashes the active rules and the roster; Version is local to one
// process, so caches shared between processes key on Fingerprint alone.
type CacheKey struct {
	Start       int64
	Days        int
	Version     uint64
	Fingerprint string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s", k.Start, k.Days, k.Version, k.Fingerprint)
}

// EvaluationCache holds recently computed violation lists.
// This allows swapping between in-memory and Redis implementations.
type EvaluationCache interface {
	// Get returns a fresh entry for key, or false on a miss
	Get(key CacheKey) ([]*Violation, bool)

	// Set stores violations for key
	Set(key CacheKey, violations []*Violation)

	// Invalidate drops every entry
	Invalidate()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// Freshness is how long an entry may be served after it was stored
	Freshness time.Duration

	// MaxEntries bounds the in-memory cache; it is cleared when exceeded
	MaxEntries int
}

// DefaultCacheConfig returns the engine's defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Freshness:  time.Second,
		MaxEntries: 16,
	}
}

func copyViolations(vs []*Violation) []*Violation {
	if vs == nil {
		return nil
	}
	out := make([]*Violation, len(vs))
	for i, v := range vs {
		c := *v
		out[i] = &c
	}
	return out
}
