package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liamcoop/staffrules/internal/logger"
)

// RuleRepository persists a unit's whole rule collection. The engine's
// in-memory store stays the source of truth; repositories only hydrate it on
// load and receive snapshots after mutations.
type RuleRepository interface {
	// Load returns the stored rules in their saved order; empty when none
	Load(ctx context.Context) ([]*Rule, error)

	// Save replaces the stored collection
	Save(ctx context.Context, rules []*Rule) error
}

// FallbackRepository reads from the remote store and falls back to the local
// store when the remote one fails. Saves go to both.
type FallbackRepository struct {
	remote RuleRepository
	local  RuleRepository
}

// NewFallbackRepository combines a remote and a local repository. Either may
// be nil, in which case only the other is used.
func NewFallbackRepository(remote, local RuleRepository) *FallbackRepository {
	return &FallbackRepository{remote: remote, local: local}
}

func (r *FallbackRepository) Load(ctx context.Context) ([]*Rule, error) {
	if r.remote != nil {
		rules, err := r.remote.Load(ctx)
		if err == nil {
			return rules, nil
		}
		if r.local == nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		logger.WarnPersistenceFallback("load", err)
	}
	if r.local == nil {
		return nil, nil
	}
	rules, err := r.local.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from local store: %w", err)
	}
	return rules, nil
}

// Save writes the local copy first. A remote failure is logged and only
// returned when the local write failed too.
func (r *FallbackRepository) Save(ctx context.Context, rules []*Rule) error {
	var localErr error
	if r.local != nil {
		if err := r.local.Save(ctx, rules); err != nil {
			localErr = fmt.Errorf("local store: %w", err)
		}
	}
	if r.remote == nil {
		return localErr
	}
	if err := r.remote.Save(ctx, rules); err != nil {
		if r.local == nil {
			return fmt.Errorf("remote store: %w", err)
		}
		logger.WarnPersistenceFallback("save", err)
		if localErr != nil {
			return errors.Join(localErr, fmt.Errorf("remote store: %w", err))
		}
	}
	return localErr
}

// encodeRule and decodeRule define the stored document: the rule's own JSON
func encodeRule(rule *Rule) ([]byte, error) {
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	return data, nil
}

func decodeRule(data []byte) (*Rule, error) {
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to decode stored rule: %w", err)
	}
	return &rule, nil
}
