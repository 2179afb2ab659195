package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRuleRepository keeps a unit's rule collection as one JSON document
// under "<prefix>:rules:<unit>". An alternative remote store to Postgres.
type RedisRuleRepository struct {
	client redis.Cmdable
	key    string
}

// NewRedisRuleRepository creates a repository scoped to a unit
func NewRedisRuleRepository(client redis.Cmdable, prefix, unitID string) *RedisRuleRepository {
	return &RedisRuleRepository{client: client, key: fmt.Sprintf("%s:rules:%s", prefix, unitID)}
}

func (s *RedisRuleRepository) Load(ctx context.Context) ([]*Rule, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", s.key, err)
	}

	var rulesList []*Rule
	if err := json.Unmarshal(raw, &rulesList); err != nil {
		return nil, fmt.Errorf("unmarshal rules %q: %w", s.key, err)
	}
	return rulesList, nil
}

func (s *RedisRuleRepository) Save(ctx context.Context, rules []*Rule) error {
	if rules == nil {
		rules = []*Rule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", s.key, err)
	}
	return nil
}
