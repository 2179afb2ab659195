package rules

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRuleRepository stores one unit's rules in PostgreSQL as JSONB
// documents, ordered by position.
type PostgresRuleRepository struct {
	db     *sql.DB
	unitID string
}

// NewPostgresRuleRepository creates a repository scoped to a unit
func NewPostgresRuleRepository(db *sql.DB, unitID string) *PostgresRuleRepository {
	return &PostgresRuleRepository{
		db:     db,
		unitID: unitID,
	}
}

// Load returns the unit's rules in saved order
func (s *PostgresRuleRepository) Load(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body
		FROM rules
		WHERE unit_id = $1
		ORDER BY position ASC
	`, s.unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule, err := decodeRule(body)
		if err != nil {
			return nil, err
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Save replaces the unit's rules in a single transaction
func (s *PostgresRuleRepository) Save(ctx context.Context, rules []*Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO units (id, name)
		VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING
	`, s.unitID); err != nil {
		return fmt.Errorf("failed to ensure unit: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE unit_id = $1`, s.unitID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	for i, rule := range rules {
		body, err := encodeRule(rule)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (id, unit_id, position, name, enabled, body, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, rule.ID, s.unitID, i, rule.Name, rule.Enabled, string(body), rule.CreatedAt, rule.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}
