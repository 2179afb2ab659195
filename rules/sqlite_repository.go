package rules

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteRuleRepository is the local store: a file next to the server that
// keeps working when the remote database is unreachable.
type SQLiteRuleRepository struct {
	db     *sql.DB
	unitID string
}

// OpenSQLite opens (creating if needed) a SQLite database file.
// Use ":memory:" for tests.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteRuleRepository creates the table if missing and scopes the
// repository to a unit
func NewSQLiteRuleRepository(db *sql.DB, unitID string) (*SQLiteRuleRepository, error) {
	s := &SQLiteRuleRepository{db: db, unitID: unitID}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate local rule store: %w", err)
	}
	return s, nil
}

func (s *SQLiteRuleRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS rules (
		unit_id  TEXT NOT NULL,
		id       TEXT NOT NULL,
		position INTEGER NOT NULL,
		body     JSON NOT NULL,
		PRIMARY KEY (unit_id, id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteRuleRepository) Load(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM rules
		WHERE unit_id = ?
		ORDER BY position ASC
	`, s.unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list local rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rulesList []*Rule
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan local rule: %w", err)
		}
		rule, err := decodeRule(body)
		if err != nil {
			return nil, err
		}
		rulesList = append(rulesList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rulesList, nil
}

func (s *SQLiteRuleRepository) Save(ctx context.Context, rules []*Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin local transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE unit_id = ?`, s.unitID); err != nil {
		return fmt.Errorf("failed to clear local rules: %w", err)
	}
	for i, rule := range rules {
		body, err := encodeRule(rule)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rules (unit_id, id, position, body) VALUES (?, ?, ?, ?)
		`, s.unitID, rule.ID, i, string(body)); err != nil {
			return fmt.Errorf("failed to insert local rule %s: %w", rule.ID, err)
		}
	}
	return tx.Commit()
}
