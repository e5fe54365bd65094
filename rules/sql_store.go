package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liamcoop/eligibility/expr"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by SQLRuleStore.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// placeholder returns the bind parameter for the 1-based index.
func (d Dialect) placeholder(index int) string {
	if d == SQLite {
		return fmt.Sprintf("?%d", index)
	}
	return fmt.Sprintf("$%d", index)
}

// bind rewrites $N placeholders in query for the dialect.
func (d Dialect) bind(query string) string {
	if d == Postgres {
		return query
	}
	for i := 9; i >= 1; i-- {
		query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), d.placeholder(i))
	}
	return query
}

// SQLRuleStore implements RuleStore backed by PostgreSQL or SQLite. Trees
// are stored in their JSON form and validated again when read back.
type SQLRuleStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRuleStore creates a RuleStore over an open database whose schema has
// been migrated.
func NewSQLRuleStore(db *sql.DB, dialect Dialect) *SQLRuleStore {
	return &SQLRuleStore{
		db:      db,
		dialect: dialect,
	}
}

// OpenDB opens and pings a database for the dialect.
func OpenDB(dialect Dialect, url string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

const ruleColumns = `id, name, rule_string, ast_json, kind, operator, source_rule_ids, active, created_at, updated_at`

// Add inserts a new rule into the database
func (s *SQLRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(s.dialect.bind(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)
	`), rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	astJSON, err := expr.EncodeJSON(rule.AST)
	if err != nil {
		return fmt.Errorf("failed to encode rule tree: %w", err)
	}
	sourceIDs := rule.SourceRuleIDs
	if sourceIDs == nil {
		sourceIDs = []string{}
	}
	sourceJSON, err := json.Marshal(sourceIDs)
	if err != nil {
		return fmt.Errorf("failed to encode source rule ids: %w", err)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	// JSON goes in as text so lib/pq sends it as a JSONB literal.
	_, err = s.db.Exec(s.dialect.bind(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`), rule.ID, rule.Name, rule.RuleString, string(astJSON), string(rule.Kind),
		string(rule.Operator), string(sourceJSON), rule.Active, now)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *SQLRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(s.dialect.bind(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`), id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns rules newest first
func (s *SQLRuleStore) List(activeOnly bool) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rulesList := []*Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// SetActive updates the active flag and timestamp
func (s *SQLRuleStore) SetActive(id string, active bool) error {
	result, err := s.db.Exec(s.dialect.bind(`
		UPDATE rules
		SET active = $1, updated_at = $2
		WHERE id = $3
	`), active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}

// Delete removes a rule from the database
func (s *SQLRuleStore) Delete(id string) error {
	result, err := s.db.Exec(s.dialect.bind(`
		DELETE FROM rules
		WHERE id = $1
	`), id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLRuleStore) Ping() error {
	return s.db.Ping()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*Rule, error) {
	var (
		r          Rule
		astJSON    []byte
		sourceJSON []byte
		kind       string
		operator   string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.RuleString, &astJSON, &kind, &operator,
		&sourceJSON, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	ast, err := expr.DecodeJSON(astJSON)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.AST = ast
	r.Kind = Kind(kind)
	r.Operator = expr.LogicalOp(operator)

	if len(sourceJSON) > 0 {
		if err := json.Unmarshal(sourceJSON, &r.SourceRuleIDs); err != nil {
			return nil, fmt.Errorf("rule %s: decode source rule ids: %w", r.ID, err)
		}
	}
	if len(r.SourceRuleIDs) == 0 {
		r.SourceRuleIDs = nil
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()

	return &r, nil
}
