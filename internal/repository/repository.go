// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openlend/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.SeedRules {
		if err := repo.seedDefaultRules(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCustomer stores a customer, assigning an id when absent.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c == nil {
		return fmt.Errorf("%w: customer is required", ErrInvalidInput)
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO customers (
			id, first_name, last_name, date_of_birth, address, email,
			credit_score, annual_income, existing_debt,
			employment_status, marital_status, dependents,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			date_of_birth = excluded.date_of_birth,
			address = excluded.address,
			email = excluded.email,
			credit_score = excluded.credit_score,
			annual_income = excluded.annual_income,
			existing_debt = excluded.existing_debt,
			employment_status = excluded.employment_status,
			marital_status = excluded.marital_status,
			dependents = excluded.dependents,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.FirstName, c.LastName, c.DateOfBirth, c.Address, c.Email,
		nullableInt(c.CreditScore), nullableFloat(c.AnnualIncome), nullableFloat(c.ExistingDebt),
		nullableString(c.EmploymentStatus), nullableString(c.MaritalStatus), nullableInt(c.Dependents),
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetCustomer retrieves a customer by id.
func (r *SQLRepository) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, first_name, last_name, date_of_birth, address, email,
			   credit_score, annual_income, existing_debt,
			   employment_status, marital_status, dependents,
			   created_at, updated_at
		FROM customers
		WHERE id = ?
	`

	var c domain.Customer
	var creditScore, dependents sql.NullInt64
	var annualIncome, existingDebt sql.NullFloat64
	var employmentStatus, maritalStatus sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.DateOfBirth, &c.Address, &c.Email,
		&creditScore, &annualIncome, &existingDebt,
		&employmentStatus, &maritalStatus, &dependents,
		&c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if creditScore.Valid {
		v := int(creditScore.Int64)
		c.CreditScore = &v
	}
	if annualIncome.Valid {
		c.AnnualIncome = &annualIncome.Float64
	}
	if existingDebt.Valid {
		c.ExistingDebt = &existingDebt.Float64
	}
	if employmentStatus.Valid {
		c.EmploymentStatus = &employmentStatus.String
	}
	if maritalStatus.Valid {
		c.MaritalStatus = &maritalStatus.String
	}
	if dependents.Valid {
		v := int(dependents.Int64)
		c.Dependents = &v
	}

	return &c, nil
}

// SaveRule stores a scoring rule, assigning an id when absent.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.ScoringRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}
	if rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidInput)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO scoring_rules (
			id, name, field, operator, value, expression,
			risk_points, priority, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			field = excluded.field,
			operator = excluded.operator,
			value = excluded.value,
			expression = excluded.expression,
			risk_points = excluded.risk_points,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Field, rule.Operator, rule.Value, rule.Expression,
		rule.RiskPoints, rule.Priority, enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetRule retrieves a rule by id, enabled or not.
func (r *SQLRepository) GetRule(ctx context.Context, id string) (*domain.ScoringRule, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := ruleSelect + ` WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves every rule, enabled and disabled, for administration.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.ScoringRule, error) {
	query := ruleSelect + ` ORDER BY priority ASC, created_at ASC, id ASC`
	return r.queryRules(ctx, query)
}

// ListEnabledRules retrieves the rule set for one scoring pass: exactly the
// enabled rules, ascending by priority, ties broken by insertion then id so
// the order is stable.
func (r *SQLRepository) ListEnabledRules(ctx context.Context) ([]*domain.ScoringRule, error) {
	query := ruleSelect + ` WHERE enabled = 1 ORDER BY priority ASC, created_at ASC, id ASC`
	return r.queryRules(ctx, query)
}

// DisableRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DisableRule(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `UPDATE scoring_rules SET enabled = 0, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveLoanApplication stores a scored application. Applications are written
// once and never updated.
func (r *SQLRepository) SaveLoanApplication(ctx context.Context, app *domain.LoanApplication) error {
	if app == nil {
		return fmt.Errorf("%w: application is required", ErrInvalidInput)
	}
	if app.CustomerID == "" {
		return fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO loan_applications (
			id, customer_id, loan_amount, loan_term_months,
			risk_score, risk_level, decision, explanation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ID, app.CustomerID, app.LoanAmount, app.LoanTermMonths,
		app.RiskScore, app.RiskLevel, app.Decision, app.Explanation, app.CreatedAt,
	)
	return err
}

// GetLoanApplication retrieves a loan application by id.
func (r *SQLRepository) GetLoanApplication(ctx context.Context, id string) (*domain.LoanApplication, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, customer_id, loan_amount, loan_term_months,
			   risk_score, risk_level, decision, explanation, created_at
		FROM loan_applications
		WHERE id = ?
	`

	var app domain.LoanApplication
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&app.ID, &app.CustomerID, &app.LoanAmount, &app.LoanTermMonths,
		&app.RiskScore, &app.RiskLevel, &app.Decision, &app.Explanation, &app.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &app, nil
}

// CountApplicationsByCustomer counts a customer's applications since a point
// in time. Backs the customer.recentApplications derived field.
func (r *SQLRepository) CountApplicationsByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error) {
	if customerID == "" {
		return 0, fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM loan_applications
		WHERE customer_id = ? AND created_at >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), customerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const ruleSelect = `
	SELECT id, name, field, operator, value, expression,
		   risk_points, priority, enabled, created_at, updated_at
	FROM scoring_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.ScoringRule, error) {
	var rule domain.ScoringRule
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Field, &rule.Operator, &rule.Value, &rule.Expression,
		&rule.RiskPoints, &rule.Priority, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

func (r *SQLRepository) queryRules(ctx context.Context, query string) ([]*domain.ScoringRule, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScoringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
