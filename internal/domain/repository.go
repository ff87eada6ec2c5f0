package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Customer operations
	SaveCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	// Scoring rule operations
	SaveRule(ctx context.Context, rule *ScoringRule) error
	GetRule(ctx context.Context, id string) (*ScoringRule, error)
	ListRules(ctx context.Context) ([]*ScoringRule, error)

	// ListEnabledRules returns exactly the enabled rules, ascending by
	// priority with a stable id tie-break. This is the rule set for one
	// scoring pass.
	ListEnabledRules(ctx context.Context) ([]*ScoringRule, error)

	// DisableRule soft-deletes a rule; disabled rules are excluded from
	// every subsequent scoring pass.
	DisableRule(ctx context.Context, id string) error

	// Loan application operations
	SaveLoanApplication(ctx context.Context, app *LoanApplication) error
	GetLoanApplication(ctx context.Context, id string) (*LoanApplication, error)
	CountApplicationsByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SeedRules inserts the default rule set when the rules table is empty.
	SeedRules bool
}
