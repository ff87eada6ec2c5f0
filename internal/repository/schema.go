package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    date_of_birth TIMESTAMP NOT NULL,
    address TEXT NOT NULL,
    email TEXT NOT NULL,
    credit_score INTEGER,
    annual_income REAL,
    existing_debt REAL,
    employment_status TEXT,
    marital_status TEXT,
    dependents INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);
`

const schemaScoringRules = `
CREATE TABLE IF NOT EXISTS scoring_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    field TEXT NOT NULL DEFAULT '',
    operator TEXT NOT NULL DEFAULT '',
    value TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL DEFAULT '',
    risk_points INTEGER NOT NULL,
    priority INTEGER NOT NULL DEFAULT 100,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_rules_enabled ON scoring_rules(enabled, priority);
`

const schemaLoanApplications = `
CREATE TABLE IF NOT EXISTS loan_applications (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    loan_amount REAL NOT NULL,
    loan_term_months INTEGER NOT NULL,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    decision TEXT NOT NULL,
    explanation TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loan_applications_customer ON loan_applications(customer_id);
CREATE INDEX IF NOT EXISTS idx_loan_applications_created ON loan_applications(customer_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaScoringRules,
		schemaLoanApplications,
	}
}
