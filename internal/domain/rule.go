package domain

import (
	"time"
)

// ScoringRule is one declarative scoring condition: when the rule triggers,
// its RiskPoints are added to the application's total risk score.
//
// A rule triggers when Field resolves against the evaluation context, Value
// parses into the resolved kind, and Operator compares true. A rule carrying
// an Expression instead triggers when the CEL expression evaluates to true.
// Any failure along the way means "not triggered", never an aborted pass.
type ScoringRule struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Simple comparison form
	Field    string `json:"field"`
	Operator string `json:"operator"` // one of >, <, ==, !=, >=, <=
	Value    string `json:"value"`    // literal, interpreted per the resolved field's kind

	// Expression form: CEL over customer.*/loan.* variables. Takes
	// precedence over Field/Operator/Value when non-empty.
	Expression string `json:"expression,omitempty"`

	// RiskPoints can be negative, e.g. a good-credit discount.
	RiskPoints int `json:"riskPoints"`

	// Priority orders evaluation and the explanation trail only; all
	// enabled rules are evaluated regardless. Lower runs first.
	Priority int `json:"priority"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Supported comparison operators.
const (
	OpGreater      = ">"
	OpLess         = "<"
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
)
