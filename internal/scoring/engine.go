package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlend/kestrel/internal/domain"
)

// HistoryGetter returns the number of loan applications a customer filed
// within the lookback window. Backed by internal/history in production.
type HistoryGetter func(ctx context.Context, customerID string, window time.Duration) (int64, error)

// Engine evaluates scoring rules against an evaluation context.
//
// The engine is stateless with respect to rules: the rule list is an explicit
// parameter of every Evaluate call, pre-sorted by the store (ascending
// priority, stable id tie-break). The only internal state is the CEL program
// cache for expression rules.
type Engine struct {
	resolver      *Resolver
	history       HistoryGetter
	historyWindow time.Duration
	expressions   *celEvaluator
}

// NewEngine creates a scoring engine. The history getter is optional; without
// it the customer.recentApplications field fails resolution (rules on it are
// simply never triggered).
func NewEngine(history HistoryGetter, historyWindow time.Duration) (*Engine, error) {
	expressions, err := newCELEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression evaluator: %w", err)
	}

	if historyWindow <= 0 {
		historyWindow = 30 * 24 * time.Hour
	}

	return &Engine{
		resolver:      NewResolver(),
		history:       history,
		historyWindow: historyWindow,
		expressions:   expressions,
	}, nil
}

// Resolver exposes the field registry so callers can register extra paths.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// ValidateRule checks a rule at configuration time: expression rules must
// compile, comparison rules must name a known operator. Field paths are not
// validated here because the data model allows arbitrary strings; an unknown
// path degrades to "never triggered" at evaluation time.
func (e *Engine) ValidateRule(rule *domain.ScoringRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if rule.Expression != "" {
		return e.expressions.validate(rule.Expression)
	}
	switch rule.Operator {
	case domain.OpGreater, domain.OpLess, domain.OpEqual,
		domain.OpNotEqual, domain.OpGreaterEqual, domain.OpLessEqual:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrBadOperator, rule.Operator)
	}
}

// Result is the raw outcome of one scoring pass, before decision mapping.
type Result struct {
	TotalScore  float64
	Explanation []string
	Triggered   []domain.RuleHit
}

// Evaluate runs one scoring pass: build the context, walk the rules in the
// order given, accumulate risk points of triggered rules, and record the
// explanation trail in the same order.
//
// A rule that cannot be evaluated (unknown field, absent value, bad literal,
// bad operator, kind mismatch, expression error) contributes nothing and
// never aborts the pass.
func (e *Engine) Evaluate(ctx context.Context, customer *domain.Customer, loan *domain.LoanRequest, rules []*domain.ScoringRule) *Result {
	ec := NewContext(customer, loan, time.Now().UTC())

	if e.history != nil {
		count, err := e.history(ctx, customer.ID, e.historyWindow)
		if err != nil {
			slog.Debug("history lookup failed, field unavailable for this pass",
				"customer_id", customer.ID,
				"error", err,
			)
		} else {
			ec.SetRecentApplications(count)
		}
	}

	return e.EvaluateContext(ec, rules)
}

// EvaluateContext scores against an already-built context. Split out so tests
// can pin "now" and derived fields.
func (e *Engine) EvaluateContext(ec *Context, rules []*domain.ScoringRule) *Result {
	result := &Result{
		Explanation: make([]string, 0, len(rules)),
		Triggered:   make([]domain.RuleHit, 0, len(rules)),
	}

	for _, rule := range rules {
		if !e.evaluateRule(ec, rule) {
			continue
		}

		result.TotalScore += float64(rule.RiskPoints)
		result.Explanation = append(result.Explanation, fmt.Sprintf("%s (%+d points)", rule.Name, rule.RiskPoints))
		result.Triggered = append(result.Triggered, domain.RuleHit{
			RuleID:     rule.ID,
			Name:       rule.Name,
			RiskPoints: rule.RiskPoints,
		})
	}

	return result
}

// evaluateRule returns whether a single rule triggers. All failure modes
// resolve to false.
func (e *Engine) evaluateRule(ec *Context, rule *domain.ScoringRule) bool {
	if rule.Expression != "" {
		triggered, err := e.expressions.eval(rule.Expression, ec)
		if err != nil {
			slog.Debug("expression rule skipped", "rule", rule.Name, "error", err)
			return false
		}
		return triggered
	}

	left, err := e.resolver.Resolve(rule.Field, ec)
	if err != nil {
		slog.Debug("field resolution failed, rule skipped", "rule", rule.Name, "field", rule.Field, "error", err)
		return false
	}

	right, err := ParseLiteral(rule.Value, left.Kind)
	if err != nil {
		slog.Debug("rule literal rejected, rule skipped", "rule", rule.Name, "value", rule.Value, "error", err)
		return false
	}

	triggered, err := Compare(left, rule.Operator, right)
	if err != nil {
		slog.Debug("comparison failed, rule skipped", "rule", rule.Name, "operator", rule.Operator, "error", err)
		return false
	}

	return triggered
}
