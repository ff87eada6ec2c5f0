package repository

import (
	"context"
	"log/slog"

	"github.com/openlend/kestrel/internal/domain"
)

// defaultRules is the starter rule set inserted into an empty database.
// Administrators are expected to tune or replace these via the rules API.
func defaultRules() []*domain.ScoringRule {
	return []*domain.ScoringRule{
		{
			Name:       "Age Rule",
			Field:      "customer.age",
			Operator:   domain.OpGreater,
			Value:      "60",
			RiskPoints: 30,
			Priority:   10,
			Enabled:    true,
		},
		{
			Name:       "Young Applicant",
			Field:      "customer.age",
			Operator:   domain.OpLess,
			Value:      "21",
			RiskPoints: 20,
			Priority:   20,
			Enabled:    true,
		},
		{
			Name:       "Low Credit Score",
			Field:      "customer.creditScore",
			Operator:   domain.OpLess,
			Value:      "580",
			RiskPoints: 40,
			Priority:   30,
			Enabled:    true,
		},
		{
			Name:       "High Debt Ratio",
			Field:      "customer.debtToIncome",
			Operator:   domain.OpGreater,
			Value:      "0.5",
			RiskPoints: 25,
			Priority:   40,
			Enabled:    true,
		},
		{
			Name:       "Large Loan",
			Field:      "loan.amount",
			Operator:   domain.OpGreater,
			Value:      "50000",
			RiskPoints: 15,
			Priority:   50,
			Enabled:    true,
		},
		{
			Name:       "Good Credit Discount",
			Field:      "customer.creditScore",
			Operator:   domain.OpGreaterEqual,
			Value:      "750",
			RiskPoints: -20,
			Priority:   60,
			Enabled:    true,
		},
	}
}

// seedDefaultRules inserts the starter rules when the table is empty. A
// non-empty table is left untouched so customized rule sets survive restarts.
func (r *SQLRepository) seedDefaultRules(ctx context.Context) error {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scoring_rules`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	rules := defaultRules()
	for _, rule := range rules {
		if err := r.SaveRule(ctx, rule); err != nil {
			return err
		}
	}

	slog.Info("seeded default scoring rules", "count", len(rules))
	return nil
}
