// Package decision maps a total risk score to a risk level and decision, and
// assembles the persisted loan application record.
package decision

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/scoring"
)

// Score thresholds. Boundary values belong to the upper band: a score of
// exactly 30 is Medium/Manual Review, exactly 60 is High/Rejected.
const (
	MediumThreshold = 30.0
	HighThreshold   = 60.0
)

// Classify maps a total risk score to a risk level and decision. Pure and
// total: exactly one band matches any score.
func Classify(totalScore float64) (riskLevel string, decision string) {
	switch {
	case totalScore < MediumThreshold:
		return domain.RiskLow, domain.DecisionApproved
	case totalScore < HighThreshold:
		return domain.RiskMedium, domain.DecisionManualReview
	default:
		return domain.RiskHigh, domain.DecisionRejected
	}
}

// Processor turns a scoring result into domain records.
type Processor struct{}

// NewProcessor creates a decision processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Result combines classification with the scoring pass output.
func (p *Processor) Result(res *scoring.Result) *domain.ScoringResult {
	level, dec := Classify(res.TotalScore)
	return &domain.ScoringResult{
		TotalScore:  res.TotalScore,
		RiskLevel:   level,
		Decision:    dec,
		Explanation: res.Explanation,
		Triggered:   res.Triggered,
	}
}

// Assemble builds the loan application record for one scoring pass. The
// explanation trail is joined with ", " in priority order.
func (p *Processor) Assemble(loan *domain.LoanRequest, res *domain.ScoringResult) *domain.LoanApplication {
	return &domain.LoanApplication{
		ID:             uuid.New().String(),
		CustomerID:     loan.CustomerID,
		LoanAmount:     loan.Amount,
		LoanTermMonths: loan.TermMonths,
		RiskScore:      res.TotalScore,
		RiskLevel:      res.RiskLevel,
		Decision:       res.Decision,
		Explanation:    strings.Join(res.Explanation, ", "),
		CreatedAt:      time.Now().UTC(),
	}
}

// ShouldAlert reports whether a scored application warrants an alert event.
func ShouldAlert(app *domain.LoanApplication) bool {
	return app.Decision == domain.DecisionRejected
}
