package domain

// Risk levels assigned by the decision policy.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Decisions assigned by the decision policy.
const (
	DecisionApproved     = "Approved"
	DecisionManualReview = "Manual Review"
	DecisionRejected     = "Rejected"
)

// RuleHit records one triggered rule and its contribution, in priority order.
type RuleHit struct {
	RuleID     string `json:"ruleId"`
	Name       string `json:"name"`
	RiskPoints int    `json:"riskPoints"`
}

// ScoringResult is the complete outcome of one scoring pass, before it is
// assembled into a persisted LoanApplication.
type ScoringResult struct {
	TotalScore  float64  `json:"totalScore"`
	RiskLevel   string   `json:"riskLevel"`
	Decision    string   `json:"decision"`
	Explanation []string `json:"explanation"`
	Triggered   []RuleHit `json:"triggered"`
}
