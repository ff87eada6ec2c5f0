package domain

import (
	"time"
)

// LoanRequest is the loan terms supplied per evaluation. It is not persisted
// before scoring; the resulting LoanApplication records its terms.
type LoanRequest struct {
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"termMonths"`
}

// LoanApplication is the persisted outcome of one scoring pass. Immutable once
// written; re-scoring creates a new record rather than mutating history.
type LoanApplication struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customerId"`
	LoanAmount     float64   `json:"loanAmount"`
	LoanTermMonths int       `json:"loanTermMonths"`
	RiskScore      float64   `json:"riskScore"`
	RiskLevel      string    `json:"riskLevel"`
	Decision       string    `json:"decision"`
	Explanation    string    `json:"explanation"`
	CreatedAt      time.Time `json:"createdAt"`
}
