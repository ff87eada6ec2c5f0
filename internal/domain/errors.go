package domain

import "errors"

// Domain-level "not found" conditions surfaced by the orchestration boundary.
// The API layer maps these to 404 responses.
var (
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrLoanApplicationNotFound = errors.New("loan application not found")
)
