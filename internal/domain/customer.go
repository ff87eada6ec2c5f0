// Package domain defines the core types and collaborator interfaces for Kestrel.
package domain

import (
	"time"
)

// Customer is a registered loan applicant. Optional financial attributes are
// pointers: a nil value means the attribute was never supplied, and any rule
// referencing it resolves as "not triggered" rather than comparing a zero.
type Customer struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Address     string    `json:"address"`
	Email       string    `json:"email"`

	// Optional financial attributes
	CreditScore      *int     `json:"creditScore,omitempty"`
	AnnualIncome     *float64 `json:"annualIncome,omitempty"`
	ExistingDebt     *float64 `json:"existingDebt,omitempty"`
	EmploymentStatus *string  `json:"employmentStatus,omitempty"`
	MaritalStatus    *string  `json:"maritalStatus,omitempty"`
	Dependents       *int     `json:"dependents,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Age returns the customer's age in whole years at the given instant.
// A birthday not yet reached this year does not count.
func (c *Customer) Age(now time.Time) int {
	years := now.Year() - c.DateOfBirth.Year()
	birthdayThisYear := time.Date(now.Year(), c.DateOfBirth.Month(), c.DateOfBirth.Day(), 0, 0, 0, 0, now.Location())
	if now.Before(birthdayThisYear) {
		years--
	}
	return years
}
