//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel loan risk
// scoring engine.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Customer → Loan Request → Rules → Risk Score → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. CUSTOMER: An applicant profile (date of birth, credit score, income, debt)
//
// 2. RULE: A risk signal. Each rule has either:
//   - Field + Operator + Value: a simple comparison (customer.age > 60)
//   - Expression: a CEL formula returning a bool
//     and RiskPoints added to the total when the rule triggers.
//
// 3. DECISION BANDS: total score maps to an outcome:
//   - Score < 30   → Low risk    → Approved
//   - Score < 60   → Medium risk → Manual Review
//   - Score >= 60  → High risk   → Rejected
//
// 4. EXPLANATION: "Rule Name (+N points)" per triggered rule, joined with
//    ", " in evaluation order.
//
// REQUIRED RULES: these tests assume the server was started with the default
// seeded rule set (KESTREL_SEED_RULES=true, the Community-tier default):
//
// | Rule                 | Condition               | Points |
// |----------------------|-------------------------|--------|
// | Age Rule             | customer.age > 60       | +30    |
// | Young Applicant      | customer.age < 21       | +20    |
// | Low Credit Score     | customer.creditScore<580| +40    |
// | High Debt Ratio      | debtToIncome > 0.5      | +25    |
// | Large Loan           | loan.amount > 50000     | +15    |
// | Good Credit Discount | customer.creditScore>=750| -20   |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// CustomerRequest is the profile sent to POST /customers
type CustomerRequest struct {
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	DateOfBirth  string   `json:"dateOfBirth"`
	Address      string   `json:"address,omitempty"`
	CreditScore  *int     `json:"creditScore,omitempty"`
	AnnualIncome *float64 `json:"annualIncome,omitempty"`
	ExistingDebt *float64 `json:"existingDebt,omitempty"`
}

// LoanRequest is the application sent to POST /loans
type LoanRequest struct {
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"termMonths"`
}

// LoanResponse is what POST /loans returns
type LoanResponse struct {
	Application Application      `json:"application"`
	Scoring     Scoring          `json:"scoring"`
	Metadata    ResponseMetadata `json:"metadata"`
}

type Application struct {
	ID          string  `json:"id"`
	CustomerID  string  `json:"customerId"`
	RiskScore   float64 `json:"riskScore"`
	RiskLevel   string  `json:"riskLevel"`   // "Low", "Medium", "High"
	Decision    string  `json:"decision"`    // "Approved", "Manual Review", "Rejected"
	Explanation string  `json:"explanation"` // joined rule hits
}

type Scoring struct {
	TotalScore  float64  `json:"totalScore"`
	RiskLevel   string   `json:"riskLevel"`
	Decision    string   `json:"decision"`
	Explanation []string `json:"explanation"`
}

type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, config TestConfig, path string, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

// createCustomer registers an applicant and returns its assigned ID.
func createCustomer(t *testing.T, config TestConfig, req CustomerRequest) string {
	t.Helper()

	resp, body := postJSON(t, config, "/customers", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201 creating customer, got %d: %s", resp.StatusCode, string(body))
	}

	var customer struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &customer); err != nil {
		t.Fatalf("Failed to unmarshal customer: %v (body: %s)", err, string(body))
	}
	if customer.ID == "" {
		t.Fatal("Customer was created without an ID")
	}
	return customer.ID
}

// applyLoan submits a loan request and returns the scored response.
func applyLoan(t *testing.T, config TestConfig, req LoanRequest) LoanResponse {
	t.Helper()

	resp, body := postJSON(t, config, "/loans", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, string(body))
	}

	var result LoanResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// dateOfBirthForAge gives a DOB whose birthday has already passed this year,
// so the computed age is exactly the requested one.
func dateOfBirthForAge(age int) string {
	return time.Now().UTC().AddDate(-age, 0, -1).Format("2006-01-02")
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// ============================================================================
// SCENARIO 1: Healthy Applicant (Approved)
// ============================================================================

func TestHealthyApplicant_Approved(t *testing.T) {
	/*
	   SCENARIO: A 35-year-old with good credit and low debt asks for $10,000

	   EXPECTED BEHAVIOR:
	   - Age Rule: 35 is not > 60 → not triggered
	   - Young Applicant: 35 is not < 21 → not triggered
	   - Low Credit Score: 700 is not < 580 → not triggered
	   - High Debt Ratio: 10000/80000 = 0.125, not > 0.5 → not triggered
	   - Large Loan: $10,000 not > $50,000 → not triggered
	   - Good Credit Discount: 700 < 750 → not triggered

	   FINAL DECISION: score 0 → Low risk → Approved, empty explanation
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:    "Alice",
		LastName:     "Healthy",
		DateOfBirth:  dateOfBirthForAge(35),
		CreditScore:  intPtr(700),
		AnnualIncome: floatPtr(80000),
		ExistingDebt: floatPtr(10000),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     10000,
		TermMonths: 24,
	})

	// ASSERTIONS
	if result.Application.Decision != "Approved" {
		t.Errorf("Expected Approved, got %s", result.Application.Decision)
	}
	if result.Application.RiskScore != 0 {
		t.Errorf("Expected score 0, got %.2f", result.Application.RiskScore)
	}
	if result.Application.Explanation != "" {
		t.Errorf("Expected empty explanation, got %q", result.Application.Explanation)
	}

	t.Logf("✓ Healthy applicant approved: score=%.0f, decision=%s",
		result.Application.RiskScore, result.Application.Decision)
}

// ============================================================================
// SCENARIO 2: Elderly Applicant (Manual Review at the band boundary)
// ============================================================================

func TestElderlyApplicant_ManualReview(t *testing.T) {
	/*
	   SCENARIO: A 70-year-old with otherwise clean finances

	   EXPECTED BEHAVIOR:
	   - Age Rule: 70 > 60 → +30 points
	   - No other rule triggers

	   FINAL DECISION: score 30 lands EXACTLY on the Medium band boundary.
	   Boundary scores belong to the upper band, so 30 → Medium → Manual Review.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:    "Edward",
		LastName:     "Elder",
		DateOfBirth:  dateOfBirthForAge(70),
		CreditScore:  intPtr(700),
		AnnualIncome: floatPtr(80000),
		ExistingDebt: floatPtr(10000),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     10000,
		TermMonths: 24,
	})

	if result.Application.RiskScore != 30 {
		t.Errorf("Expected score 30, got %.2f", result.Application.RiskScore)
	}
	if result.Application.RiskLevel != "Medium" {
		t.Errorf("Expected Medium at boundary score 30, got %s", result.Application.RiskLevel)
	}
	if result.Application.Decision != "Manual Review" {
		t.Errorf("Expected Manual Review, got %s", result.Application.Decision)
	}
	if result.Application.Explanation != "Age Rule (+30 points)" {
		t.Errorf("Unexpected explanation: %q", result.Application.Explanation)
	}

	t.Logf("✓ Elderly applicant flagged: score=%.0f, decision=%s, explanation=%q",
		result.Application.RiskScore, result.Application.Decision, result.Application.Explanation)
}

// ============================================================================
// SCENARIO 3: Age Boundary (exactly 60 does not trigger)
// ============================================================================

func TestExactAgeThreshold_NotTriggered(t *testing.T) {
	/*
	   SCENARIO: Applicant aged exactly 60

	   EXPECTED BEHAVIOR:
	   - Age Rule expression is "customer.age > 60" (strict greater than)
	   - 60 is NOT > 60, so the rule does not trigger

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in threshold logic.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:    "Betty",
		LastName:     "Boundary",
		DateOfBirth:  dateOfBirthForAge(60),
		CreditScore:  intPtr(700),
		AnnualIncome: floatPtr(80000),
		ExistingDebt: floatPtr(10000),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     10000,
		TermMonths: 24,
	})

	if result.Application.RiskScore != 0 {
		t.Errorf("Expected score 0 at exactly age 60, got %.2f", result.Application.RiskScore)
	}
	if result.Application.Decision != "Approved" {
		t.Errorf("Expected Approved, got %s", result.Application.Decision)
	}

	t.Logf("✓ Boundary test passed: age 60 exactly → score=%.0f", result.Application.RiskScore)
}

// ============================================================================
// SCENARIO 4: Compound Risk (Rejected)
// ============================================================================

func TestCompoundRisk_Rejected(t *testing.T) {
	/*
	   SCENARIO: A 70-year-old with poor credit asks for a large loan

	   EXPECTED BEHAVIOR:
	   - Age Rule: 70 > 60 → +30
	   - Low Credit Score: 500 < 580 → +40
	   - Large Loan: $60,000 > $50,000 → +15

	   FINAL DECISION: score 85 → High risk → Rejected. The explanation lists
	   the triggered rules in evaluation (priority) order.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:   "Charlie",
		LastName:    "Compound",
		DateOfBirth: dateOfBirthForAge(70),
		CreditScore: intPtr(500),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     60000,
		TermMonths: 48,
	})

	if result.Application.RiskScore != 85 {
		t.Errorf("Expected score 85, got %.2f", result.Application.RiskScore)
	}
	if result.Application.Decision != "Rejected" {
		t.Errorf("Expected Rejected for compound risk, got %s", result.Application.Decision)
	}

	want := "Age Rule (+30 points), Low Credit Score (+40 points), Large Loan (+15 points)"
	if result.Application.Explanation != want {
		t.Errorf("Unexpected explanation ordering:\n  got:  %q\n  want: %q",
			result.Application.Explanation, want)
	}

	t.Logf("✓ Compound risk rejected: score=%.0f, explanation=%q",
		result.Application.RiskScore, result.Application.Explanation)
}

// ============================================================================
// SCENARIO 5: Negative Points (Good Credit Discount)
// ============================================================================

func TestGoodCreditDiscount_OffsetsRisk(t *testing.T) {
	/*
	   SCENARIO: A 70-year-old with EXCELLENT credit (780)

	   EXPECTED BEHAVIOR:
	   - Age Rule: +30
	   - Good Credit Discount: 780 >= 750 → -20

	   FINAL DECISION: score 10 → Low risk → Approved. Negative points pull the
	   total back under the Medium band, and the discount still appears in the
	   explanation with its sign.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:   "Diana",
		LastName:    "Discount",
		DateOfBirth: dateOfBirthForAge(70),
		CreditScore: intPtr(780),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     10000,
		TermMonths: 24,
	})

	if result.Application.RiskScore != 10 {
		t.Errorf("Expected score 10, got %.2f", result.Application.RiskScore)
	}
	if result.Application.Decision != "Approved" {
		t.Errorf("Expected Approved, got %s", result.Application.Decision)
	}

	want := "Age Rule (+30 points), Good Credit Discount (-20 points)"
	if result.Application.Explanation != want {
		t.Errorf("Unexpected explanation:\n  got:  %q\n  want: %q",
			result.Application.Explanation, want)
	}

	t.Logf("✓ Discount applied: score=%.0f, explanation=%q",
		result.Application.RiskScore, result.Application.Explanation)
}

// ============================================================================
// SCENARIO 6: Missing Attributes Never Fail a Scoring Pass
// ============================================================================

func TestMissingAttributes_SkippedNotFailed(t *testing.T) {
	/*
	   SCENARIO: An applicant with NO credit score, income, or debt on file

	   EXPECTED BEHAVIOR:
	   - Low Credit Score, High Debt Ratio, Good Credit Discount all reference
	     attributes this customer does not have → skipped, never an error
	   - Age Rule still evaluates (date of birth is always present)

	   FINAL DECISION: only age contributes. A 25-year-old scores 0.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:   "Frank",
		LastName:    "Sparse",
		DateOfBirth: dateOfBirthForAge(25),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     10000,
		TermMonths: 24,
	})

	if result.Application.RiskScore != 0 {
		t.Errorf("Expected score 0 for sparse profile, got %.2f", result.Application.RiskScore)
	}
	if result.Application.Decision != "Approved" {
		t.Errorf("Expected Approved, got %s", result.Application.Decision)
	}

	t.Logf("✓ Sparse profile scored without errors: score=%.0f", result.Application.RiskScore)
}

// ============================================================================
// SCENARIO 7: Input Validation
// ============================================================================

func TestUnknownCustomer_NotFound(t *testing.T) {
	/*
	   SCENARIO: Loan request for a customer that does not exist

	   EXPECTED: HTTP 404, and nothing is persisted.
	*/
	config := getTestConfig()

	resp, body := postJSON(t, config, "/loans", LoanRequest{
		CustomerID: fmt.Sprintf("nonexistent-%d", time.Now().UnixNano()),
		Amount:     10000,
		TermMonths: 24,
	})

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown customer, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Validation test passed: unknown customer → HTTP %d", resp.StatusCode)
}

func TestZeroAmount_Error(t *testing.T) {
	/*
	   SCENARIO: Loan request with zero amount

	   EXPECTED: HTTP 400 Bad Request (amount must be positive)
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:   "Zelda",
		LastName:    "Zero",
		DateOfBirth: dateOfBirthForAge(40),
	})

	resp, body := postJSON(t, config, "/loans", LoanRequest{
		CustomerID: customerID,
		Amount:     0,
		TermMonths: 24,
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero amount, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Validation test passed: zero amount → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 8: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	customerID := createCustomer(t, config, CustomerRequest{
		FirstName:   "Meta",
		LastName:    "Data",
		DateOfBirth: dateOfBirthForAge(40),
	})

	result := applyLoan(t, config, LoanRequest{
		CustomerID: customerID,
		Amount:     5000,
		TermMonths: 12,
	})

	if result.Application.ID == "" {
		t.Error("Missing application.id")
	}
	if result.Application.RiskLevel != "Low" && result.Application.RiskLevel != "Medium" && result.Application.RiskLevel != "High" {
		t.Errorf("Invalid riskLevel: %s", result.Application.RiskLevel)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}
	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}

	t.Logf("✓ Metadata complete: appId=%s, traceId=%s, totalMs=%d",
		result.Application.ID[:8], result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}
