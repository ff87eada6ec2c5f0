package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/openlend/kestrel/internal/bus"
	"github.com/openlend/kestrel/internal/cache"
	"github.com/openlend/kestrel/internal/decision"
	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/history"
	"github.com/openlend/kestrel/internal/repository"
	"github.com/openlend/kestrel/internal/scoring"
	"github.com/openlend/kestrel/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
		SeedRules:  true,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	hist := history.NewService(repo, c)
	engine, err := scoring.NewEngine(hist.Getter(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	loans := service.NewLoanService(repo, c, b, engine, decision.NewProcessor(), hist, 30*time.Second, 30*24*time.Hour)

	return NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, repo, c, b, engine, loans, "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func createTestCustomer(t *testing.T, srv *Server, dateOfBirth string, creditScore int) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/customers", map[string]interface{}{
		"firstName":   "Jane",
		"lastName":    "Doe",
		"dateOfBirth": dateOfBirth,
		"address":     "1 Main Street",
		"creditScore": creditScore,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating customer, got %d: %s", rec.Code, rec.Body.String())
	}
	var customer domain.Customer
	decodeBody(t, rec, &customer)
	if customer.ID == "" {
		t.Fatal("expected customer id to be assigned")
	}
	return customer.ID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var health map[string]string
	decodeBody(t, rec, &health)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", health["status"])
	}

	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCustomerEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		id := createTestCustomer(t, srv, "1990-06-15", 700)

		rec := doJSON(t, srv, http.MethodGet, "/customers/"+id, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var customer domain.Customer
		decodeBody(t, rec, &customer)
		if customer.FirstName != "Jane" || customer.LastName != "Doe" {
			t.Errorf("unexpected customer: %+v", customer)
		}
		if customer.CreditScore == nil || *customer.CreditScore != 700 {
			t.Errorf("credit score not round-tripped: %v", customer.CreditScore)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/customers/nonexistent", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("MissingName", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/customers", map[string]interface{}{
			"firstName":   "Jane",
			"dateOfBirth": "1990-06-15",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BadDateOfBirth", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/customers", map[string]interface{}{
			"firstName":   "Jane",
			"lastName":    "Doe",
			"dateOfBirth": "15/06/1990",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestLoanEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// 70-year-old with low credit: Age Rule (+30) and Low Credit Score (+40)
	dob := time.Now().UTC().AddDate(-70, 0, -1).Format("2006-01-02")
	customerID := createTestCustomer(t, srv, dob, 500)

	var appID string

	t.Run("Apply", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/loans", map[string]interface{}{
			"customerId": customerID,
			"amount":     10000,
			"termMonths": 24,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp LoanResponse
		decodeBody(t, rec, &resp)
		if resp.Application == nil || resp.Scoring == nil {
			t.Fatal("expected application and scoring in response")
		}
		if resp.Application.RiskScore != 70 {
			t.Errorf("expected score 70, got %v", resp.Application.RiskScore)
		}
		if resp.Application.Decision != domain.DecisionRejected {
			t.Errorf("expected Rejected, got %s", resp.Application.Decision)
		}
		if resp.Application.Explanation != "Age Rule (+30 points), Low Credit Score (+40 points)" {
			t.Errorf("unexpected explanation: %q", resp.Application.Explanation)
		}
		if resp.Metadata.Version != "test" {
			t.Errorf("expected version in metadata, got %q", resp.Metadata.Version)
		}
		appID = resp.Application.ID
	})

	t.Run("GetApplication", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/loans/"+appID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var app domain.LoanApplication
		decodeBody(t, rec, &app)
		if app.CustomerID != customerID {
			t.Errorf("expected customer %s, got %s", customerID, app.CustomerID)
		}
	})

	t.Run("ApplicationNotFound", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/loans/nonexistent", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/loans", map[string]interface{}{
			"customerId": "nonexistent",
			"amount":     10000,
			"termMonths": 24,
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		cases := []map[string]interface{}{
			{"amount": 10000, "termMonths": 24},                            // missing customerId
			{"customerId": customerID, "amount": 0, "termMonths": 24},      // non-positive amount
			{"customerId": customerID, "amount": -50, "termMonths": 24},    // negative amount
			{"customerId": customerID, "amount": 10000, "termMonths": 0},   // non-positive term
		}
		for i, body := range cases {
			rec := doJSON(t, srv, http.MethodPost, "/loans", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("case %d: expected 400, got %d", i, rec.Code)
			}
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("List", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/rules", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Rules []*domain.ScoringRule `json:"rules"`
			Count int                   `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 6 {
			t.Errorf("expected 6 seeded rules, got %d", resp.Count)
		}
	})

	t.Run("Create", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "High Risk Address",
			"field":      "customer.address",
			"operator":   "==",
			"value":      "High Risk City",
			"riskPoints": 50,
			"priority":   70,
			"enabled":    true,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var rule domain.ScoringRule
		decodeBody(t, rec, &rule)
		if rule.ID == "" {
			t.Error("expected rule id to be assigned")
		}

		get := doJSON(t, srv, http.MethodGet, "/rules/"+rule.ID, nil)
		if get.Code != http.StatusOK {
			t.Errorf("expected 200 fetching created rule, got %d", get.Code)
		}
	})

	t.Run("CreateExpressionRule", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Elderly Large Loan",
			"expression": `customer.age > 65 && loan.amount > 50000.0`,
			"riskPoints": 35,
			"priority":   80,
			"enabled":    true,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("CreateInvalidOperator", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Broken",
			"field":      "customer.age",
			"operator":   "=>",
			"value":      "60",
			"riskPoints": 10,
			"enabled":    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("CreateNonBoolExpression", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Broken",
			"expression": `customer.age`,
			"riskPoints": 10,
			"enabled":    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("CreateMissingDefinition", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Empty",
			"riskPoints": 10,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		created := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Tunable",
			"field":      "customer.age",
			"operator":   ">",
			"value":      "60",
			"riskPoints": 10,
			"priority":   90,
			"enabled":    true,
		})
		if created.Code != http.StatusCreated {
			t.Fatalf("setup failed: %d", created.Code)
		}
		var rule domain.ScoringRule
		decodeBody(t, created, &rule)

		rec := doJSON(t, srv, http.MethodPut, "/rules/"+rule.ID, map[string]interface{}{
			"name":       "Tunable",
			"field":      "customer.age",
			"operator":   ">",
			"value":      "65",
			"riskPoints": 20,
			"priority":   90,
			"enabled":    true,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var updated domain.ScoringRule
		decodeBody(t, rec, &updated)
		if updated.Value != "65" || updated.RiskPoints != 20 {
			t.Errorf("update not applied: %+v", updated)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPut, "/rules/nonexistent", map[string]interface{}{
			"name":       "Ghost",
			"field":      "customer.age",
			"operator":   ">",
			"value":      "60",
			"riskPoints": 10,
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		created := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "Disposable",
			"field":      "customer.age",
			"operator":   ">",
			"value":      "60",
			"riskPoints": 10,
			"enabled":    true,
		})
		var rule domain.ScoringRule
		decodeBody(t, created, &rule)

		rec := doJSON(t, srv, http.MethodDelete, "/rules/"+rule.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		// Soft disable: still readable, no longer enabled
		get := doJSON(t, srv, http.MethodGet, "/rules/"+rule.ID, nil)
		if get.Code != http.StatusOK {
			t.Fatalf("expected disabled rule to stay readable, got %d", get.Code)
		}
		var disabled domain.ScoringRule
		decodeBody(t, get, &disabled)
		if disabled.Enabled {
			t.Error("expected rule to be disabled")
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodDelete, "/rules/nonexistent", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Message string `json:"message"`
			Count   int    `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count == 0 {
			t.Error("expected enabled rules after reload")
		}
	})
}

// A created rule takes effect on the very next scoring pass even though the
// previous pass cached a rule snapshot.
func TestRuleCreationAffectsScoring(t *testing.T) {
	srv := newTestServer(t)

	dob := time.Now().UTC().AddDate(-30, 0, -1).Format("2006-01-02")
	customerID := createTestCustomer(t, srv, dob, 700)

	apply := func() *domain.LoanApplication {
		rec := doJSON(t, srv, http.MethodPost, "/loans", map[string]interface{}{
			"customerId": customerID,
			"amount":     60000,
			"termMonths": 48,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("apply failed: %d: %s", rec.Code, rec.Body.String())
		}
		var resp LoanResponse
		decodeBody(t, rec, &resp)
		return resp.Application
	}

	// Seeded "Large Loan" rule fires for a 60k loan
	first := apply()
	if first.RiskScore != 15 {
		t.Fatalf("expected score 15 before new rule, got %v", first.RiskScore)
	}

	rec := doJSON(t, srv, http.MethodPost, "/rules", map[string]interface{}{
		"name":       "Long Term",
		"field":      "loan.termMonths",
		"operator":   ">=",
		"value":      "48",
		"riskPoints": 25,
		"priority":   100,
		"enabled":    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rule creation failed: %d: %s", rec.Code, rec.Body.String())
	}

	second := apply()
	if second.RiskScore != 40 {
		t.Errorf("expected score 40 after new rule, got %v", second.RiskScore)
	}
	want := fmt.Sprintf("%s, %s", "Large Loan (+15 points)", "Long Term (+25 points)")
	if second.Explanation != want {
		t.Errorf("unexpected explanation: %q", second.Explanation)
	}
}
