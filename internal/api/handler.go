package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/repository"
	"github.com/openlend/kestrel/internal/scoring"
	"github.com/openlend/kestrel/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *scoring.Engine
	loans   *service.LoanService
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *scoring.Engine, loans *service.LoanService, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		loans:   loans,
		version: version,
	}
}

// CustomerRequest is the request body for POST /customers.
type CustomerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"` // YYYY-MM-DD
	Address     string `json:"address"`
	Email       string `json:"email"`

	CreditScore      *int     `json:"creditScore,omitempty"`
	AnnualIncome     *float64 `json:"annualIncome,omitempty"`
	ExistingDebt     *float64 `json:"existingDebt,omitempty"`
	EmploymentStatus *string  `json:"employmentStatus,omitempty"`
	MaritalStatus    *string  `json:"maritalStatus,omitempty"`
	Dependents       *int     `json:"dependents,omitempty"`
}

// CreateCustomer handles POST /customers requests.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.FirstName == "" || req.LastName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "firstName and lastName are required",
		})
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dateOfBirth must be formatted YYYY-MM-DD",
		})
		return
	}

	customer := &domain.Customer{
		ID:               uuid.New().String(),
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DateOfBirth:      dob,
		Address:          req.Address,
		Email:            req.Email,
		CreditScore:      req.CreditScore,
		AnnualIncome:     req.AnnualIncome,
		ExistingDebt:     req.ExistingDebt,
		EmploymentStatus: req.EmploymentStatus,
		MaritalStatus:    req.MaritalStatus,
		Dependents:       req.Dependents,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	if err := h.repo.SaveCustomer(ctx, customer); err != nil {
		slog.Error("failed to save customer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save customer",
		})
		return
	}

	slog.Info("customer created", "id", customer.ID)
	writeJSON(w, http.StatusCreated, customer)
}

// GetCustomer retrieves a customer by ID.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	customer, err := h.repo.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("failed to get customer", "id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

// LoanRequestBody is the request body for POST /loans.
type LoanRequestBody struct {
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"termMonths"`
}

// LoanResponse is the response for POST /loans.
type LoanResponse struct {
	Application *domain.LoanApplication `json:"application"`
	Scoring     *domain.ScoringResult   `json:"scoring"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ApplyLoan handles POST /loans requests: it scores the application
// synchronously and returns the persisted outcome.
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req LoanRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if req.TermMonths <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "termMonths must be positive",
		})
		return
	}

	app, result, err := h.loans.Apply(ctx, &domain.LoanRequest{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		TermMonths: req.TermMonths,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("loan scoring failed", "customer_id", req.CustomerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "loan scoring failed",
		})
		return
	}

	resp := LoanResponse{
		Application: app,
		Scoring:     result,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// GetLoan retrieves a loan application by ID.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID := chi.URLParam(r, "id")

	if appID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loan application id is required",
		})
		return
	}

	app, err := h.loans.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanApplicationNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "loan application not found",
			})
			return
		}
		slog.Error("failed to get loan application", "id", appID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get loan application",
		})
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all rules, enabled and disabled, in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListRules(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	rule, err := h.repo.GetRule(r.Context(), ruleID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get rule", "id", ruleID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Field      string `json:"field,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      string `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
	RiskPoints int    `json:"riskPoints"`
	Priority   int    `json:"priority"`
	Enabled    bool   `json:"enabled"`
}

// CreateRule creates a new scoring rule. The rule snapshot is invalidated
// immediately so the next scoring pass sees it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if req.Expression == "" && (req.Field == "" || req.Operator == "" || req.Value == "") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "either expression or field, operator, and value are required",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.ScoringRule{
		ID:         req.ID,
		Name:       req.Name,
		Field:      req.Field,
		Operator:   req.Operator,
		Value:      req.Value,
		Expression: req.Expression,
		RiskPoints: req.RiskPoints,
		Priority:   req.Priority,
		Enabled:    req.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	h.loans.InvalidateRules(ctx)

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule replaces an existing rule's definition.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	existing, err := h.repo.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	rule := &domain.ScoringRule{
		ID:         ruleID,
		Name:       req.Name,
		Field:      req.Field,
		Operator:   req.Operator,
		Value:      req.Value,
		Expression: req.Expression,
		RiskPoints: req.RiskPoints,
		Priority:   req.Priority,
		Enabled:    req.Enabled,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, rule); err != nil {
		slog.Error("failed to update rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update rule",
		})
		return
	}

	h.loans.InvalidateRules(ctx)

	slog.Info("rule updated", "id", ruleID)
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule soft-disables a rule; it is excluded from every subsequent
// scoring pass but remains readable for audit.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if err := h.repo.DisableRule(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to disable rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to disable rule",
		})
		return
	}

	h.loans.InvalidateRules(ctx)

	slog.Info("rule disabled", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule disabled",
	})
}

// ReloadRules drops the cached rule snapshot so the next scoring pass reads
// the rule set fresh from the database.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.loans.InvalidateRules(ctx)

	rules, err := h.repo.ListEnabledRules(ctx)
	if err != nil {
		slog.Error("failed to list enabled rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	slog.Info("rules reloaded", "count", len(rules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(rules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
