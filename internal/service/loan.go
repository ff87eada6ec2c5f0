// Package service implements the application-facing orchestration: look up
// the customer, run the scoring pass, persist the outcome, emit events.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlend/kestrel/internal/decision"
	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/history"
	"github.com/openlend/kestrel/internal/repository"
	"github.com/openlend/kestrel/internal/scoring"
)

// LoanService coordinates one scoring pass end to end. The scoring engine and
// decision policy stay pure; every side effect (store reads, the application
// write, event publishing) happens here.
type LoanService struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *scoring.Engine
	processor *decision.Processor
	history   *history.Service

	snapshotTTL   time.Duration
	historyWindow time.Duration
}

// NewLoanService creates the orchestration service. Cache and bus are
// optional; without a cache every pass reads rules from the repository,
// without a bus no events are emitted.
func NewLoanService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *scoring.Engine, processor *decision.Processor, hist *history.Service, snapshotTTL, historyWindow time.Duration) *LoanService {
	if snapshotTTL <= 0 {
		snapshotTTL = 30 * time.Second
	}
	if historyWindow <= 0 {
		historyWindow = 30 * 24 * time.Hour
	}
	return &LoanService{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		engine:        engine,
		processor:     processor,
		history:       hist,
		snapshotTTL:   snapshotTTL,
		historyWindow: historyWindow,
	}
}

// Apply scores a loan request and persists the resulting application.
// Returns domain.ErrCustomerNotFound without persisting anything when the
// customer does not exist.
func (s *LoanService) Apply(ctx context.Context, req *domain.LoanRequest) (*domain.LoanApplication, *domain.ScoringResult, error) {
	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("customer lookup failed: %w", err)
	}

	rules, err := s.enabledRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}

	result := s.processor.Result(s.engine.Evaluate(ctx, customer, req, rules))
	app := s.processor.Assemble(req, result)

	if err := s.repo.SaveLoanApplication(ctx, app); err != nil {
		return nil, nil, fmt.Errorf("failed to save application: %w", err)
	}

	if s.history != nil {
		s.history.RecordSubmission(ctx, customer.ID, s.historyWindow)
	}

	s.publishScored(ctx, app)

	slog.Info("loan application scored",
		"application_id", app.ID,
		"customer_id", app.CustomerID,
		"score", app.RiskScore,
		"risk_level", app.RiskLevel,
		"decision", app.Decision,
		"rules_evaluated", len(rules),
		"rules_triggered", len(result.Triggered),
	)

	return app, result, nil
}

// Get fetches a previously scored application.
func (s *LoanService) Get(ctx context.Context, id string) (*domain.LoanApplication, error) {
	app, err := s.repo.GetLoanApplication(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrLoanApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// InvalidateRules drops the cached rule snapshot and broadcasts the change.
// Called on every rule create/update/disable so a stale snapshot can never
// change a decision.
func (s *LoanService) InvalidateRules(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, domain.RuleSnapshotKey); err != nil {
			slog.Warn("failed to drop rule snapshot", "error", err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.TopicRuleChanged, nil); err != nil {
			slog.Warn("failed to publish rule change", "error", err)
		}
	}
}

// enabledRules returns the rule set for one pass, serving the short-lived
// cached snapshot when present.
func (s *LoanService) enabledRules(ctx context.Context) ([]*domain.ScoringRule, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, domain.RuleSnapshotKey); err == nil && data != nil {
			var rules []*domain.ScoringRule
			if err := json.Unmarshal(data, &rules); err == nil {
				return rules, nil
			}
			// Unreadable snapshot: drop it and fall through to the store.
			_ = s.cache.Delete(ctx, domain.RuleSnapshotKey)
		}
	}

	rules, err := s.repo.ListEnabledRules(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(rules); err == nil {
			_ = s.cache.Set(ctx, domain.RuleSnapshotKey, data, s.snapshotTTL)
		}
	}

	return rules, nil
}

func (s *LoanService) publishScored(ctx context.Context, app *domain.LoanApplication) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(app)
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicLoanScored, payload); err != nil {
		slog.Error("failed to publish scored event", "application_id", app.ID, "error", err)
	}

	if decision.ShouldAlert(app) {
		if err := s.bus.Publish(ctx, domain.TopicLoanAlert, payload); err != nil {
			slog.Error("failed to publish alert event", "application_id", app.ID, "error", err)
		}
	}
}
