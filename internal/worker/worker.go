// Package worker provides async loan scoring for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/service"
)

// Worker scores loan applications submitted over the EventBus instead of the
// synchronous HTTP path, and keeps this node's rule snapshot fresh when
// another node mutates rules.
type Worker struct {
	bus   domain.EventBus
	cache domain.Cache
	loans *service.LoanService

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, cache domain.Cache, loans *service.LoanService) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		cache:  cache,
		loans:  loans,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the submission and rule-change topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicLoanSubmitted, w.handleSubmission)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	ruleSub, err := w.bus.Subscribe(w.ctx, domain.TopicRuleChanged, w.handleRuleChange)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, ruleSub)

	slog.Info("worker started",
		"topics", []string{domain.TopicLoanSubmitted, domain.TopicRuleChanged},
	)

	return nil
}

// SubmissionMessage is the payload for async loan submissions.
type SubmissionMessage struct {
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"termMonths"`
}

// handleSubmission scores one submitted loan request.
func (w *Worker) handleSubmission(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sm SubmissionMessage
	if err := json.Unmarshal(msg.Payload, &sm); err != nil {
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	req := &domain.LoanRequest{
		CustomerID: sm.CustomerID,
		Amount:     sm.Amount,
		TermMonths: sm.TermMonths,
	}

	app, _, err := w.loans.Apply(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			slog.Warn("submission for unknown customer dropped",
				"message_id", msg.ID,
				"customer_id", sm.CustomerID,
			)
			return nil
		}
		slog.Error("async scoring failed",
			"message_id", msg.ID,
			"customer_id", sm.CustomerID,
			"error", err,
		)
		return err
	}

	slog.Info("submission processed",
		"application_id", app.ID,
		"customer_id", app.CustomerID,
		"decision", app.Decision,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// handleRuleChange drops the local rule snapshot when rules change anywhere.
func (w *Worker) handleRuleChange(ctx context.Context, msg *domain.Message) error {
	if w.cache == nil {
		return nil
	}
	if err := w.cache.Delete(ctx, domain.RuleSnapshotKey); err != nil {
		slog.Warn("failed to drop rule snapshot after change event", "error", err)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
