package worker

import (
	"context"
	"encoding/json"
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

type workerFixture struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	worker *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-worker-*.db")
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

	w := NewWorker(b, c, loans)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	return &workerFixture{repo: repo, cache: c, bus: b, worker: w}
}

func TestWorkerScoresSubmission(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	creditScore := 700
	customer := &domain.Customer{
		FirstName:   "Async",
		LastName:    "Applicant",
		DateOfBirth: time.Now().UTC().AddDate(-70, 0, -1),
		CreditScore: &creditScore,
	}
	if err := f.repo.SaveCustomer(ctx, customer); err != nil {
		t.Fatalf("SaveCustomer failed: %v", err)
	}

	scored := make(chan *domain.Message, 1)
	f.bus.Subscribe(ctx, domain.TopicLoanScored, func(ctx context.Context, msg *domain.Message) error {
		scored <- msg
		return nil
	})

	payload, _ := json.Marshal(SubmissionMessage{
		CustomerID: customer.ID,
		Amount:     15000,
		TermMonths: 36,
	})
	if err := f.bus.Publish(ctx, domain.TopicLoanSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var msg *domain.Message
	select {
	case msg = <-scored:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scored event")
	}

	var app domain.LoanApplication
	if err := json.Unmarshal(msg.Payload, &app); err != nil {
		t.Fatalf("failed to parse scored payload: %v", err)
	}
	if app.CustomerID != customer.ID {
		t.Errorf("expected customer %s, got %s", customer.ID, app.CustomerID)
	}
	// Seeded "Age Rule" fires for a 70-year-old
	if app.RiskScore != 30 {
		t.Errorf("expected score 30, got %v", app.RiskScore)
	}

	stored, err := f.repo.GetLoanApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("application not persisted: %v", err)
	}
	if stored.LoanAmount != 15000 || stored.LoanTermMonths != 36 {
		t.Errorf("loan terms not persisted: %v/%v", stored.LoanAmount, stored.LoanTermMonths)
	}
}

func TestWorkerDropsUnknownCustomer(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	payload, _ := json.Marshal(SubmissionMessage{
		CustomerID: "nonexistent",
		Amount:     5000,
		TermMonths: 12,
	})
	if err := f.bus.Publish(ctx, domain.TopicLoanSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Give the handler a moment, then confirm nothing was written
	time.Sleep(200 * time.Millisecond)

	count, err := f.repo.CountApplicationsByCustomer(ctx, "nonexistent", time.Time{})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no persisted applications, found %d", count)
	}
}

func TestWorkerIgnoresMalformedPayload(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	if err := f.bus.Publish(ctx, domain.TopicLoanSubmitted, []byte("not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// The worker must stay subscribed after a bad message
	time.Sleep(200 * time.Millisecond)
	stats := f.worker.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerDropsSnapshotOnRuleChange(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	if err := f.cache.Set(ctx, domain.RuleSnapshotKey, []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := f.bus.Publish(ctx, domain.TopicRuleChanged, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		val, err := f.cache.Get(ctx, domain.RuleSnapshotKey)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rule snapshot was not dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerStop(t *testing.T) {
	f := newWorkerFixture(t)

	if err := f.worker.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if stats := f.worker.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected no subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}
