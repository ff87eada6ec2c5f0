// Package history counts a customer's recent loan applications, backing the
// customer.recentApplications derived field.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/scoring"
)

// Service answers "how many applications did this customer file in the last
// window". Counts come from the repository; the cache counter tracks
// submissions as they arrive so hot customers avoid a query per pass.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// CountRecent returns the number of applications for a customer within the
// lookback window.
func (s *Service) CountRecent(ctx context.Context, customerID string, window time.Duration) (int64, error) {
	if customerID == "" {
		return 0, fmt.Errorf("customerID is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().UTC().Add(-window)
	return s.repo.CountApplicationsByCustomer(ctx, customerID, since)
}

// RecordSubmission bumps the customer's in-window submission counter. Best
// effort: counter state is advisory, the repository count is authoritative.
func (s *Service) RecordSubmission(ctx context.Context, customerID string, window time.Duration) {
	if s.cache == nil || customerID == "" {
		return
	}
	_, _ = s.cache.IncrementCounter(ctx, "applications:"+customerID, window)
}

// Getter returns the HistoryGetter function for the scoring engine.
func (s *Service) Getter() scoring.HistoryGetter {
	return s.CountRecent
}
