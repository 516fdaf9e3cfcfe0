package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/enercompare/backend/internal/infrastructure/cache"
)

// monthPattern validates YYYY-MM range parameters before they reach the
// cache key or the upstream query string.
var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ProductionClient fetches production statistics from the upstream API
type ProductionClient interface {
	MonthlyProduction(ctx context.Context, from, to string) (json.RawMessage, error)
}

// Service serves production statistics through the tiered fetch cache, so
// repeated requests for the same range hit the upstream API at most once per
// cache lifetime.
type Service struct {
	fetch  *cache.FetchCache
	client ProductionClient
}

// NewService creates a stats service
func NewService(fetch *cache.FetchCache, client ProductionClient) *Service {
	return &Service{fetch: fetch, client: client}
}

// MonthlyProduction returns aggregated monthly production data for the
// inclusive [from, to] month range, along with the cache tier that served it.
func (s *Service) MonthlyProduction(ctx context.Context, from, to string) (json.RawMessage, cache.Tier, error) {
	if !monthPattern.MatchString(from) || !monthPattern.MatchString(to) {
		return nil, cache.TierMiss, fmt.Errorf("%w: range must be YYYY-MM", shared.ErrInvalidInput)
	}
	if from > to {
		return nil, cache.TierMiss, fmt.Errorf("%w: from is after to", shared.ErrInvalidInput)
	}

	key := "cache:production:monthly:" + from + ":" + to

	return s.fetch.Fetch(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.MonthlyProduction(ctx, from, to)
	})
}
