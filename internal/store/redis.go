package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

const (
	metricsCacheKey  = "advisor:metrics:latest"
	holdingsCacheKey = "advisor:holdings:all"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the two hot read paths: the latest metric snapshot and the raw
// holdings list. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Cached reads ---

func (s *CachedStore) ListLatestMetrics(ctx context.Context) ([]model.MarketMetric, error) {
	data, err := s.rdb.Get(ctx, metricsCacheKey).Bytes()
	if err == nil {
		var metrics []model.MarketMetric
		if json.Unmarshal(data, &metrics) == nil {
			return metrics, nil
		}
	}

	metrics, err := s.primary.ListLatestMetrics(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(metrics); err == nil {
		s.rdb.Set(ctx, metricsCacheKey, data, s.ttl)
	}
	return metrics, nil
}

func (s *CachedStore) ListHoldings(ctx context.Context) ([]model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingsCacheKey).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	holdings, err := s.primary.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsCacheKey, data, s.ttl)
	}
	return holdings, nil
}

// --- Invalidating writes ---

func (s *CachedStore) ReplaceMetrics(ctx context.Context, metrics []model.MarketMetric) error {
	if err := s.primary.ReplaceMetrics(ctx, metrics); err != nil {
		return err
	}
	s.rdb.Del(ctx, metricsCacheKey)
	return nil
}

func (s *CachedStore) InsertHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.InsertHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsCacheKey)
	return nil
}

func (s *CachedStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.UpdateHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsCacheKey)
	return nil
}

func (s *CachedStore) DeleteHolding(ctx context.Context, id string) error {
	if err := s.primary.DeleteHolding(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsCacheKey)
	return nil
}

func (s *CachedStore) DeleteHoldings(ctx context.Context, ids []string) error {
	if err := s.primary.DeleteHoldings(ctx, ids); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsCacheKey)
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, id)
}

func (s *CachedStore) GetMetric(ctx context.Context, id string) (*model.MarketMetric, error) {
	return s.primary.GetMetric(ctx, id)
}

func (s *CachedStore) ListMessages(ctx context.Context, limit int) ([]model.Message, error) {
	return s.primary.ListMessages(ctx, limit)
}

func (s *CachedStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return s.primary.GetMessage(ctx, id)
}

func (s *CachedStore) InsertMessage(ctx context.Context, m *model.Message) error {
	return s.primary.InsertMessage(ctx, m)
}

func (s *CachedStore) UpdateMessage(ctx context.Context, m *model.Message) error {
	return s.primary.UpdateMessage(ctx, m)
}

func (s *CachedStore) DeleteMessages(ctx context.Context, ids []string) error {
	return s.primary.DeleteMessages(ctx, ids)
}

func (s *CachedStore) ListReports(ctx context.Context) ([]model.InvestmentReport, error) {
	return s.primary.ListReports(ctx)
}

func (s *CachedStore) GetReport(ctx context.Context, id string) (*model.InvestmentReport, error) {
	return s.primary.GetReport(ctx, id)
}

func (s *CachedStore) InsertReport(ctx context.Context, r *model.InvestmentReport) error {
	return s.primary.InsertReport(ctx, r)
}

func (s *CachedStore) UpdateReport(ctx context.Context, r *model.InvestmentReport) error {
	return s.primary.UpdateReport(ctx, r)
}

func (s *CachedStore) DeleteReports(ctx context.Context, ids []string) error {
	return s.primary.DeleteReports(ctx, ids)
}
