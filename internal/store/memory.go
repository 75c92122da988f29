package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices and maps. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	holdings []model.Holding // ledger order: insertion order
	metrics  []model.MarketMetric
	messages []model.Message
	reports  []model.InvestmentReport
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// --- Holdings ---

func (s *MemoryStore) ListHoldings(_ context.Context) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Holding, len(s.holdings))
	copy(out, s.holdings)
	return out, nil
}

func (s *MemoryStore) GetHolding(_ context.Context, id string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.holdings {
		if h.ID == id {
			cp := h
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("holding %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) InsertHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.holdings {
		if existing.ID == h.ID {
			return fmt.Errorf("holding %s already exists", h.ID)
		}
	}
	s.holdings = append(s.holdings, *h)
	return nil
}

func (s *MemoryStore) UpdateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.holdings {
		if s.holdings[i].ID == h.ID {
			s.holdings[i] = *h
			return nil
		}
	}
	return fmt.Errorf("holding %s: %w", h.ID, ErrNotFound)
}

func (s *MemoryStore) DeleteHolding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.holdings {
		if s.holdings[i].ID == id {
			s.holdings = append(s.holdings[:i], s.holdings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("holding %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) DeleteHoldings(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.DeleteHolding(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// --- Metrics ---

func (s *MemoryStore) GetMetric(_ context.Context, id string) (*model.MarketMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.metrics {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("metric %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListLatestMetrics(_ context.Context) ([]model.MarketMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MarketMetric, len(s.metrics))
	copy(out, s.metrics)
	return out, nil
}

func (s *MemoryStore) ReplaceMetrics(_ context.Context, metrics []model.MarketMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Single swap under the write lock: readers see old rows or new rows,
	// never an empty table.
	replacement := make([]model.MarketMetric, len(metrics))
	copy(replacement, metrics)
	s.metrics = replacement
	return nil
}

// --- Messages ---

func (s *MemoryStore) ListMessages(_ context.Context, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishTime.After(out[j].PublishTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			s.messages[i] = *m
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", m.ID, ErrNotFound)
}

func (s *MemoryStore) DeleteMessages(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// --- Reports ---

func (s *MemoryStore) ListReports(_ context.Context) ([]model.InvestmentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.InvestmentReport, len(s.reports))
	copy(out, s.reports)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	return out, nil
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (*model.InvestmentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.reports {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) InsertReport(_ context.Context, r *model.InvestmentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, *r)
	return nil
}

func (s *MemoryStore) UpdateReport(_ context.Context, r *model.InvestmentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reports {
		if s.reports[i].ID == r.ID {
			s.reports[i] = *r
			return nil
		}
	}
	return fmt.Errorf("report %s: %w", r.ID, ErrNotFound)
}

func (s *MemoryStore) DeleteReports(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.reports[:0]
	for _, r := range s.reports {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	s.reports = kept
	return nil
}
