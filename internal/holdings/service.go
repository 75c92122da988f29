// Package holdings serves the portfolio ledger API. Reads are decorated
// with a valuation overlay from the latest market snapshot; stored rows
// are never mutated by reads.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/coinid"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
)

// Service serves the holdings API.
type Service struct {
	store store.Store
}

// NewService creates a holdings service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List returns all holdings with the valuation overlay applied.
func (s *Service) List(ctx context.Context) ([]model.Holding, error) {
	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range holdings {
		snap.overlay(&holdings[i])
	}
	return holdings, nil
}

// Get returns one holding with the valuation overlay applied.
func (s *Service) Get(ctx context.Context, id string) (*model.Holding, error) {
	h, err := s.store.GetHolding(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap.overlay(h)
	return h, nil
}

// priceSnapshot correlates holding coin references with the latest
// metrics: canonical symbol first, reported display name second.
type priceSnapshot struct {
	bySymbol map[string]*model.MarketMetric
	byName   map[string]*model.MarketMetric
}

func (s *Service) snapshot(ctx context.Context) (*priceSnapshot, error) {
	metrics, err := s.store.ListLatestMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	snap := &priceSnapshot{
		bySymbol: make(map[string]*model.MarketMetric, len(metrics)),
		byName:   make(map[string]*model.MarketMetric, len(metrics)),
	}
	for i := range metrics {
		m := &metrics[i]
		snap.bySymbol[m.Symbol] = m
		if name := strings.ToLower(strings.TrimSpace(m.Name)); name != "" {
			snap.byName[name] = m
		}
	}
	return snap, nil
}

// overlay fills the derived valuation fields on a holding. Without a
// matching snapshot row the stored values stay as they are.
func (snap *priceSnapshot) overlay(h *model.Holding) {
	var m *model.MarketMetric
	if sym, ok := coinid.Resolve(h.Coin); ok {
		m = snap.bySymbol[sym]
	}
	if m == nil {
		m = snap.byName[strings.ToLower(strings.TrimSpace(h.Coin))]
	}
	if m == nil {
		return
	}
	h.CurrentPrice = m.PriceUSD
	h.Change24h = m.Change24h
	if m.PriceUSD.IsPositive() {
		h.USDValue = h.Amount.Mul(m.PriceUSD)
	}
}

// --- HTTP Handlers ---

// HoldingRequest is the JSON body for create and update.
type HoldingRequest struct {
	Coin      string          `json:"coin"`
	Amount    decimal.Decimal `json:"amount"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

// DeleteRequest is the JSON body for batch deletion.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// ListHoldings handles GET /api/v1/holdings
func (s *Service) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.List(r.Context())
	if err != nil {
		writeError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// GetHolding handles GET /api/v1/holdings/{holdingID}
func (s *Service) GetHolding(w http.ResponseWriter, r *http.Request) {
	h, err := s.Get(r.Context(), chi.URLParam(r, "holdingID"))
	if err != nil {
		writeError(w, "holding not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// CreateHolding handles POST /api/v1/holdings
func (s *Service) CreateHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Coin) == "" {
		writeError(w, "coin is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if req.CostPrice.IsNegative() {
		writeError(w, "cost_price must not be negative", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	h := &model.Holding{
		ID:        uuid.New().String(),
		Coin:      strings.TrimSpace(req.Coin),
		Amount:    req.Amount,
		CostPrice: req.CostPrice,
		USDValue:  req.Amount.Mul(req.CostPrice),
		Audit: model.Audit{
			CreateBy:   "api",
			CreateTime: now,
			UpdateBy:   "api",
			UpdateTime: now,
		},
	}
	if err := s.store.InsertHolding(r.Context(), h); err != nil {
		writeError(w, "failed to create holding", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// UpdateHolding handles PUT /api/v1/holdings/{holdingID}
func (s *Service) UpdateHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h, err := s.store.GetHolding(r.Context(), chi.URLParam(r, "holdingID"))
	if err != nil {
		writeError(w, "holding not found", http.StatusNotFound)
		return
	}

	if strings.TrimSpace(req.Coin) != "" {
		h.Coin = strings.TrimSpace(req.Coin)
	}
	if req.Amount.IsPositive() {
		h.Amount = req.Amount
	}
	if req.CostPrice.IsPositive() {
		h.CostPrice = req.CostPrice
	}
	h.USDValue = h.Amount.Mul(h.CostPrice)
	h.UpdateBy = "api"
	h.UpdateTime = time.Now().UTC()

	if err := s.store.UpdateHolding(r.Context(), h); err != nil {
		writeError(w, "failed to update holding", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// DeleteHolding handles DELETE /api/v1/holdings/{holdingID}
func (s *Service) DeleteHolding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "holdingID")
	if err := s.store.DeleteHolding(r.Context(), id); err != nil {
		writeError(w, "holding not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// DeleteHoldings handles DELETE /api/v1/holdings
func (s *Service) DeleteHoldings(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, "ids is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteHoldings(r.Context(), req.IDs); err != nil {
		writeError(w, "failed to delete holdings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
