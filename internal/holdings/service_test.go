package holdings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/holdings"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestEnv(t *testing.T) (*holdings.Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return holdings.NewService(ms), ms
}

func seedHolding(t *testing.T, ms *store.MemoryStore, id, coin string, amount, costPrice float64) {
	t.Helper()
	h := &model.Holding{
		ID:        id,
		Coin:      coin,
		Amount:    d(amount),
		CostPrice: d(costPrice),
		USDValue:  d(amount * costPrice),
	}
	if err := ms.InsertHolding(context.Background(), h); err != nil {
		t.Fatalf("failed to seed holding: %v", err)
	}
}

func seedMetrics(t *testing.T, ms *store.MemoryStore, metrics ...model.MarketMetric) {
	t.Helper()
	if err := ms.ReplaceMetrics(context.Background(), metrics); err != nil {
		t.Fatalf("failed to seed metrics: %v", err)
	}
}

func TestListAppliesValuationOverlay(t *testing.T) {
	svc, ms := newTestEnv(t)
	seedHolding(t, ms, "h1", "BTC", 2, 20000)
	seedHolding(t, ms, "h2", "比特币", 1, 25000)
	seedHolding(t, ms, "h3", "Obscurium", 5, 3)
	seedMetrics(t, ms, model.MarketMetric{
		ID: "m1", Symbol: "BTC", Name: "Bitcoin",
		PriceUSD: d(30000), Change24h: d(-2.5),
	})

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}

	// Symbol match.
	if !got[0].CurrentPrice.Equal(d(30000)) {
		t.Errorf("h1 current price = %s", got[0].CurrentPrice)
	}
	if !got[0].USDValue.Equal(d(60000)) {
		t.Errorf("h1 usd value = %s, want 60000", got[0].USDValue)
	}
	if !got[0].Change24h.Equal(d(-2.5)) {
		t.Errorf("h1 change = %s", got[0].Change24h)
	}

	// Display-name reference resolves to the same snapshot row.
	if !got[1].USDValue.Equal(d(30000)) {
		t.Errorf("h2 usd value = %s, want 30000", got[1].USDValue)
	}

	// No snapshot row: stored valuation untouched, derived fields zero.
	if !got[2].USDValue.Equal(d(15)) {
		t.Errorf("h3 usd value = %s, want stored 15", got[2].USDValue)
	}
	if !got[2].CurrentPrice.IsZero() {
		t.Errorf("h3 current price = %s", got[2].CurrentPrice)
	}
}

func TestListOverlayByReportedName(t *testing.T) {
	svc, ms := newTestEnv(t)
	seedHolding(t, ms, "h1", "Pepe", 1000, 0.001)
	seedMetrics(t, ms, model.MarketMetric{
		ID: "m1", Symbol: "PEPE", Name: "Pepe", PriceUSD: d(0.002),
	})

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !got[0].USDValue.Equal(d(2)) {
		t.Errorf("usd value = %s, want 2 (name-map fallback)", got[0].USDValue)
	}
}

func TestOverlayDoesNotPersist(t *testing.T) {
	svc, ms := newTestEnv(t)
	seedHolding(t, ms, "h1", "BTC", 1, 20000)
	seedMetrics(t, ms, model.MarketMetric{ID: "m1", Symbol: "BTC", PriceUSD: d(30000)})

	if _, err := svc.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}

	raw, err := ms.GetHolding(context.Background(), "h1")
	if err != nil {
		t.Fatalf("GetHolding: %v", err)
	}
	if !raw.USDValue.Equal(d(20000)) {
		t.Errorf("stored usd value = %s, reads must not write back", raw.USDValue)
	}
}

// --- Handler tests ---

func newTestRouter(svc *holdings.Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/v1/holdings", svc.ListHoldings)
	r.Get("/api/v1/holdings/{holdingID}", svc.GetHolding)
	r.Post("/api/v1/holdings", svc.CreateHolding)
	r.Put("/api/v1/holdings/{holdingID}", svc.UpdateHolding)
	r.Delete("/api/v1/holdings/{holdingID}", svc.DeleteHolding)
	r.Delete("/api/v1/holdings", svc.DeleteHoldings)
	return r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateHolding(t *testing.T) {
	svc, ms := newTestEnv(t)
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/holdings", holdings.HoldingRequest{
		Coin: "ETH", Amount: d(10), CostPrice: d(2000),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var h model.Holding
	json.Unmarshal(w.Body.Bytes(), &h)
	if h.ID == "" {
		t.Error("id not assigned")
	}
	if !h.USDValue.Equal(d(20000)) {
		t.Errorf("usd value = %s", h.USDValue)
	}

	stored, _ := ms.ListHoldings(context.Background())
	if len(stored) != 1 {
		t.Fatalf("stored = %d", len(stored))
	}
}

func TestCreateHoldingValidation(t *testing.T) {
	svc, _ := newTestEnv(t)
	router := newTestRouter(svc)

	cases := []holdings.HoldingRequest{
		{Coin: "", Amount: d(1), CostPrice: d(1)},
		{Coin: "BTC", Amount: d(0), CostPrice: d(1)},
		{Coin: "BTC", Amount: d(-1), CostPrice: d(1)},
		{Coin: "BTC", Amount: d(1), CostPrice: d(-1)},
	}
	for i, req := range cases {
		if w := doJSON(t, router, "POST", "/api/v1/holdings", req); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, w.Code)
		}
	}
}

func TestDeleteHoldingBatch(t *testing.T) {
	svc, ms := newTestEnv(t)
	router := newTestRouter(svc)
	seedHolding(t, ms, "h1", "BTC", 1, 1)
	seedHolding(t, ms, "h2", "ETH", 1, 1)
	seedHolding(t, ms, "h3", "SOL", 1, 1)

	w := doJSON(t, router, "DELETE", "/api/v1/holdings", holdings.DeleteRequest{IDs: []string{"h1", "h3"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	stored, _ := ms.ListHoldings(context.Background())
	if len(stored) != 1 || stored[0].ID != "h2" {
		t.Errorf("remaining = %+v", stored)
	}
}

func TestGetHoldingNotFound(t *testing.T) {
	svc, _ := newTestEnv(t)
	router := newTestRouter(svc)

	req := httptest.NewRequest("GET", "/api/v1/holdings/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
