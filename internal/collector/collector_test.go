package collector_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/collector"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
)

type fakeChat struct {
	answer  string
	failing bool
	calls   int
}

func (f *fakeChat) Chat(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.failing {
		return "", errors.New("upstream unavailable")
	}
	return f.answer, nil
}

type fakeSummary struct {
	calls int
	err   error
}

func (f *fakeSummary) GenerateSummary(_ context.Context) (*model.InvestmentReport, error) {
	f.calls++
	return &model.InvestmentReport{ID: "summary"}, f.err
}

func TestCollectMessages(t *testing.T) {
	ms := store.NewMemoryStore()
	news := &fakeChat{answer: "```json\n" + `{
		"Bitcoin": [{"title": "ETF inflows", "summary": "record week", "influence_score": 2}],
		"Ethereum": [
			{"title": "staking growth", "influence_score": 0},
			{"title": "exploit on L2", "summary": "funds drained", "influence_score": -2}
		]
	}` + "\n```"}
	summary := &fakeSummary{}
	svc := collector.NewService(ms, news, nil, nil, summary)

	inserted, err := svc.CollectMessages(context.Background())
	if err != nil {
		t.Fatalf("CollectMessages: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("inserted = %d, want 3", inserted)
	}

	messages, _ := ms.ListMessages(context.Background(), 0)
	if len(messages) != 3 {
		t.Fatalf("stored = %d", len(messages))
	}
	bySentiment := map[string]int{}
	for _, m := range messages {
		bySentiment[m.Sentiment]++
		if m.Source == "" {
			t.Errorf("message %q has empty source", m.Content)
		}
		if m.CreateBy != "system" {
			t.Errorf("create_by = %q", m.CreateBy)
		}
	}
	if bySentiment["positive"] != 1 || bySentiment["negative"] != 1 || bySentiment["neutral"] != 1 {
		t.Errorf("sentiments = %v", bySentiment)
	}

	if summary.calls != 1 {
		t.Errorf("summary report calls = %d, want 1", summary.calls)
	}
}

func TestCollectMessages_SummaryFailureIsNotFatal(t *testing.T) {
	ms := store.NewMemoryStore()
	news := &fakeChat{answer: `{"Bitcoin": [{"title": "up only", "influence_score": 1}]}`}
	summary := &fakeSummary{err: errors.New("ai down")}
	svc := collector.NewService(ms, news, nil, nil, summary)

	inserted, err := svc.CollectMessages(context.Background())
	if err != nil {
		t.Fatalf("CollectMessages: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d", inserted)
	}
}

func TestCollectMessages_AIFailure(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := collector.NewService(ms, &fakeChat{failing: true}, nil, nil, nil)

	if _, err := svc.CollectMessages(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	messages, _ := ms.ListMessages(context.Background(), 0)
	if len(messages) != 0 {
		t.Error("failed collection must persist nothing")
	}
}

func TestCollectMetrics(t *testing.T) {
	ms := store.NewMemoryStore()
	metrics := &fakeChat{answer: `{"data": [
		{"symbol": "BTC", "name": "Bitcoin", "price_usd": 65000.5, "change_24h": -1.2, "market_cap": 1280000000000, "circulating_supply": "19.7M", "ath_price": 73000},
		{"symbol": "ETH", "name": "Ethereum", "priceUsd": "3400", "change24h": "0.8"},
		{"symbol": "USDT", "name": "Tether", "price_usd": 0},
		{"symbol": "WAT", "name": "Whatever", "price_usd": 1},
		{"symbol": "BTC", "name": "Bitcoin again", "price_usd": 64000},
		{"symbol": "DOGE", "name": "Dogecoin", "price_usd": 0}
	]}`}
	svc := collector.NewService(ms, nil, metrics, nil, nil)

	rows, err := svc.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("CollectMetrics: %v", err)
	}
	// BTC, ETH camelCase, and zero-price stablecoin USDT survive; the
	// unknown symbol, the duplicate BTC, and zero-price DOGE are skipped.
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}

	stored, _ := ms.ListLatestMetrics(context.Background())
	byName := map[string]model.MarketMetric{}
	for _, m := range stored {
		byName[m.Symbol] = m
	}
	if !byName["BTC"].PriceUSD.Equal(decimal.NewFromFloat(65000.5)) {
		t.Errorf("BTC price = %s", byName["BTC"].PriceUSD)
	}
	if !byName["ETH"].Change24h.Equal(decimal.NewFromFloat(0.8)) {
		t.Errorf("ETH change = %s (camelCase fields must parse)", byName["ETH"].Change24h)
	}
	if _, ok := byName["USDT"]; !ok {
		t.Error("stablecoin with zero price must be kept")
	}
}

func TestCollectMetrics_EmptySetKeepsSnapshot(t *testing.T) {
	ms := store.NewMemoryStore()
	seed := []model.MarketMetric{{ID: "m1", Symbol: "BTC", PriceUSD: decimal.NewFromInt(60000)}}
	if err := ms.ReplaceMetrics(context.Background(), seed); err != nil {
		t.Fatalf("seed metrics: %v", err)
	}

	metrics := &fakeChat{answer: `{"data": [{"symbol": "NOPE", "price_usd": 5}]}`}
	svc := collector.NewService(ms, nil, metrics, nil, nil)

	rows, err := svc.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("CollectMetrics: %v", err)
	}
	if rows != 0 {
		t.Fatalf("rows = %d", rows)
	}
	stored, _ := ms.ListLatestMetrics(context.Background())
	if len(stored) != 1 || stored[0].Symbol != "BTC" {
		t.Error("previous snapshot must survive an unusable collection")
	}
}

// --- Handler tests ---

func newTestRouter(svc *collector.Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/v1/messages", svc.ListMessages)
	r.Get("/api/v1/messages/{messageID}", svc.GetMessage)
	r.Post("/api/v1/messages", svc.CreateMessage)
	r.Put("/api/v1/messages/{messageID}", svc.UpdateMessage)
	r.Delete("/api/v1/messages", svc.DeleteMessages)
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

func TestCreateMessageWithAnalysis(t *testing.T) {
	ms := store.NewMemoryStore()
	analysis := &fakeChat{answer: "情绪：负面\n影响分数：-2"}
	svc := collector.NewService(ms, nil, nil, analysis, nil)
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/messages", collector.CreateMessageRequest{
		Coin:    "BTC",
		Content: "exchange hacked",
		Source:  "Reddit",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var msg model.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Sentiment != "negative" {
		t.Errorf("sentiment = %q, want negative", msg.Sentiment)
	}
	if msg.ImpactScore != "-2" {
		t.Errorf("impact = %q, want -2", msg.ImpactScore)
	}
	if analysis.calls != 1 {
		t.Errorf("analysis calls = %d", analysis.calls)
	}
}

func TestCreateMessageSkipsAnalysisWhenDisabled(t *testing.T) {
	ms := store.NewMemoryStore()
	analysis := &fakeChat{answer: "情绪：正面"}
	svc := collector.NewService(ms, nil, nil, analysis, nil)
	router := newTestRouter(svc)

	off := false
	w := doJSON(t, router, "POST", "/api/v1/messages", collector.CreateMessageRequest{
		Coin:          "BTC",
		Content:       "quiet day",
		UseAIAnalysis: &off,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if analysis.calls != 0 {
		t.Errorf("analysis calls = %d, want 0", analysis.calls)
	}

	var msg model.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Sentiment != "unknown" || msg.ImpactScore != "0" {
		t.Errorf("defaults missing: sentiment=%q impact=%q", msg.Sentiment, msg.ImpactScore)
	}
}

func TestUpdateMessageReanalyzesByDefault(t *testing.T) {
	ms := store.NewMemoryStore()
	analysis := &fakeChat{answer: "情绪：负面\n影响分数：-1"}
	svc := collector.NewService(ms, nil, nil, analysis, nil)
	router := newTestRouter(svc)

	ms.InsertMessage(context.Background(), &model.Message{
		ID: "m1", Coin: "BTC", Content: "old take", Sentiment: "unknown", ImpactScore: "0",
	})

	w := doJSON(t, router, "PUT", "/api/v1/messages/m1", collector.CreateMessageRequest{
		Content: "exchange insolvency rumors",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if analysis.calls != 1 {
		t.Fatalf("analysis calls on default edit = %d, want 1", analysis.calls)
	}

	var msg model.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Sentiment != "negative" || msg.ImpactScore != "-1" {
		t.Errorf("edit must refresh tags: sentiment=%q impact=%q", msg.Sentiment, msg.ImpactScore)
	}
}

func TestUpdateMessageSkipsAnalysisWhenDisabled(t *testing.T) {
	ms := store.NewMemoryStore()
	analysis := &fakeChat{answer: "情绪：正面"}
	svc := collector.NewService(ms, nil, nil, analysis, nil)
	router := newTestRouter(svc)

	ms.InsertMessage(context.Background(), &model.Message{
		ID: "m1", Coin: "BTC", Content: "old take", Sentiment: "neutral", ImpactScore: "0",
	})

	off := false
	w := doJSON(t, router, "PUT", "/api/v1/messages/m1", collector.CreateMessageRequest{
		Content:       "minor update",
		UseAIAnalysis: &off,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if analysis.calls != 0 {
		t.Errorf("analysis calls = %d, want 0", analysis.calls)
	}

	var msg model.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Sentiment != "neutral" {
		t.Errorf("sentiment = %q, must keep stored tag", msg.Sentiment)
	}
}

func TestCreateMessageAnalysisFailureFallsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := collector.NewService(ms, nil, nil, &fakeChat{failing: true}, nil)
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/messages", collector.CreateMessageRequest{
		Coin:    "BTC",
		Content: "something happened",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (analysis failure must not block creation)", w.Code)
	}
	var msg model.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Sentiment != "unknown" {
		t.Errorf("sentiment = %q", msg.Sentiment)
	}
}

func TestDeleteMessages(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := collector.NewService(ms, nil, nil, nil, nil)
	router := newTestRouter(svc)

	for _, id := range []string{"a", "b", "c"} {
		ms.InsertMessage(context.Background(), &model.Message{ID: id, Coin: "BTC", Content: "x"})
	}

	w := doJSON(t, router, "DELETE", "/api/v1/messages", collector.DeleteMessagesRequest{IDs: []string{"a", "c"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	messages, _ := ms.ListMessages(context.Background(), 0)
	if len(messages) != 1 || messages[0].ID != "b" {
		t.Errorf("remaining = %+v", messages)
	}
}
