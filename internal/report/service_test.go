package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/report"
	"github.com/cryptodesk/advisor-engine/internal/store"
	"github.com/cryptodesk/advisor-engine/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeChat returns a canned answer, or an error when failing is set.
type fakeChat struct {
	answer  string
	failing bool
	queries []string
}

func (f *fakeChat) Chat(_ context.Context, query, _ string) (string, error) {
	f.queries = append(f.queries, query)
	if f.failing {
		return "", errors.New("upstream unavailable")
	}
	return f.answer, nil
}

// newTestEnv creates a report Service with in-memory store and a fake AI.
func newTestEnv(t *testing.T, ai *fakeChat) (*report.Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	engine := trade.NewEngine(ms, nil, nil)
	return report.NewService(ms, ai, engine, nil), ms
}

// seedMessage creates a commentary message directly in the store.
func seedMessage(t *testing.T, ms *store.MemoryStore, id, coin, content string) {
	t.Helper()
	m := &model.Message{
		ID:          id,
		Coin:        coin,
		Content:     content,
		Sentiment:   "positive",
		ImpactScore: "1",
		Source:      "CoinDesk",
		PublishTime: time.Now().UTC(),
	}
	if err := ms.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
}

func TestGenerateForMessage(t *testing.T) {
	ai := &fakeChat{answer: `{"advice": "accumulate", "actions": [{"type": "BUY", "coin": "BTC", "amount": 0.5, "price": 20000}]}`}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "ETF inflows accelerating")

	rpt, err := svc.GenerateForMessage(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GenerateForMessage: %v", err)
	}
	if rpt.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", rpt.Status)
	}
	if rpt.MessageID != "msg-1" {
		t.Errorf("message_id = %q", rpt.MessageID)
	}
	if rpt.AdviceContent != "accumulate" {
		t.Errorf("advice = %q", rpt.AdviceContent)
	}
	actions := rpt.Actions()
	if len(actions) != 1 || actions[0].Type != model.ActionBuy {
		t.Fatalf("actions = %+v", actions)
	}

	// Nothing executed before approval.
	hs, _ := ms.ListHoldings(context.Background())
	if len(hs) != 0 {
		t.Error("pending report must not touch the ledger")
	}
}

func TestGenerateForMessage_AIFailurePersistsNothing(t *testing.T) {
	svc, ms := newTestEnv(t, &fakeChat{failing: true})
	seedMessage(t, ms, "msg-1", "BTC", "content")

	if _, err := svc.GenerateForMessage(context.Background(), "msg-1"); err == nil {
		t.Fatal("expected error when AI fails")
	}
	reports, _ := ms.ListReports(context.Background())
	if len(reports) != 0 {
		t.Error("failed generation must not persist a report")
	}
}

func TestGenerateForMessage_UnknownMessage(t *testing.T) {
	svc, _ := newTestEnv(t, &fakeChat{answer: "x"})
	_, err := svc.GenerateForMessage(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGenerateSummary(t *testing.T) {
	ai := &fakeChat{answer: `{"advice": "rebalance", "actions": []}`}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "halving narrative")
	seedMessage(t, ms, "msg-2", "ETH", "staking growth")

	rpt, err := svc.GenerateSummary(context.Background())
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if rpt.MessageID != "" {
		t.Errorf("summary report message_id = %q, want empty", rpt.MessageID)
	}
	if len(ai.queries) != 1 {
		t.Fatalf("chat calls = %d", len(ai.queries))
	}
}

func TestApproveExecutesActionsOnce(t *testing.T) {
	ai := &fakeChat{answer: `{"advice": "buy the dip", "actions": [{"type": "BUY", "coin": "BTC", "amount": 1, "price": 20000}]}`}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "content")

	rpt, err := svc.GenerateForMessage(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GenerateForMessage: %v", err)
	}

	approved, err := svc.Approve(context.Background(), rpt.ID, "alice")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != model.StatusApproved {
		t.Errorf("status = %s", approved.Status)
	}
	if approved.AuditBy != "alice" {
		t.Errorf("audit_by = %q", approved.AuditBy)
	}

	hs, _ := ms.ListHoldings(context.Background())
	if len(hs) != 1 || !hs[0].Amount.Equal(d(1)) {
		t.Fatalf("holdings after approval = %+v", hs)
	}

	// A second approval must fail and must not re-execute.
	if _, err := svc.Approve(context.Background(), rpt.ID, "bob"); !errors.Is(err, report.ErrInvalidTransition) {
		t.Fatalf("second approve err = %v, want ErrInvalidTransition", err)
	}
	hs, _ = ms.ListHoldings(context.Background())
	if !hs[0].Amount.Equal(d(1)) {
		t.Error("second approval attempt must not re-execute actions")
	}
}

func TestRejectNeverExecutes(t *testing.T) {
	ai := &fakeChat{answer: `{"advice": "sell everything", "actions": [{"type": "BUY", "coin": "BTC", "amount": 1, "price": 20000}]}`}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "content")

	rpt, _ := svc.GenerateForMessage(context.Background(), "msg-1")

	rejected, err := svc.Reject(context.Background(), rpt.ID, "alice", "too aggressive")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != model.StatusRejected {
		t.Errorf("status = %s", rejected.Status)
	}
	if rejected.RejectReason != "too aggressive" {
		t.Errorf("reject_reason = %q", rejected.RejectReason)
	}

	hs, _ := ms.ListHoldings(context.Background())
	if len(hs) != 0 {
		t.Error("rejected report must never touch the ledger")
	}

	// Rejected is terminal.
	if _, err := svc.Approve(context.Background(), rpt.ID, "bob"); !errors.Is(err, report.ErrInvalidTransition) {
		t.Fatalf("approve after reject err = %v", err)
	}
}

func TestApproveMalformedActionsStillApproves(t *testing.T) {
	ai := &fakeChat{answer: "just my thoughts, no structure here"}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "content")

	rpt, _ := svc.GenerateForMessage(context.Background(), "msg-1")
	if rpt.ExecuteJSON != "" {
		t.Errorf("execute_json = %q, want empty", rpt.ExecuteJSON)
	}

	approved, err := svc.Approve(context.Background(), rpt.ID, "alice")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != model.StatusApproved {
		t.Errorf("status = %s", approved.Status)
	}
	hs, _ := ms.ListHoldings(context.Background())
	if len(hs) != 0 {
		t.Error("no actions means no ledger changes")
	}
}

// --- Handler tests ---

func newTestRouter(svc *report.Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/v1/reports", svc.ListReports)
	r.Get("/api/v1/reports/{reportID}", svc.GetReport)
	r.Delete("/api/v1/reports", svc.DeleteReports)
	r.Post("/api/v1/reports/generate", svc.Generate)
	r.Post("/api/v1/reports/generate-summary", svc.GenerateSummaryReport)
	r.Post("/api/v1/reports/{reportID}/approve", svc.ApproveReport)
	r.Post("/api/v1/reports/{reportID}/reject", svc.RejectReport)
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

func TestApproveHandler(t *testing.T) {
	ai := &fakeChat{answer: `{"advice": "hold", "actions": []}`}
	svc, ms := newTestEnv(t, ai)
	seedMessage(t, ms, "msg-1", "BTC", "content")
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/reports/generate", report.GenerateRequest{MessageID: "msg-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status = %d: %s", w.Code, w.Body.String())
	}
	var rpt model.InvestmentReport
	json.Unmarshal(w.Body.Bytes(), &rpt)

	w = doJSON(t, router, "POST", "/api/v1/reports/"+rpt.ID+"/approve", report.DecisionRequest{Auditor: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", w.Code, w.Body.String())
	}

	// Second decision on a terminal report conflicts.
	w = doJSON(t, router, "POST", "/api/v1/reports/"+rpt.ID+"/reject", report.DecisionRequest{Auditor: "bob"})
	if w.Code != http.StatusConflict {
		t.Fatalf("reject-after-approve status = %d", w.Code)
	}
}

func TestApproveHandlerRequiresAuditor(t *testing.T) {
	svc, _ := newTestEnv(t, &fakeChat{answer: "x"})
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/reports/some-id/approve", report.DecisionRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGenerateHandlerUnknownMessage(t *testing.T) {
	svc, _ := newTestEnv(t, &fakeChat{answer: "x"})
	router := newTestRouter(svc)

	w := doJSON(t, router, "POST", "/api/v1/reports/generate", report.GenerateRequest{MessageID: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
