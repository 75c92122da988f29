// Package report generates AI investment reports and drives their
// approval lifecycle: every report is born pending, and a human decision
// moves it exactly once to approved (which executes its actions) or
// rejected (which never does).
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cryptodesk/advisor-engine/internal/advice"
	"github.com/cryptodesk/advisor-engine/internal/events"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
	"github.com/cryptodesk/advisor-engine/internal/telemetry"
	"github.com/cryptodesk/advisor-engine/internal/trade"
)

// ErrInvalidTransition is returned when an approve or reject targets a
// report that is not pending.
var ErrInvalidTransition = errors.New("report: status transition not allowed")

// ChatClient is the AI channel used to generate advice text.
type ChatClient interface {
	Chat(ctx context.Context, query, user string) (string, error)
}

// summaryMessageCount bounds how many recent messages feed a summary report.
const summaryMessageCount = 20

// Service generates reports and applies approval decisions.
type Service struct {
	store  store.Store
	ai     ChatClient
	engine *trade.Engine
	hub    *events.Hub
}

// NewService creates a report service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, ai ChatClient, engine *trade.Engine, hub *events.Hub) *Service {
	return &Service{
		store:  st,
		ai:     ai,
		engine: engine,
		hub:    hub,
	}
}

// GenerateForMessage builds an advice report for a single commentary
// message. The AI call must succeed: on failure no report row is created.
func (s *Service) GenerateForMessage(ctx context.Context, messageID string) (*model.InvestmentReport, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}

	prompt, err := s.buildMessagePrompt(ctx, msg)
	if err != nil {
		return nil, err
	}

	rpt, err := s.generate(ctx, messageID, prompt)
	if err != nil {
		return nil, err
	}
	telemetry.ReportsGenerated.WithLabelValues("message").Inc()
	return rpt, nil
}

// GenerateSummary builds a portfolio-wide report from the most recent
// commentary, current holdings, and the latest market snapshot.
func (s *Service) GenerateSummary(ctx context.Context) (*model.InvestmentReport, error) {
	prompt, err := s.buildSummaryPrompt(ctx)
	if err != nil {
		return nil, err
	}

	rpt, err := s.generate(ctx, "", prompt)
	if err != nil {
		return nil, err
	}
	telemetry.ReportsGenerated.WithLabelValues("summary").Inc()
	return rpt, nil
}

// generate runs the AI channel and persists a pending report. An empty
// messageID marks a summary report.
func (s *Service) generate(ctx context.Context, messageID, prompt string) (*model.InvestmentReport, error) {
	answer, err := s.ai.Chat(ctx, prompt, "advisor-engine")
	if err != nil {
		return nil, fmt.Errorf("advice generation: %w", err)
	}

	result := advice.Extract(answer)
	executeJSON := ""
	if len(result.Actions) > 0 {
		data, err := json.Marshal(result.Actions)
		if err != nil {
			return nil, fmt.Errorf("encode actions: %w", err)
		}
		executeJSON = string(data)
	}

	now := time.Now().UTC()
	rpt := &model.InvestmentReport{
		ID:             uuid.New().String(),
		MessageID:      messageID,
		AnalysisResult: strings.TrimSpace(answer),
		AdviceContent:  result.Advice,
		ExecuteJSON:    executeJSON,
		Status:         model.StatusPending,
		Audit: model.Audit{
			CreateBy:   "system",
			CreateTime: now,
			UpdateBy:   "system",
			UpdateTime: now,
		},
	}

	if err := s.store.InsertReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	slog.Info("report generated",
		"id", rpt.ID,
		"message_id", messageID,
		"actions", len(result.Actions),
	)
	s.hub.Broadcast(events.Event{
		Type:     events.TypeReportCreated,
		ReportID: rpt.ID,
		Status:   string(rpt.Status),
	})
	return rpt, nil
}

// Approve moves a pending report to approved and executes its actions
// exactly once. Action-level failures are logged, never propagated: the
// approval itself has already been recorded.
func (s *Service) Approve(ctx context.Context, id, actor string) (*model.InvestmentReport, error) {
	rpt, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	if !rpt.Status.CanTransition(model.StatusApproved) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, rpt.Status)
	}

	now := time.Now().UTC()
	rpt.Status = model.StatusApproved
	rpt.AuditBy = actor
	rpt.AuditTime = now
	rpt.UpdateBy = actor
	rpt.UpdateTime = now

	if err := s.store.UpdateReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	telemetry.ReportTransitions.WithLabelValues(string(model.StatusApproved)).Inc()

	summary, err := s.engine.Apply(ctx, rpt.Actions())
	if err != nil {
		slog.Error("action execution failed after approval", "report_id", id, "err", err)
	} else {
		slog.Info("report approved",
			"id", id,
			"actor", actor,
			"applied", summary.Applied,
			"skipped", summary.Skipped,
		)
	}

	s.hub.Broadcast(events.Event{
		Type:     events.TypeReportApproved,
		ReportID: id,
		Status:   string(model.StatusApproved),
		Actor:    actor,
	})
	return rpt, nil
}

// Reject moves a pending report to rejected. Its actions are never
// executed.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*model.InvestmentReport, error) {
	rpt, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	if !rpt.Status.CanTransition(model.StatusRejected) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, rpt.Status)
	}

	now := time.Now().UTC()
	rpt.Status = model.StatusRejected
	rpt.AuditBy = actor
	rpt.AuditTime = now
	rpt.RejectReason = reason
	rpt.UpdateBy = actor
	rpt.UpdateTime = now

	if err := s.store.UpdateReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	telemetry.ReportTransitions.WithLabelValues(string(model.StatusRejected)).Inc()

	slog.Info("report rejected", "id", id, "actor", actor, "reason", reason)
	s.hub.Broadcast(events.Event{
		Type:     events.TypeReportRejected,
		ReportID: id,
		Status:   string(model.StatusRejected),
		Actor:    actor,
	})
	return rpt, nil
}

// --- Prompt assembly ---

const responseFormat = `Respond with a single JSON object of the form ` +
	`{"advice": "...", "actions": [{"type": "BUY|SELL|HOLD", "coin": "...", "amount": 0, "price": 0}]}. ` +
	`Amounts are coin quantities and prices are USD.`

func (s *Service) buildMessagePrompt(ctx context.Context, msg *model.Message) (string, error) {
	portfolio, err := s.portfolioContext(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a crypto portfolio advisor. Analyze the following market commentary and advise on the current holdings.\n\n")
	fmt.Fprintf(&b, "Commentary about %s (source: %s, sentiment: %s, impact: %s):\n%s\n\n",
		msg.Coin, msg.Source, msg.Sentiment, msg.ImpactScore, msg.Content)
	b.WriteString(portfolio)
	b.WriteString(responseFormat)
	return b.String(), nil
}

func (s *Service) buildSummaryPrompt(ctx context.Context) (string, error) {
	messages, err := s.store.ListMessages(ctx, summaryMessageCount)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	portfolio, err := s.portfolioContext(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a crypto portfolio advisor. Review the recent market commentary below and produce an overall assessment with concrete actions for the current holdings.\n\n")
	if len(messages) == 0 {
		b.WriteString("No recent commentary is available.\n\n")
	} else {
		b.WriteString("Recent commentary:\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "- [%s] %s (sentiment: %s, impact: %s): %s\n",
				m.Coin, m.Source, m.Sentiment, m.ImpactScore, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString(portfolio)
	b.WriteString(responseFormat)
	return b.String(), nil
}

// portfolioContext renders holdings and the latest market snapshot for
// inclusion in a prompt.
func (s *Service) portfolioContext(ctx context.Context) (string, error) {
	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return "", fmt.Errorf("list holdings: %w", err)
	}
	metrics, err := s.store.ListLatestMetrics(ctx)
	if err != nil {
		return "", fmt.Errorf("list metrics: %w", err)
	}

	var b strings.Builder
	if len(holdings) == 0 {
		b.WriteString("Current holdings: none.\n\n")
	} else {
		b.WriteString("Current holdings:\n")
		for _, h := range holdings {
			fmt.Fprintf(&b, "- %s: %s @ avg cost %s USD\n",
				h.Coin, h.Amount.String(), h.CostPrice.String())
		}
		b.WriteString("\n")
	}
	if len(metrics) > 0 {
		b.WriteString("Latest market snapshot:\n")
		for _, m := range metrics {
			fmt.Fprintf(&b, "- %s (%s): %s USD, 24h %s%%\n",
				m.Symbol, m.Name, m.PriceUSD.String(), m.Change24h.String())
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
