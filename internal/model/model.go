// Package model defines the core domain types shared across the advisor engine.
// All quantities, prices, and valuations use shopspring/decimal — never
// float64 for money.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Audit carries the shared bookkeeping fields embedded in every persisted
// entity. A composed value, not inheritance.
type Audit struct {
	CreateBy   string    `json:"create_by,omitempty" db:"create_by"`
	CreateTime time.Time `json:"create_time" db:"create_time"`
	UpdateBy   string    `json:"update_by,omitempty" db:"update_by"`
	UpdateTime time.Time `json:"update_time" db:"update_time"`
}

// Holding is one portfolio row: quantity and average cost for a single coin.
// The Coin field is stored exactly as entered — it may be a display name or
// a ticker symbol; correlation with metrics goes through the coinid resolver.
//
// Invariant: Amount is never negative. A holding driven to zero quantity is
// deleted, never retained.
type Holding struct {
	ID        string          `json:"id" db:"id"`
	Coin      string          `json:"coin" db:"coin"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CostPrice decimal.Decimal `json:"cost_price" db:"cost_price"` // weighted mean over buys
	USDValue  decimal.Decimal `json:"usd_value" db:"usd_value"`   // last-write valuation cache

	// Derived by the valuation overlay on reads; never persisted.
	CurrentPrice decimal.Decimal `json:"current_price" db:"-"`
	Change24h    decimal.Decimal `json:"change_24h" db:"-"`

	Audit
}

// MarketMetric is the latest-known market snapshot for one coin. The whole
// table is replaced atomically each collection cycle; there is no history.
type MarketMetric struct {
	ID                string          `json:"id" db:"id"`
	Symbol            string          `json:"symbol" db:"symbol"` // canonical ticker
	Name              string          `json:"name" db:"name"`     // display name as reported
	PriceUSD          decimal.Decimal `json:"price_usd" db:"price_usd"`
	Change24h         decimal.Decimal `json:"change_24h" db:"change_24h"`
	MarketCap         decimal.Decimal `json:"market_cap" db:"market_cap"`
	CirculatingSupply string          `json:"circulating_supply" db:"circulating_supply"`
	ATHPrice          decimal.Decimal `json:"ath_price" db:"ath_price"`
	SnapshotTime      time.Time       `json:"snapshot_time" db:"snapshot_time"`

	Audit
}

// Message is one piece of AI-collected market commentary.
type Message struct {
	ID          string    `json:"id" db:"id"`
	Coin        string    `json:"coin" db:"coin"` // free-form reference, often a display name
	Content     string    `json:"content" db:"content"`
	Sentiment   string    `json:"sentiment" db:"sentiment"`       // positive / negative / neutral / unknown
	ImpactScore string    `json:"impact_score" db:"impact_score"` // signed integer as string
	Source      string    `json:"source" db:"source"`
	PublishTime time.Time `json:"publish_time" db:"publish_time"`

	Audit
}

// ReportStatus is the approval state of an investment report.
// Transitions are one-way: Pending → Approved or Pending → Rejected.
type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusApproved ReportStatus = "approved"
	StatusRejected ReportStatus = "rejected"
)

// Valid reports whether s is a known status value.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
// Approved and Rejected are terminal.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// InvestmentReport is an AI-generated advice report awaiting human review.
// MessageID is empty for summary reports synthesized from recent messages.
type InvestmentReport struct {
	ID             string       `json:"id" db:"id"`
	MessageID      string       `json:"message_id,omitempty" db:"message_id"`
	AnalysisResult string       `json:"analysis_result" db:"analysis_result"`
	AdviceContent  string       `json:"advice_content" db:"advice_content"`
	ExecuteJSON    string       `json:"execute_json" db:"execute_json"` // serialized []TradeAction
	Status         ReportStatus `json:"status" db:"status"`
	AuditBy        string       `json:"audit_by,omitempty" db:"audit_by"`
	AuditTime      time.Time    `json:"audit_time,omitempty" db:"audit_time"`
	RejectReason   string       `json:"reject_reason,omitempty" db:"reject_reason"`

	Audit
}

// Actions decodes the report's serialized action list. An empty or malformed
// payload yields an empty list — execution treats that as nothing to do,
// never as an error.
func (r *InvestmentReport) Actions() []TradeAction {
	if strings.TrimSpace(r.ExecuteJSON) == "" {
		return nil
	}
	var actions []TradeAction
	if err := json.Unmarshal([]byte(r.ExecuteJSON), &actions); err != nil {
		return nil
	}
	return actions
}

// Trade action types.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// TradeAction is one structured instruction extracted from AI advice.
// Never persisted on its own — it lives inside a report's action payload
// and during execution.
type TradeAction struct {
	Type   string          `json:"type"`
	Coin   string          `json:"coin"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// tradeActionWire mirrors TradeAction with raw fields so decoding survives
// model output that quotes numbers, omits fields, or mistypes them.
type tradeActionWire struct {
	Type   string          `json:"type"`
	Coin   string          `json:"coin"`
	Amount json.RawMessage `json:"amount"`
	Price  json.RawMessage `json:"price"`
}

// UnmarshalJSON decodes a trade action tolerantly: amount and price accept
// JSON numbers or numeric strings, and anything missing or malformed
// defaults to zero. Execution rejects degenerate actions downstream.
func (a *TradeAction) UnmarshalJSON(data []byte) error {
	var w tradeActionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.Type = strings.ToUpper(strings.TrimSpace(w.Type))
	a.Coin = strings.TrimSpace(w.Coin)
	a.Amount = flexDecimal(w.Amount)
	a.Price = flexDecimal(w.Price)
	return nil
}

// flexDecimal parses a raw JSON value as a decimal, accepting numbers and
// numeric strings. Anything else is zero.
func flexDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
