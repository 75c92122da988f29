// Package trade applies approved advice actions to the holdings ledger.
//
// All quantities and prices use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/coinid"
	"github.com/cryptodesk/advisor-engine/internal/costbasis"
	"github.com/cryptodesk/advisor-engine/internal/events"
	"github.com/cryptodesk/advisor-engine/internal/guard"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
	"github.com/cryptodesk/advisor-engine/internal/telemetry"
)

// actor recorded on ledger rows written by automated execution.
const systemActor = "system"

// Engine executes trade actions against the holdings ledger. Uses a mutex
// for serialized execution (single-instance). For horizontal scaling,
// replace with distributed locking or database-level optimistic concurrency.
type Engine struct {
	store store.Store
	guard *guard.ActionGuard // nil disables limit checks
	hub   *events.Hub        // optional WebSocket hub for broadcasts
	mu    sync.Mutex
}

// NewEngine creates a trade engine. Pass nil for g to disable action
// limits, and nil for hub if broadcasting is not needed.
func NewEngine(st store.Store, g *guard.ActionGuard, hub *events.Hub) *Engine {
	return &Engine{
		store: st,
		guard: g,
		hub:   hub,
	}
}

// Summary reports what one Apply call did.
type Summary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// Apply executes a batch of actions against the ledger, one at a time.
// Degenerate actions (no coin, non-positive amount, unknown type) and
// actions rejected by the guard are skipped, not fatal; a storage failure
// on one action is logged and execution continues with the next. The
// batch as a whole only errors when nothing could be read at all.
func (e *Engine) Apply(ctx context.Context, actions []model.TradeAction) (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sum Summary
	var batchNotional decimal.Decimal

	for _, action := range actions {
		if skip, reason := degenerate(action); skip {
			slog.Warn("trade action skipped", "type", action.Type, "coin", action.Coin, "reason", reason)
			telemetry.TradeActions.WithLabelValues(labelType(action.Type), "skipped").Inc()
			sum.Skipped++
			continue
		}

		if err := e.guard.Check(action, batchNotional); err != nil {
			slog.Warn("trade action rejected by guard",
				"type", action.Type,
				"coin", action.Coin,
				"amount", action.Amount.String(),
				"err", err,
			)
			telemetry.TradeActions.WithLabelValues(action.Type, "rejected").Inc()
			sum.Skipped++
			continue
		}

		applied, err := e.apply(ctx, action)
		if err != nil {
			slog.Error("trade action failed",
				"type", action.Type,
				"coin", action.Coin,
				"err", err,
			)
			telemetry.TradeActions.WithLabelValues(action.Type, "failed").Inc()
			sum.Skipped++
			continue
		}
		if !applied {
			telemetry.TradeActions.WithLabelValues(action.Type, "skipped").Inc()
			sum.Skipped++
			continue
		}

		batchNotional = batchNotional.Add(guard.Notional(action))
		telemetry.TradeActions.WithLabelValues(action.Type, "applied").Inc()
		sum.Applied++

		e.hub.Broadcast(events.Event{
			Type:   events.TypeTradeExecuted,
			Coin:   action.Coin,
			Action: action.Type,
			Amount: action.Amount.String(),
		})
	}

	return sum, nil
}

// degenerate reports whether an action carries nothing executable. Every
// action needs a coin reference; BUY and SELL additionally need a positive
// amount, HOLD is well-formed with any quantity.
func degenerate(a model.TradeAction) (bool, string) {
	if strings.TrimSpace(a.Coin) == "" {
		return true, "empty coin"
	}
	switch a.Type {
	case model.ActionHold:
		return false, ""
	case model.ActionBuy, model.ActionSell:
		if !a.Amount.IsPositive() {
			return true, "non-positive amount"
		}
		return false, ""
	default:
		return true, "unknown action type"
	}
}

func labelType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}

// apply executes one action. The bool reports whether the action did
// apply; a SELL against nothing held is a logged skip, not an error.
func (e *Engine) apply(ctx context.Context, action model.TradeAction) (bool, error) {
	switch action.Type {
	case model.ActionHold:
		// Deliberate no-op: the advice named the coin but asked for no change.
		return true, nil
	case model.ActionBuy:
		if err := e.applyBuy(ctx, action); err != nil {
			return false, err
		}
		return true, nil
	case model.ActionSell:
		return e.applySell(ctx, action)
	}
	return false, fmt.Errorf("unknown action type %q", action.Type)
}

// findHolding locates the ledger row an action targets: exact
// case-insensitive match on the stored coin reference first, then a
// canonical-symbol match through the resolver. First match in ledger
// order wins.
func (e *Engine) findHolding(ctx context.Context, coin string) (*model.Holding, error) {
	holdings, err := e.store.ListHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	for i := range holdings {
		if strings.EqualFold(holdings[i].Coin, coin) {
			return &holdings[i], nil
		}
	}

	want, ok := coinid.Resolve(coin)
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := range holdings {
		if got, ok := coinid.Resolve(holdings[i].Coin); ok && got == want {
			return &holdings[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (e *Engine) applyBuy(ctx context.Context, action model.TradeAction) error {
	now := time.Now().UTC()

	h, err := e.findHolding(ctx, action.Coin)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if h == nil {
		h = &model.Holding{
			ID:        uuid.New().String(),
			Coin:      action.Coin,
			Amount:    action.Amount,
			CostPrice: action.Price,
			USDValue:  action.Amount.Mul(action.Price),
			Audit: model.Audit{
				CreateBy:   systemActor,
				CreateTime: now,
				UpdateBy:   systemActor,
				UpdateTime: now,
			},
		}
		if err := e.store.InsertHolding(ctx, h); err != nil {
			return fmt.Errorf("insert holding: %w", err)
		}
		slog.Info("buy opened position",
			"coin", action.Coin,
			"amount", action.Amount.String(),
			"price", action.Price.String(),
		)
		return nil
	}

	h.CostPrice = costbasis.WeightedAverage(h.Amount, h.CostPrice, action.Amount, action.Price)
	h.Amount = h.Amount.Add(action.Amount)
	h.USDValue = costbasis.Valuation(h.Amount, action.Price, h.USDValue)
	h.UpdateBy = systemActor
	h.UpdateTime = now

	if err := e.store.UpdateHolding(ctx, h); err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	slog.Info("buy applied",
		"coin", h.Coin,
		"amount", h.Amount.String(),
		"cost_price", h.CostPrice.String(),
	)
	return nil
}

func (e *Engine) applySell(ctx context.Context, action model.TradeAction) (bool, error) {
	h, err := e.findHolding(ctx, action.Coin)
	if errors.Is(err, store.ErrNotFound) {
		// Nothing held: the sell is unexecutable, not an error.
		slog.Warn("sell with no matching holding", "coin", action.Coin)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sellQty := costbasis.ClampSell(h.Amount, action.Amount)
	remaining := h.Amount.Sub(sellQty)

	if !remaining.IsPositive() {
		if err := e.store.DeleteHolding(ctx, h.ID); err != nil {
			return false, fmt.Errorf("delete holding: %w", err)
		}
		slog.Info("sell liquidated position", "coin", h.Coin, "sold", sellQty.String())
		return true, nil
	}

	// Partial sell: cost basis per unit is unchanged.
	h.Amount = remaining
	h.USDValue = costbasis.Valuation(remaining, action.Price, h.USDValue)
	h.UpdateBy = systemActor
	h.UpdateTime = time.Now().UTC()

	if err := e.store.UpdateHolding(ctx, h); err != nil {
		return false, fmt.Errorf("update holding: %w", err)
	}
	slog.Info("sell applied",
		"coin", h.Coin,
		"sold", sellQty.String(),
		"remaining", remaining.String(),
	)
	return true, nil
}
