package guard

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func action(qty, price float64) model.TradeAction {
	return model.TradeAction{Type: model.ActionBuy, Coin: "BTC", Amount: d(qty), Price: d(price)}
}

func TestCheck_WithinLimits(t *testing.T) {
	g := NewActionGuard(d(10), d(100000))
	if err := g.Check(action(1, 50000), decimal.Zero); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_QuantityLimit(t *testing.T) {
	g := NewActionGuard(d(10), decimal.Zero)
	err := g.Check(action(11, 1), decimal.Zero)
	if !errors.Is(err, ErrQuantityLimitExceeded) {
		t.Errorf("expected ErrQuantityLimitExceeded, got %v", err)
	}
}

func TestCheck_NotionalLimit(t *testing.T) {
	g := NewActionGuard(decimal.Zero, d(100000))
	// Running notional 60000, next action adds 50000.
	err := g.Check(action(1, 50000), d(60000))
	if !errors.Is(err, ErrNotionalLimitExceeded) {
		t.Errorf("expected ErrNotionalLimitExceeded, got %v", err)
	}
}

func TestCheck_ZeroLimitsDisable(t *testing.T) {
	g := NewActionGuard(decimal.Zero, decimal.Zero)
	if err := g.Check(action(1e6, 1e6), d(1e12)); err != nil {
		t.Errorf("zero limits must disable checks, got %v", err)
	}
}

func TestCheck_NilGuard(t *testing.T) {
	var g *ActionGuard
	if err := g.Check(action(1, 1), decimal.Zero); err != nil {
		t.Errorf("nil guard must allow everything, got %v", err)
	}
}

func TestNotional_NoPriceIsZero(t *testing.T) {
	if !Notional(action(5, 0)).IsZero() {
		t.Error("notional without a positive price should be zero")
	}
	if !Notional(action(2, 3)).Equal(d(6)) {
		t.Error("notional should be qty*price")
	}
}
