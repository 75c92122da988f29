// Package guard enforces safety bounds on extracted trade actions before
// execution. AI output is untrusted: a hallucinated quantity or price must
// not be able to move the whole portfolio in one action.
package guard

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

var (
	// ErrQuantityLimitExceeded is returned when a single action's quantity
	// exceeds the per-action maximum.
	ErrQuantityLimitExceeded = errors.New("guard: per-action quantity limit exceeded")

	// ErrNotionalLimitExceeded is returned when the batch's running notional
	// (quantity × reference price, summed) would exceed the per-batch
	// maximum.
	ErrNotionalLimitExceeded = errors.New("guard: batch notional limit exceeded")
)

// ActionGuard bounds individual actions and whole execution batches.
// A zero limit disables that check.
type ActionGuard struct {
	// MaxQuantity is the maximum quantity a single action may carry.
	MaxQuantity decimal.Decimal

	// MaxBatchNotional is the maximum total notional (Σ qty×price over
	// actions with a positive reference price) one execution batch may
	// carry.
	MaxBatchNotional decimal.Decimal
}

// NewActionGuard creates a guard with the given limits.
func NewActionGuard(maxQuantity, maxBatchNotional decimal.Decimal) *ActionGuard {
	return &ActionGuard{
		MaxQuantity:      maxQuantity,
		MaxBatchNotional: maxBatchNotional,
	}
}

// Check validates one action against the limits given the notional already
// consumed by earlier actions in the batch. Returns nil if the action is
// within bounds; callers skip (not abort on) a violating action.
func (g *ActionGuard) Check(action model.TradeAction, batchNotional decimal.Decimal) error {
	if g == nil {
		return nil
	}
	if g.MaxQuantity.IsPositive() && action.Amount.GreaterThan(g.MaxQuantity) {
		return ErrQuantityLimitExceeded
	}
	if g.MaxBatchNotional.IsPositive() {
		if batchNotional.Add(Notional(action)).GreaterThan(g.MaxBatchNotional) {
			return ErrNotionalLimitExceeded
		}
	}
	return nil
}

// Notional returns the action's notional value at its reference price, or
// zero when no positive price is attached.
func Notional(action model.TradeAction) decimal.Decimal {
	if !action.Price.IsPositive() {
		return decimal.Zero
	}
	return action.Amount.Mul(action.Price)
}
