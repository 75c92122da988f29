// Package costbasis implements the cost-basis arithmetic for portfolio
// mutations: weighted-average cost on buys, clamped quantities on sells,
// and valuation at a reference price.
//
// All functions are pure and operate on shopspring/decimal values.
package costbasis

import "github.com/shopspring/decimal"

// WeightedAverage returns the new average cost after buying buyQty at
// buyPrice on top of oldQty held at oldCost:
//
//	(oldQty*oldCost + buyQty*buyPrice) / (oldQty + buyQty)
//
// When the combined quantity is not positive the old cost is returned
// unchanged; the division is never attempted.
//
// For positive quantities the result always lies between oldCost and
// buyPrice — a weighted mean, not an overwrite.
func WeightedAverage(oldQty, oldCost, buyQty, buyPrice decimal.Decimal) decimal.Decimal {
	newQty := oldQty.Add(buyQty)
	if newQty.LessThanOrEqual(decimal.Zero) {
		return oldCost
	}
	total := oldQty.Mul(oldCost).Add(buyQty.Mul(buyPrice))
	return total.Div(newQty)
}

// ClampSell returns the effective sell quantity: min(requested, held).
// Selling more than held is clamped, never an error — the ledger can
// never go negative through a sell.
func ClampSell(held, requested decimal.Decimal) decimal.Decimal {
	if requested.GreaterThan(held) {
		return held
	}
	return requested
}

// Valuation returns qty×price when price is positive; otherwise it returns
// fallback, preserving a stale-but-present stored valuation.
func Valuation(qty, price, fallback decimal.Decimal) decimal.Decimal {
	if price.IsPositive() {
		return qty.Mul(price)
	}
	return fallback
}
