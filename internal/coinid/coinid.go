// Package coinid resolves free-form coin references — display names or
// ticker symbols in inconsistent conventions — to canonical symbols.
//
// Resolution fails closed: an unknown reference is reported as unresolved,
// never guessed. Holdings, metrics, and AI output all correlate through
// this package.
package coinid

import "strings"

// aliases maps lowercased display names (Chinese and English variants as
// the AI channels emit them) to canonical symbols.
var aliases = map[string]string{
	"比特币":      "BTC",
	"bitcoin":  "BTC",
	"以太坊":      "ETH",
	"ethereum": "ETH",
	"泰达币":      "USDT",
	"tether":   "USDT",
	"币安币":      "BNB",
	"binance coin": "BNB",
	"瑞波币":    "XRP",
	"ripple": "XRP",
	"usd coin": "USDC",
	"索拉纳":    "SOL",
	"solana": "SOL",
	"狗狗币":      "DOGE",
	"dogecoin": "DOGE",
	"艾达币":     "ADA",
	"cardano": "ADA",
	"波场":   "TRX",
	"tron": "TRX",
	"吨币":      "TON",
	"toncoin": "TON",
	"波卡":       "DOT",
	"polkadot": "DOT",
	"链节币":       "LINK",
	"chainlink": "LINK",
	"柴犬币":       "SHIB",
	"shiba inu": "SHIB",
	"莱特币":      "LTC",
	"litecoin": "LTC",
}

// symbols is the set of canonical tickers this system knows about.
var symbols = map[string]bool{
	"BTC": true, "ETH": true, "USDT": true, "BNB": true, "XRP": true,
	"USDC": true, "SOL": true, "DOGE": true, "ADA": true, "TRX": true,
	"TON": true, "DOT": true, "LINK": true, "SHIB": true, "LTC": true,
}

// Resolve maps a reference to its canonical symbol. The second return is
// false when the reference is unknown — callers must treat that as "do not
// correlate automatically".
//
// Order: exact case-insensitive alias match, then known-symbol passthrough.
// No partial or fuzzy matching.
func Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if sym, ok := aliases[strings.ToLower(ref)]; ok {
		return sym, true
	}
	if upper := strings.ToUpper(ref); symbols[upper] {
		return upper, true
	}
	return "", false
}

// Known reports whether sym is a canonical symbol (case-insensitive).
func Known(sym string) bool {
	return symbols[strings.ToUpper(strings.TrimSpace(sym))]
}
