// Package collector runs the AI collection channels: market commentary
// (news) and market metrics. It also owns CRUD for the commentary messages
// the collection feeds into.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/advice"
	"github.com/cryptodesk/advisor-engine/internal/coinid"
	"github.com/cryptodesk/advisor-engine/internal/model"
	"github.com/cryptodesk/advisor-engine/internal/store"
	"github.com/cryptodesk/advisor-engine/internal/telemetry"
)

// ChatClient is an AI collection channel.
type ChatClient interface {
	Chat(ctx context.Context, query, user string) (string, error)
}

// SummaryGenerator produces a portfolio summary report. Satisfied by the
// report service; collection triggers one after new commentary lands.
type SummaryGenerator interface {
	GenerateSummary(ctx context.Context) (*model.InvestmentReport, error)
}

// sources attributed to collected commentary when the channel does not
// name one.
var sources = []string{"CoinDesk", "The Block", "LTC Foundation", "Reddit", "SEC Updates"}

// stablecoins keep a snapshot row even when the reported price is missing
// or zero; their price is pegged, not informative.
var stablecoins = map[string]bool{"USDT": true, "USDC": true}

// Service runs collection cycles and serves the message API.
type Service struct {
	store    store.Store
	news     ChatClient
	metrics  ChatClient
	analysis ChatClient // tags manually created messages; nil disables
	reports  SummaryGenerator
}

// NewService creates a collector. analysis and reports may be nil.
func NewService(st store.Store, news, metrics, analysis ChatClient, reports SummaryGenerator) *Service {
	return &Service{
		store:    st,
		news:     news,
		metrics:  metrics,
		analysis: analysis,
		reports:  reports,
	}
}

// --- Commentary collection ---

// newsItem is one commentary entry in the news channel's response.
type newsItem struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	InfluenceScore int    `json:"influence_score"`
	Source         string `json:"source"`
}

const newsPrompt = `Collect the latest significant crypto market news for the major coins. ` +
	`Respond with a single JSON object mapping coin name to an array of items, ` +
	`each item of the form {"title": "...", "summary": "...", "influence_score": N} ` +
	`where influence_score is an integer from -2 (very bearish) to 2 (very bullish).`

// CollectMessages runs the news channel and persists one message per news
// item. After new commentary lands it triggers a summary report; report
// failure is logged, never propagated to the collection result.
func (s *Service) CollectMessages(ctx context.Context) (int, error) {
	answer, err := s.news.Chat(ctx, newsPrompt, "collector")
	if err != nil {
		return 0, fmt.Errorf("news collection: %w", err)
	}

	payload := advice.JSONObject(answer)
	if payload == "" {
		return 0, fmt.Errorf("news collection: no JSON payload in response")
	}

	var byCoin map[string][]newsItem
	if err := json.Unmarshal([]byte(payload), &byCoin); err != nil {
		return 0, fmt.Errorf("news collection: decode payload: %w", err)
	}

	now := time.Now().UTC()
	inserted := 0
	for coin, items := range byCoin {
		for _, item := range items {
			content := strings.TrimSpace(item.Title)
			if sum := strings.TrimSpace(item.Summary); sum != "" {
				if content != "" {
					content += ": "
				}
				content += sum
			}
			if content == "" {
				continue
			}

			source := strings.TrimSpace(item.Source)
			if source == "" {
				source = sources[rand.Intn(len(sources))]
			}

			msg := &model.Message{
				ID:          uuid.New().String(),
				Coin:        coin,
				Content:     content,
				Sentiment:   advice.SentimentFromScore(item.InfluenceScore),
				ImpactScore: strconv.Itoa(item.InfluenceScore),
				Source:      source,
				PublishTime: now,
				Audit: model.Audit{
					CreateBy:   "system",
					CreateTime: now,
					UpdateBy:   "system",
					UpdateTime: now,
				},
			}
			if err := s.store.InsertMessage(ctx, msg); err != nil {
				slog.Error("insert collected message failed", "coin", coin, "err", err)
				continue
			}
			inserted++
		}
	}

	telemetry.CollectionRows.WithLabelValues("messages").Add(float64(inserted))
	slog.Info("message collection finished", "inserted", inserted)

	if inserted > 0 && s.reports != nil {
		if _, err := s.reports.GenerateSummary(ctx); err != nil {
			slog.Error("summary report after collection failed", "err", err)
		}
	}
	return inserted, nil
}

// --- Metrics collection ---

const metricsPrompt = `Report the current market data for the major cryptocurrencies. ` +
	`Respond with a single JSON object of the form {"data": [{"symbol": "BTC", "name": "Bitcoin", ` +
	`"price_usd": 0, "change_24h": 0, "market_cap": 0, "circulating_supply": "...", "ath_price": 0}, ...]}.`

// CollectMetrics runs the metrics channel and atomically replaces the
// market snapshot. Rows with unresolvable or duplicate symbols are
// skipped, as are rows without a positive price unless the coin is a
// stablecoin. An empty usable set leaves the previous snapshot in place.
func (s *Service) CollectMetrics(ctx context.Context) (int, error) {
	answer, err := s.metrics.Chat(ctx, metricsPrompt, "collector")
	if err != nil {
		return 0, fmt.Errorf("metrics collection: %w", err)
	}

	payload := advice.JSONObject(answer)
	if payload == "" {
		return 0, fmt.Errorf("metrics collection: no JSON payload in response")
	}

	var wire struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return 0, fmt.Errorf("metrics collection: decode payload: %w", err)
	}

	now := time.Now().UTC()
	seen := map[string]bool{}
	rows := make([]model.MarketMetric, 0, len(wire.Data))

	for _, raw := range wire.Data {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			slog.Warn("metrics row is not an object, skipped")
			continue
		}

		name := pickString(fields, "name", "coin_name", "coinName")
		ref := pickString(fields, "symbol", "coin", "ticker")
		if ref == "" {
			ref = name
		}
		symbol, ok := coinid.Resolve(ref)
		if !ok {
			slog.Warn("metrics row with unknown coin skipped", "ref", ref)
			continue
		}
		if seen[symbol] {
			slog.Warn("duplicate metrics row skipped", "symbol", symbol)
			continue
		}

		price := pickDecimal(fields, "price_usd", "priceUsd", "price", "current_price", "currentPrice")
		if !price.IsPositive() && !stablecoins[symbol] {
			slog.Warn("metrics row without positive price skipped", "symbol", symbol)
			continue
		}

		seen[symbol] = true
		rows = append(rows, model.MarketMetric{
			ID:                uuid.New().String(),
			Symbol:            symbol,
			Name:              name,
			PriceUSD:          price,
			Change24h:         pickDecimal(fields, "change_24h", "change24h", "price_change_24h", "priceChange24h"),
			MarketCap:         pickDecimal(fields, "market_cap", "marketCap"),
			CirculatingSupply: pickString(fields, "circulating_supply", "circulatingSupply"),
			ATHPrice:          pickDecimal(fields, "ath_price", "athPrice", "ath"),
			SnapshotTime:      now,
			Audit: model.Audit{
				CreateBy:   "system",
				CreateTime: now,
				UpdateBy:   "system",
				UpdateTime: now,
			},
		})
	}

	if len(rows) == 0 {
		slog.Warn("metrics collection produced no usable rows, snapshot kept")
		return 0, nil
	}

	if err := s.store.ReplaceMetrics(ctx, rows); err != nil {
		return 0, fmt.Errorf("replace metrics: %w", err)
	}

	telemetry.CollectionRows.WithLabelValues("metrics").Add(float64(len(rows)))
	slog.Info("metrics collection finished", "rows", len(rows))
	return len(rows), nil
}

// pickString returns the first present key's value as a trimmed string.
// Accepts both JSON strings and bare values.
func pickString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		v := strings.TrimSpace(string(raw))
		if v != "" && v != "null" {
			return v
		}
	}
	return ""
}

// pickDecimal returns the first present key's value as a decimal,
// accepting JSON numbers and numeric strings. Missing or malformed is
// zero.
func pickDecimal(fields map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
		s = strings.ReplaceAll(s, ",", "")
		if s == "" || s == "null" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// --- Manual message analysis ---

const analysisPromptFormat = `Analyze the following crypto market commentary about %s. ` +
	`Respond on two lines: "sentiment: <positive|negative|neutral>" and "impact_score: <integer from -2 to 2>".` + "\n\n%s"

// analyze tags a manually created message through the analysis channel.
// On any failure the tags stay at their defaults; creation never fails
// because tagging did.
func (s *Service) analyze(ctx context.Context, msg *model.Message) {
	if s.analysis == nil {
		return
	}
	answer, err := s.analysis.Chat(ctx, fmt.Sprintf(analysisPromptFormat, msg.Coin, msg.Content), "collector")
	if err != nil {
		slog.Warn("message analysis failed", "coin", msg.Coin, "err", err)
		return
	}
	msg.Sentiment, msg.ImpactScore = advice.Tag(answer)
}
