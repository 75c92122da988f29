// Package store defines the persistence interface for the advisor engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The trade engine is the only writer
// of holdings; the collection cycle is the only writer of metrics.
type Store interface {
	// --- Holdings ledger ---

	// ListHoldings returns all holdings in stable ledger order
	// (creation time ascending).
	ListHoldings(ctx context.Context) ([]model.Holding, error)

	// GetHolding retrieves a holding by ID.
	GetHolding(ctx context.Context, id string) (*model.Holding, error)

	// InsertHolding persists a new holding.
	InsertHolding(ctx context.Context, h *model.Holding) error

	// UpdateHolding overwrites an existing holding's mutable fields.
	UpdateHolding(ctx context.Context, h *model.Holding) error

	// DeleteHolding removes a holding (full liquidation or manual delete).
	DeleteHolding(ctx context.Context, id string) error

	// DeleteHoldings removes a set of holdings by ID.
	DeleteHoldings(ctx context.Context, ids []string) error

	// --- Market snapshot store ---

	// GetMetric retrieves a snapshot row by ID.
	GetMetric(ctx context.Context, id string) (*model.MarketMetric, error)

	// ListLatestMetrics returns the current snapshot: one row per symbol.
	ListLatestMetrics(ctx context.Context) ([]model.MarketMetric, error)

	// ReplaceMetrics atomically replaces the entire snapshot table
	// (delete-all + batch insert). Concurrent readers never observe an
	// empty table between the delete and the reinsert.
	ReplaceMetrics(ctx context.Context, metrics []model.MarketMetric) error

	// --- Messages ---

	// ListMessages returns messages most-recent-first. limit <= 0 means all.
	ListMessages(ctx context.Context, limit int) ([]model.Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	// InsertMessage persists a new message.
	InsertMessage(ctx context.Context, m *model.Message) error

	// UpdateMessage overwrites an existing message.
	UpdateMessage(ctx context.Context, m *model.Message) error

	// DeleteMessages removes a set of messages by ID.
	DeleteMessages(ctx context.Context, ids []string) error

	// --- Investment reports ---

	// ListReports returns reports most-recent-first.
	ListReports(ctx context.Context) ([]model.InvestmentReport, error)

	// GetReport retrieves a report by ID.
	GetReport(ctx context.Context, id string) (*model.InvestmentReport, error)

	// InsertReport persists a new report.
	InsertReport(ctx context.Context, r *model.InvestmentReport) error

	// UpdateReport overwrites an existing report.
	UpdateReport(ctx context.Context, r *model.InvestmentReport) error

	// DeleteReports removes a set of reports by ID.
	DeleteReports(ctx context.Context, ids []string) error
}
