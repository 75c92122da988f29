package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cryptodesk/advisor-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All quantities and prices are stored as NUMERIC for exact decimal
// precision and scanned through TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Holdings ---

const holdingColumns = `id, coin, amount::TEXT, cost_price::TEXT, usd_value::TEXT,
	create_by, create_time, update_by, update_time`

func (s *PostgresStore) ListHoldings(ctx context.Context) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+holdingColumns+` FROM holdings ORDER BY create_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE id = $1`, id)
	h, err := scanHolding(row)
	if err != nil {
		return nil, rowErr(err, "holding", id)
	}
	return h, nil
}

func (s *PostgresStore) InsertHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holdings (id, coin, amount, cost_price, usd_value,
		                       create_by, create_time, update_by, update_time)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9)`,
		h.ID, h.Coin, h.Amount.String(), h.CostPrice.String(), h.USDValue.String(),
		h.CreateBy, h.CreateTime, h.UpdateBy, h.UpdateTime,
	)
	return err
}

func (s *PostgresStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE holdings
		 SET coin = $2, amount = $3::NUMERIC, cost_price = $4::NUMERIC,
		     usd_value = $5::NUMERIC, update_by = $6, update_time = $7
		 WHERE id = $1`,
		h.ID, h.Coin, h.Amount.String(), h.CostPrice.String(), h.USDValue.String(),
		h.UpdateBy, h.UpdateTime,
	)
	return err
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) DeleteHoldings(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM holdings WHERE id = ANY($1)`, ids)
	return err
}

// --- Metrics ---

const metricColumns = `id, symbol, name, price_usd::TEXT, change_24h::TEXT,
	market_cap::TEXT, circulating_supply, ath_price::TEXT, snapshot_time,
	create_by, create_time, update_by, update_time`

func (s *PostgresStore) GetMetric(ctx context.Context, id string) (*model.MarketMetric, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+metricColumns+` FROM crypto_metrics WHERE id = $1`, id)
	m, err := scanMetric(row)
	if err != nil {
		return nil, rowErr(err, "metric", id)
	}
	return m, nil
}

func (s *PostgresStore) ListLatestMetrics(ctx context.Context) ([]model.MarketMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+metricColumns+` FROM crypto_metrics ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []model.MarketMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, *m)
	}
	return metrics, rows.Err()
}

// ReplaceMetrics swaps the whole snapshot table in one transaction so
// concurrent readers never observe the gap between delete and reinsert.
func (s *PostgresStore) ReplaceMetrics(ctx context.Context, metrics []model.MarketMetric) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace metrics: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM crypto_metrics`); err != nil {
		return fmt.Errorf("clear metrics: %w", err)
	}

	for i := range metrics {
		m := &metrics[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO crypto_metrics (id, symbol, name, price_usd, change_24h,
			                             market_cap, circulating_supply, ath_price, snapshot_time,
			                             create_by, create_time, update_by, update_time)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8::NUMERIC, $9, $10, $11, $12, $13)`,
			m.ID, m.Symbol, m.Name, m.PriceUSD.String(), m.Change24h.String(),
			m.MarketCap.String(), m.CirculatingSupply, m.ATHPrice.String(), m.SnapshotTime,
			m.CreateBy, m.CreateTime, m.UpdateBy, m.UpdateTime,
		); err != nil {
			return fmt.Errorf("insert metric %s: %w", m.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// --- Messages ---

const messageColumns = `id, coin, content, sentiment, impact_score, source, publish_time,
	create_by, create_time, update_by, update_time`

func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM crypto_messages ORDER BY publish_time DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Coin, &m.Content, &m.Sentiment, &m.ImpactScore,
			&m.Source, &m.PublishTime,
			&m.CreateBy, &m.CreateTime, &m.UpdateBy, &m.UpdateTime); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM crypto_messages WHERE id = $1`, id).
		Scan(&m.ID, &m.Coin, &m.Content, &m.Sentiment, &m.ImpactScore,
			&m.Source, &m.PublishTime,
			&m.CreateBy, &m.CreateTime, &m.UpdateBy, &m.UpdateTime)
	if err != nil {
		return nil, rowErr(err, "message", id)
	}
	return &m, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crypto_messages (id, coin, content, sentiment, impact_score, source, publish_time,
		                              create_by, create_time, update_by, update_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.Coin, m.Content, m.Sentiment, m.ImpactScore, m.Source, m.PublishTime,
		m.CreateBy, m.CreateTime, m.UpdateBy, m.UpdateTime,
	)
	return err
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, m *model.Message) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE crypto_messages
		 SET coin = $2, content = $3, sentiment = $4, impact_score = $5,
		     source = $6, publish_time = $7, update_by = $8, update_time = $9
		 WHERE id = $1`,
		m.ID, m.Coin, m.Content, m.Sentiment, m.ImpactScore,
		m.Source, m.PublishTime, m.UpdateBy, m.UpdateTime,
	)
	return err
}

func (s *PostgresStore) DeleteMessages(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM crypto_messages WHERE id = ANY($1)`, ids)
	return err
}

// --- Reports ---

const reportColumns = `id, message_id, analysis_result, advice_content, execute_json,
	status, audit_by, audit_time, reject_reason,
	create_by, create_time, update_by, update_time`

func (s *PostgresStore) ListReports(ctx context.Context) ([]model.InvestmentReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM investment_reports ORDER BY create_time DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.InvestmentReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.InvestmentReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM investment_reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, rowErr(err, "report", id)
	}
	return r, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, r *model.InvestmentReport) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO investment_reports (id, message_id, analysis_result, advice_content, execute_json,
		                                 status, audit_by, audit_time, reject_reason,
		                                 create_by, create_time, update_by, update_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.MessageID, r.AnalysisResult, r.AdviceContent, r.ExecuteJSON,
		string(r.Status), r.AuditBy, r.AuditTime, r.RejectReason,
		r.CreateBy, r.CreateTime, r.UpdateBy, r.UpdateTime,
	)
	return err
}

func (s *PostgresStore) UpdateReport(ctx context.Context, r *model.InvestmentReport) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE investment_reports
		 SET status = $2, audit_by = $3, audit_time = $4, reject_reason = $5,
		     advice_content = $6, execute_json = $7, update_by = $8, update_time = $9
		 WHERE id = $1`,
		r.ID, string(r.Status), r.AuditBy, r.AuditTime, r.RejectReason,
		r.AdviceContent, r.ExecuteJSON, r.UpdateBy, r.UpdateTime,
	)
	return err
}

func (s *PostgresStore) DeleteReports(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM investment_reports WHERE id = ANY($1)`, ids)
	return err
}

// rowErr maps pgx.ErrNoRows onto the store's sentinel so callers can
// match with errors.Is regardless of backend.
func rowErr(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("get %s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// --- Row scanning ---

type pgxRow interface {
	Scan(dest ...any) error
}

func scanHolding(row pgxRow) (*model.Holding, error) {
	var h model.Holding
	var amount, costPrice, usdValue string

	if err := row.Scan(&h.ID, &h.Coin, &amount, &costPrice, &usdValue,
		&h.CreateBy, &h.CreateTime, &h.UpdateBy, &h.UpdateTime); err != nil {
		return nil, err
	}

	h.Amount, _ = decimal.NewFromString(amount)
	h.CostPrice, _ = decimal.NewFromString(costPrice)
	h.USDValue, _ = decimal.NewFromString(usdValue)
	return &h, nil
}

func scanMetric(row pgxRow) (*model.MarketMetric, error) {
	var m model.MarketMetric
	var priceUSD, change24h, marketCap, athPrice string

	if err := row.Scan(&m.ID, &m.Symbol, &m.Name, &priceUSD, &change24h,
		&marketCap, &m.CirculatingSupply, &athPrice, &m.SnapshotTime,
		&m.CreateBy, &m.CreateTime, &m.UpdateBy, &m.UpdateTime); err != nil {
		return nil, err
	}

	m.PriceUSD, _ = decimal.NewFromString(priceUSD)
	m.Change24h, _ = decimal.NewFromString(change24h)
	m.MarketCap, _ = decimal.NewFromString(marketCap)
	m.ATHPrice, _ = decimal.NewFromString(athPrice)
	return &m, nil
}

func scanReport(row pgxRow) (*model.InvestmentReport, error) {
	var r model.InvestmentReport
	var status string

	if err := row.Scan(&r.ID, &r.MessageID, &r.AnalysisResult, &r.AdviceContent, &r.ExecuteJSON,
		&status, &r.AuditBy, &r.AuditTime, &r.RejectReason,
		&r.CreateBy, &r.CreateTime, &r.UpdateBy, &r.UpdateTime); err != nil {
		return nil, err
	}

	r.Status = model.ReportStatus(status)
	if !r.Status.Valid() {
		return nil, fmt.Errorf("report %s: invalid status %q", r.ID, status)
	}
	return &r, nil
}
