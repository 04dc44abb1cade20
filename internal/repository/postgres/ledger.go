package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger implements repository.Ledger using PostgreSQL. Trade rows, the
// capital row and the linked signal move together in one transaction.
type Ledger struct {
	pool *Pool
}

func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ repository.Ledger = (*Ledger)(nil)

func (l *Ledger) InitCapital(ctx context.Context, c *models.CapitalState) error {
	sectors, symbols, err := encodeExposure(c)
	if err != nil {
		return err
	}
	version := c.Version
	if version == 0 {
		version = 1
	}
	query := `
		INSERT INTO capital_state (
			portfolio_id, cash_available, total_portfolio_value, realized_pl,
			open_position_count, sector_allocation, symbol_exposure, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = l.pool.Exec(ctx, query,
		c.PortfolioID, c.CashAvailable, c.TotalPortfolioValue, c.RealizedPL,
		c.OpenPositionCount, sectors, symbols, version, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("init capital: %w", err)
	}
	c.Version = version
	return nil
}

func (l *Ledger) GetCapital(ctx context.Context, portfolioID string) (*models.CapitalState, error) {
	query := `
		SELECT portfolio_id, cash_available, total_portfolio_value, realized_pl,
			open_position_count, sector_allocation, symbol_exposure, version, updated_at
		FROM capital_state WHERE portfolio_id = $1
	`
	var (
		c                models.CapitalState
		sectors, symbols []byte
	)
	err := l.pool.QueryRow(ctx, query, portfolioID).Scan(
		&c.PortfolioID, &c.CashAvailable, &c.TotalPortfolioValue, &c.RealizedPL,
		&c.OpenPositionCount, &sectors, &symbols, &c.Version, &c.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get capital: %w", err)
	}
	c.SectorAllocation = map[string]decimal.Decimal{}
	c.SymbolExposure = map[string]decimal.Decimal{}
	if err := json.Unmarshal(sectors, &c.SectorAllocation); err != nil {
		return nil, fmt.Errorf("decode sector allocation: %w", err)
	}
	if err := json.Unmarshal(symbols, &c.SymbolExposure); err != nil {
		return nil, fmt.Errorf("decode symbol exposure: %w", err)
	}
	return &c, nil
}

func (l *Ledger) OpenTrade(ctx context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateCapital(ctx, tx, next, expectedVersion); err != nil {
		return err
	}
	if t.SignalID != "" {
		if err := acceptSignal(ctx, tx, t.SignalID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO trades (
			id, portfolio_id, signal_id, symbol, sector, direction, quantity, entry_price,
			entry_time, status, risk_tier, signal_confidence, sentiment_score
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.Exec(ctx, query,
		t.ID, t.PortfolioID, t.SignalID, t.Symbol, t.Sector, string(t.Direction), t.Quantity,
		t.EntryPrice, t.EntryTime, string(t.Status), string(t.RiskTier), t.SignalConfidence,
		t.SentimentScore,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	next.Version = expectedVersion + 1
	return nil
}

func (l *Ledger) SettleTrade(ctx context.Context, t *models.Trade, next *models.CapitalState, expectedVersion int64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE trades
		SET status = $2, close_price = $3, close_time = $4, realized_pl = $5, close_reason = $6
		WHERE id = $1 AND status = $7
	`
	tag, err := tx.Exec(ctx, query,
		t.ID, string(t.Status), nullDecimal(t.ClosePrice), t.CloseTime, nullDecimal(t.RealizedPL),
		string(t.CloseReason), string(models.TradeOpen),
	)
	if err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		found, err := exists(ctx, tx, `SELECT 1 FROM trades WHERE id = $1`, t.ID)
		if err != nil {
			return fmt.Errorf("check trade: %w", err)
		}
		if found {
			return repository.ErrStateConflict
		}
		return repository.ErrNotFound
	}

	if err := updateCapital(ctx, tx, next, expectedVersion); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	next.Version = expectedVersion + 1
	return nil
}

// updateCapital writes next if the stored version still equals expected.
func updateCapital(ctx context.Context, tx pgx.Tx, next *models.CapitalState, expected int64) error {
	sectors, symbols, err := encodeExposure(next)
	if err != nil {
		return err
	}
	query := `
		UPDATE capital_state
		SET cash_available = $3, total_portfolio_value = $4, realized_pl = $5,
			open_position_count = $6, sector_allocation = $7, symbol_exposure = $8,
			version = $2 + 1, updated_at = $9
		WHERE portfolio_id = $1 AND version = $2
	`
	tag, err := tx.Exec(ctx, query,
		next.PortfolioID, expected, next.CashAvailable, next.TotalPortfolioValue, next.RealizedPL,
		next.OpenPositionCount, sectors, symbols, next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update capital: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	found, err := exists(ctx, tx, `SELECT 1 FROM capital_state WHERE portfolio_id = $1`, next.PortfolioID)
	if err != nil {
		return fmt.Errorf("check capital: %w", err)
	}
	if found {
		return repository.ErrVersionConflict
	}
	return repository.ErrNotFound
}

const tradeColumns = `id, portfolio_id, COALESCE(signal_id, ''), symbol, sector, direction, quantity,
	entry_price, entry_time, status, close_price, close_time, realized_pl, close_reason,
	risk_tier, signal_confidence, sentiment_score`

func (l *Ledger) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	t, err := scanTrade(l.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return t, nil
}

func (l *Ledger) ListOpen(ctx context.Context, portfolioID string) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE portfolio_id = $1 AND status = $2
		ORDER BY entry_time ASC, id ASC`
	return l.list(ctx, "list open trades", query, portfolioID, string(models.TradeOpen))
}

func (l *Ledger) ListClosed(ctx context.Context, portfolioID string, from, to time.Time) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE portfolio_id = $1 AND status = $2
		  AND ($3::timestamptz IS NULL OR close_time >= $3)
		  AND ($4::timestamptz IS NULL OR close_time < $4)
		ORDER BY close_time ASC, id ASC`
	return l.list(ctx, "list closed trades", query, portfolioID, string(models.TradeClosed), nullTime(from), nullTime(to))
}

func (l *Ledger) list(ctx context.Context, op, query string, args ...any) ([]*models.Trade, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return out, nil
}

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var (
		t                               models.Trade
		direction, status, reason, tier string
		closePrice, realizedPL          decimal.NullDecimal
	)
	err := row.Scan(
		&t.ID, &t.PortfolioID, &t.SignalID, &t.Symbol, &t.Sector, &direction, &t.Quantity,
		&t.EntryPrice, &t.EntryTime, &status, &closePrice, &t.CloseTime, &realizedPL, &reason,
		&tier, &t.SignalConfidence, &t.SentimentScore,
	)
	if err != nil {
		return nil, err
	}
	t.Direction = models.Action(direction)
	t.Status = models.TradeStatus(status)
	t.CloseReason = models.CloseReason(reason)
	t.RiskTier = models.RiskTier(tier)
	if closePrice.Valid {
		t.ClosePrice = &closePrice.Decimal
	}
	if realizedPL.Valid {
		t.RealizedPL = &realizedPL.Decimal
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func encodeExposure(c *models.CapitalState) ([]byte, []byte, error) {
	sectors := c.SectorAllocation
	if sectors == nil {
		sectors = map[string]decimal.Decimal{}
	}
	symbols := c.SymbolExposure
	if symbols == nil {
		symbols = map[string]decimal.Decimal{}
	}
	sb, err := json.Marshal(sectors)
	if err != nil {
		return nil, nil, fmt.Errorf("encode sector allocation: %w", err)
	}
	yb, err := json.Marshal(symbols)
	if err != nil {
		return nil, nil, fmt.Errorf("encode symbol exposure: %w", err)
	}
	return sb, yb, nil
}
