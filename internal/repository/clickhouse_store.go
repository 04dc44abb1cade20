package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	pkgch "PaperDesk/pkg/clickhouse"
	applogger "PaperDesk/pkg/logger"
)

// ClickHouseSchema returns the idempotent DDL for the analytical tables.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sentiment_records (
			id            String,
			symbol        LowCardinality(String),
			overall_score Float64,
			confidence    Float64,
			article_count Int64,
			positive      Int64,
			negative      Int64,
			neutral       Int64,
			as_of         DateTime64(3, 'UTC'),
			created_at    DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, created_at, id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rt_ticks (
			ts     DateTime64(3, 'UTC'),
			symbol LowCardinality(String),
			price  Float64,
			volume Float64,
			source LowCardinality(String)
		) ENGINE = MergeTree
		ORDER BY (symbol, ts)
		TTL toDateTime(ts) + INTERVAL 30 DAY`, database),
	}
}

// CHSentimentStore keeps the sentiment history in an append-only MergeTree.
// Re-inserting an ID is tolerated and collapsed by the engine.
type CHSentimentStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSentimentStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHSentimentStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHSentimentStore{db: ch.DB(), table: database + ".sentiment_records", l: l}
}

var _ domrepo.SentimentStore = (*CHSentimentStore)(nil)

const chSentimentColumns = "id, symbol, overall_score, confidence, article_count, positive, negative, neutral, as_of, created_at"

func (s *CHSentimentStore) Insert(ctx context.Context, r *models.SentimentRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, chSentimentColumns)
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.Symbol, r.OverallScore, r.Confidence,
		int64(r.ArticleCount), int64(r.Positive), int64(r.Negative), int64(r.Neutral),
		r.AsOf.UTC(), r.CreatedAt.UTC(),
	)
	if err != nil {
		s.l.Error("clickhouse insert sentiment failed",
			applogger.String("symbol", r.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("insert sentiment: %w", err)
	}
	return nil
}

func (s *CHSentimentStore) Latest(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? ORDER BY created_at DESC LIMIT 1", chSentimentColumns, s.table)
	return s.one(ctx, q, symbol)
}

func (s *CHSentimentStore) AsOf(ctx context.Context, symbol string, t time.Time) (*models.SentimentRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND created_at <= ? ORDER BY created_at DESC LIMIT 1", chSentimentColumns, s.table)
	return s.one(ctx, q, symbol, t.UTC())
}

// History returns records created in [from, to], newest first. Zero bounds are open-ended.
func (s *CHSentimentStore) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.SentimentRecord, error) {
	start := time.Now()
	where := []string{"symbol = ?"}
	args := []interface{}{symbol}
	if !from.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, to.UTC())
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at DESC", chSentimentColumns, s.table, strings.Join(where, " AND "))
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse sentiment history query error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("sentiment history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SentimentRecord, 0)
	for rows.Next() {
		r, err := scanCHSentiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentiment: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse sentiment history ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSentimentStore) one(ctx context.Context, q string, args ...interface{}) (*models.SentimentRecord, error) {
	r, err := scanCHSentiment(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query sentiment: %w", err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCHSentiment(row rowScanner) (*models.SentimentRecord, error) {
	var (
		r                        models.SentimentRecord
		count, pos, neg, neutral int64
	)
	if err := row.Scan(&r.ID, &r.Symbol, &r.OverallScore, &r.Confidence, &count, &pos, &neg, &neutral, &r.AsOf, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ArticleCount, r.Positive, r.Negative, r.Neutral = int(count), int(pos), int(neg), int(neutral)
	return &r, nil
}

// CHTickArchive appends last-trade prints to rt_ticks.
type CHTickArchive struct {
	db    *sql.DB
	table string
}

func NewCHTickArchive(ch *pkgch.Client, database string) *CHTickArchive {
	return &CHTickArchive{db: ch.DB(), table: database + ".rt_ticks"}
}

var _ domrepo.TickSink = (*CHTickArchive)(nil)

// StoreBatch inserts ticks with multi-row VALUES, 2000 rows per statement.
func (s *CHTickArchive) StoreBatch(ctx context.Context, ticks []models.Tick) error {
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, t := range ticks[start:end] {
			if t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, t.Timestamp.UTC(), t.Symbol, t.Price, t.Volume, "finnhub")
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}
