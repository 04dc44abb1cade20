package postgres

import (
	"context"
	"fmt"
	"time"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/jackc/pgx/v5"
)

// SentimentStore implements repository.SentimentStore using PostgreSQL.
type SentimentStore struct {
	pool *Pool
}

func NewSentimentStore(pool *Pool) *SentimentStore {
	return &SentimentStore{pool: pool}
}

var _ repository.SentimentStore = (*SentimentStore)(nil)

const sentimentColumns = `id, symbol, overall_score, confidence, article_count, positive, negative, neutral, as_of, created_at`

func (s *SentimentStore) Insert(ctx context.Context, r *models.SentimentRecord) error {
	query := `INSERT INTO sentiment_records (` + sentimentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Symbol, r.OverallScore, r.Confidence, r.ArticleCount,
		r.Positive, r.Negative, r.Neutral, r.AsOf, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("insert sentiment record: %w", err)
	}
	return nil
}

func (s *SentimentStore) Latest(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	query := `SELECT ` + sentimentColumns + ` FROM sentiment_records
		WHERE symbol = $1 ORDER BY created_at DESC LIMIT 1`
	return s.one(ctx, "latest sentiment", query, symbol)
}

func (s *SentimentStore) AsOf(ctx context.Context, symbol string, t time.Time) (*models.SentimentRecord, error) {
	query := `SELECT ` + sentimentColumns + ` FROM sentiment_records
		WHERE symbol = $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT 1`
	return s.one(ctx, "sentiment as of", query, symbol, t)
}

// History returns records created in [from, to], newest first. Zero bounds are open-ended.
func (s *SentimentStore) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.SentimentRecord, error) {
	query := `SELECT ` + sentimentColumns + ` FROM sentiment_records
		WHERE symbol = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at DESC
		LIMIT NULLIF($4, 0)`

	rows, err := s.pool.Query(ctx, query, symbol, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, fmt.Errorf("sentiment history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SentimentRecord, 0)
	for rows.Next() {
		r, err := scanSentiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentiment row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sentiment rows: %w", err)
	}
	return out, nil
}

func (s *SentimentStore) one(ctx context.Context, op, query string, args ...any) (*models.SentimentRecord, error) {
	r, err := scanSentiment(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func scanSentiment(row pgx.Row) (*models.SentimentRecord, error) {
	var r models.SentimentRecord
	err := row.Scan(
		&r.ID, &r.Symbol, &r.OverallScore, &r.Confidence, &r.ArticleCount,
		&r.Positive, &r.Negative, &r.Neutral, &r.AsOf, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
