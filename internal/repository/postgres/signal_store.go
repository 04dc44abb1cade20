package postgres

import (
	"context"
	"fmt"

	"PaperDesk/internal/domain/models"
	"PaperDesk/internal/domain/repository"

	"github.com/jackc/pgx/v5"
)

// SignalStore implements repository.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

var _ repository.SignalStore = (*SignalStore)(nil)

func (s *SignalStore) Insert(ctx context.Context, sig *models.Signal) error {
	query := `
		INSERT INTO signals (
			id, symbol, sector, action, confidence, sentiment_score, sentiment_confidence,
			risk_tier, target_quantity, estimated_price, reasoning, params_version,
			status, reject_reason, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Symbol, sig.Sector, string(sig.Action), sig.Confidence, sig.SentimentScore,
		sig.SentimentConfidence, string(sig.RiskTier), sig.TargetQuantity, sig.EstimatedPrice,
		sig.Reasoning, sig.ParamsVersion, string(sig.Status), string(sig.RejectReason),
		sig.CreatedAt, sig.ExpiresAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (s *SignalStore) Get(ctx context.Context, id string) (*models.Signal, error) {
	query := `
		SELECT id, symbol, sector, action, confidence, sentiment_score, sentiment_confidence,
			risk_tier, target_quantity, estimated_price, reasoning, params_version,
			status, reject_reason, created_at, expires_at
		FROM signals WHERE id = $1
	`
	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return sig, nil
}

func (s *SignalStore) MarkRejected(ctx context.Context, id string, reason models.RejectReason) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET status = $2, reject_reason = $3 WHERE id = $1 AND status = $4`,
		id, string(models.SignalRejected), string(reason), string(models.SignalPending),
	)
	if err != nil {
		return fmt.Errorf("reject signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// acceptSignal flips a pending signal to ACCEPTED inside tx.
func acceptSignal(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE signals SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(models.SignalAccepted), string(models.SignalPending),
	)
	if err != nil {
		return fmt.Errorf("accept signal: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	found, err := exists(ctx, tx, `SELECT 1 FROM signals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("check signal: %w", err)
	}
	if found {
		return repository.ErrStateConflict
	}
	return repository.ErrNotFound
}

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var (
		sig                                models.Signal
		action, tier, status, rejectReason string
	)
	err := row.Scan(
		&sig.ID, &sig.Symbol, &sig.Sector, &action, &sig.Confidence, &sig.SentimentScore,
		&sig.SentimentConfidence, &tier, &sig.TargetQuantity, &sig.EstimatedPrice,
		&sig.Reasoning, &sig.ParamsVersion, &status, &rejectReason,
		&sig.CreatedAt, &sig.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	sig.Action = models.Action(action)
	sig.RiskTier = models.RiskTier(tier)
	sig.Status = models.SignalStatus(status)
	sig.RejectReason = models.RejectReason(rejectReason)
	return &sig, nil
}
