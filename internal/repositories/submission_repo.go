package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koinlend/backend/internal/models"
)

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func (r *SubmissionRepo) Create(ctx context.Context, s *models.Submission) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO submissions (operation_id, kind, leg, owner, tx_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, s.OperationID, s.Kind, s.Leg, s.Owner, s.TxHash, s.Status).Scan(&s.ID, &s.CreatedAt)
}

func (r *SubmissionRepo) MarkOutcome(ctx context.Context, txHash, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE submissions SET status = $1, reconciled_at = now()
		WHERE tx_hash = $2 AND status = 'pending'
	`, status, txHash)
	return err
}

// ListPending returns submissions still awaiting an outcome that were
// created more than minAge ago. The worker re-polls these: the caller may
// have navigated away while the transaction was in flight.
func (r *SubmissionRepo) ListPending(ctx context.Context, minAge time.Duration, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, operation_id, kind, leg, owner, tx_hash, status, created_at, reconciled_at
		FROM submissions
		WHERE status = 'pending' AND created_at < now() - $1::interval
		ORDER BY created_at ASC LIMIT $2
	`, minAge.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.OperationID, &s.Kind, &s.Leg, &s.Owner, &s.TxHash, &s.Status, &s.CreatedAt, &s.ReconciledAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}
