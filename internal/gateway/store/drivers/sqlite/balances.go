package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
)

type balancesRepo struct {
	db dbtx
}

func (r *balancesRepo) GetBalance(ctx context.Context, subjectID string) (domain.Balance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT subject_id, credits, updated_at
		FROM balances
		WHERE subject_id = ?`, subjectID)

	var (
		b         domain.Balance
		updatedAt int64
	)
	if err := row.Scan(&b.SubjectID, &b.Credits, &updatedAt); err != nil {
		return domain.Balance{}, mapNotFound(err)
	}
	b.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return b, nil
}

func (r *balancesRepo) CreditBalance(ctx context.Context, subjectID string, credits int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (subject_id, credits, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE
		SET credits = credits + excluded.credits, updated_at = excluded.updated_at`,
		subjectID, credits, now.UnixMilli(),
	)
	return err
}

// DebitBalance runs a single UPDATE..RETURNING so concurrent settlements
// never race a read-modify-write. The row is created lazily at zero so a
// first-ever debit still lands on the ledger.
func (r *balancesRepo) DebitBalance(ctx context.Context, subjectID string, cost int64, now time.Time) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO balances (subject_id, credits, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE
		SET credits = credits - ?, updated_at = ?
		RETURNING credits`,
		subjectID, -cost, now.UnixMilli(), cost, now.UnixMilli(),
	)

	var remaining int64
	if err := row.Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}
