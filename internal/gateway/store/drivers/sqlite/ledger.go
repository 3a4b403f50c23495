package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

type ledgerRepo struct {
	db dbtx
}

func (r *ledgerRepo) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_ledger (id, subject_id, units, cost, balance_after, source, request_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.SubjectID, e.Units, e.Cost, e.BalanceAfter,
		string(e.Source), e.RequestID, e.OccurredAt.UnixMilli(),
	)
	return err
}

func (r *ledgerRepo) ListLedgerEntries(ctx context.Context, subjectID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject_id, units, cost, balance_after, source, request_id, occurred_at
		FROM usage_ledger
		WHERE subject_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e          domain.LedgerEntry
			id         string
			source     string
			occurredAt int64
		)
		if err := rows.Scan(&id, &e.SubjectID, &e.Units, &e.Cost, &e.BalanceAfter, &source, &e.RequestID, &occurredAt); err != nil {
			return nil, err
		}
		e.ID, err = idx.Parse(id)
		if err != nil {
			return nil, err
		}
		e.Source = domain.UsageSource(source)
		e.OccurredAt = time.UnixMilli(occurredAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
