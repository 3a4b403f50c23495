package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
)

// AccountService serves the read-only account surface: balances and the
// usage ledger.
type AccountService struct {
	Store store.Store
}

// Balance returns the subject's balance. Subjects with no balance row read
// as zero credits rather than not found.
func (s *AccountService) Balance(ctx context.Context, subjectID string) (domain.Balance, error) {
	balance, err := s.Store.Balances().GetBalance(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Balance{SubjectID: subjectID}, nil
		}
		return domain.Balance{}, err
	}
	return balance, nil
}

// Credit adds credits to a subject. Operator top-up path.
func (s *AccountService) Credit(ctx context.Context, subjectID string, credits int64) error {
	return s.Store.Balances().CreditBalance(ctx, subjectID, credits, nowUTC())
}

// Usage returns the subject's most recent ledger entries, newest first.
func (s *AccountService) Usage(ctx context.Context, subjectID string, limit int) ([]domain.LedgerEntry, error) {
	return s.Store.Ledger().ListLedgerEntries(ctx, subjectID, limit)
}
