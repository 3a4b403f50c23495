package domain

import (
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

// UsageSource records where a ledger entry's unit count came from.
type UsageSource string

const (
	// UsageSourceUpstream means the upstream provider reported exact usage.
	UsageSourceUpstream UsageSource = "upstream"
	// UsageSourceEstimated means usage was estimated from relayed bytes
	// because the upstream response carried no usage block.
	UsageSourceEstimated UsageSource = "estimated"
)

// LedgerEntry is one append-only usage record. Entries are never updated or
// deleted; the ledger is the audit trail for every debit.
type LedgerEntry struct {
	ID idx.ID

	// SubjectID is the principal whose balance was debited.
	SubjectID string

	// Units is the number of usage units (tokens) consumed.
	Units int64

	// Cost is the number of credits debited for those units.
	Cost int64

	// BalanceAfter is the subject's balance immediately after this entry's
	// debit. Each entry's BalanceAfter plus its Cost equals the balance before
	// it, so the ledger reconstructs the full balance history.
	BalanceAfter int64

	Source UsageSource

	// RequestID ties the entry back to the request that produced it.
	RequestID string

	OccurredAt time.Time
}

// Balance is a principal's spendable credit balance.
type Balance struct {
	SubjectID string
	Credits   int64
	UpdatedAt time.Time
}
