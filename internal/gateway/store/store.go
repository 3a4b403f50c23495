package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns tidy
// and testable, and to stop callers from accidentally opening transactions
// within transactions.
type Store interface {
	DeviceGrants() DeviceGrants
	Sessions() Sessions
	Balances() Balances
	Ledger() Ledger

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type DeviceGrants interface {
	// CreateDeviceGrant inserts a fresh grant. Returns ErrAlreadyExists when
	// the user code collides with a live grant, so the caller can regenerate.
	CreateDeviceGrant(ctx context.Context, g domain.DeviceGrant) error

	// GetDeviceGrantByDeviceCodeFP fetches a grant by the fingerprint of its
	// device code (polling path).
	GetDeviceGrantByDeviceCodeFP(ctx context.Context, fp string) (domain.DeviceGrant, error)

	// GetDeviceGrantByUserCode fetches a grant by its user code (approval path).
	GetDeviceGrantByUserCode(ctx context.Context, userCode string) (domain.DeviceGrant, error)

	// ResolveDeviceGrant conditionally moves a pending, unexpired grant to
	// the given terminal decision (authorized or denied), recording who
	// decided. Returns false when the grant was not pending anymore, so a
	// second decision never overwrites the first.
	ResolveDeviceGrant(ctx context.Context, userCode string, status domain.GrantStatus, subjectID string, now time.Time) (bool, error)

	// ConsumeDeviceGrant conditionally moves an authorized, unexpired grant
	// to consumed. Returns false when the grant was already consumed or not
	// authorized, which is what makes token minting exactly-once.
	ConsumeDeviceGrant(ctx context.Context, deviceCodeFP string, now time.Time) (bool, error)

	// DeleteExpiredDeviceGrants removes grants past their expiry (housekeeping).
	DeleteExpiredDeviceGrants(ctx context.Context, now time.Time) (int64, error)
}

type Sessions interface {
	// CreateSession stores a new browser session record.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenFP returns an unexpired session by the fingerprint of
	// its opaque token.
	GetSessionByTokenFP(ctx context.Context, fp string, now time.Time) (domain.Session, error)

	// DeleteSession removes a session (logout).
	DeleteSession(ctx context.Context, fp string) error

	// DeleteExpiredSessions removes sessions past their expiry (housekeeping).
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Balances interface {
	// GetBalance returns the principal's balance record.
	GetBalance(ctx context.Context, subjectID string) (domain.Balance, error)

	// CreditBalance adds credits to a principal, creating the record if
	// missing.
	CreditBalance(ctx context.Context, subjectID string, credits int64, now time.Time) error

	// DebitBalance atomically subtracts cost from the principal's balance
	// and returns the remaining credits. Settlement debits may drive the
	// balance negative; that is intentional, the pre-flight check is what
	// gates new work.
	DebitBalance(ctx context.Context, subjectID string, cost int64, now time.Time) (int64, error)
}

type Ledger interface {
	// AppendLedgerEntry writes one usage record. The ledger is append-only;
	// there are no update or delete operations.
	AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error

	// ListLedgerEntries returns the principal's most recent entries, newest
	// first.
	ListLedgerEntries(ctx context.Context, subjectID string, limit int) ([]domain.LedgerEntry, error)
}
