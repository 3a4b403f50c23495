// Package revoke implements the token revocation list the verifier consults
// on every request. Lookups are served from an in-process tier so they cost a
// mutex and a map hit; an optional shared tier (redis) propagates revocations
// to other gateway instances on a best-effort basis.
package revoke

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SharedTier is a networked revocation backend shared between gateway
// instances. Implementations must treat entries as expiring; the store always
// passes a TTL.
type SharedTier interface {
	// Set marks jti revoked for ttl.
	Set(ctx context.Context, jti string, ttl time.Duration) error

	// Exists reports whether jti is marked revoked.
	Exists(ctx context.Context, jti string) (bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// sharedTimeout bounds how long a revocation lookup may wait on the shared
// tier. Lookups sit on the hot path of every authenticated request, so the
// budget is tight and a miss fails open.
const sharedTimeout = 50 * time.Millisecond

// Store is the two-tier revocation list. The local tier answers immediately
// and is authoritative for revocations made through this instance; the shared
// tier is consulted only when the local tier misses, and any shared-tier
// error is treated as "not revoked".
type Store struct {
	mu    sync.RWMutex
	local map[string]int64 // jti -> expiry, unix ms

	shared SharedTier // nil when running single-instance
	now    func() time.Time
	log    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSharedTier attaches a shared revocation backend.
func WithSharedTier(tier SharedTier) Option {
	return func(s *Store) { s.shared = tier }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a revocation store.
func NewStore(log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		local: make(map[string]int64),
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke marks the token id revoked until expiresAt. The local tier is
// updated synchronously so the revocation is visible to this instance before
// Revoke returns; the shared tier write happens in the background and its
// failure only logs.
//
// A token already past expiry still gets an entry at the one-second TTL
// floor. Clock skew between verifiers means expired here is not expired
// everywhere, so the entry is recorded rather than dropped.
func (s *Store) Revoke(jti string, expiresAt time.Time) {
	now := s.now()
	ttl := sharedTTL(now, expiresAt)

	s.mu.Lock()
	s.local[jti] = now.Add(ttl).UnixMilli()
	s.mu.Unlock()

	if s.shared == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.shared.Set(ctx, jti, ttl); err != nil {
			s.log.Warn("revocation shared-tier write failed",
				"jti", jti,
				"error", err,
			)
		}
	}()
}

// IsRevoked reports whether the token id is on the revocation list. The
// local tier answers first; on a miss the shared tier is asked with a short
// deadline, and any error there fails open.
func (s *Store) IsRevoked(ctx context.Context, jti string) bool {
	s.mu.RLock()
	exp, ok := s.local[jti]
	s.mu.RUnlock()

	now := s.now()
	if ok && exp > now.UnixMilli() {
		return true
	}

	if s.shared == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, sharedTimeout)
	defer cancel()

	revoked, err := s.shared.Exists(ctx, jti)
	if err != nil {
		s.log.Warn("revocation shared-tier lookup failed, failing open",
			"error", err,
		)
		return false
	}
	if revoked {
		// Backfill the local tier so the next lookup for this jti stays
		// in-process. Expiry is unknown here; the shared TTL will have
		// pruned the entry remotely, and Sweep prunes it locally.
		s.mu.Lock()
		s.local[jti] = now.Add(time.Hour).UnixMilli()
		s.mu.Unlock()
	}
	return revoked
}

// Sweep drops local entries whose tokens have expired and returns how many
// were removed. Expired entries are harmless for correctness (expiry is
// checked before revocation) but waste memory.
func (s *Store) Sweep() int {
	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jti, exp := range s.local {
		if exp <= nowMs {
			delete(s.local, jti)
			removed++
		}
	}
	return removed
}

// Len returns the size of the local tier. Used by housekeeping logs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.local)
}

// Ready reports whether the shared tier is reachable. A store without a
// shared tier is always ready.
func (s *Store) Ready(ctx context.Context) error {
	if s.shared == nil {
		return nil
	}
	return s.shared.Ping(ctx)
}

// sharedTTL converts a token expiry into a shared-tier TTL, rounding up so
// the shared entry never dies before the token does. Minimum one second
// because a zero TTL means "no expiry" to redis.
func sharedTTL(now, expiresAt time.Time) time.Duration {
	ms := expiresAt.UnixMilli() - now.UnixMilli()
	secs := (ms + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
