package revoke

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTier struct {
	setCalls chan setCall
	exists   bool
	err      error
}

type setCall struct {
	jti string
	ttl time.Duration
}

func newFakeTier() *fakeTier {
	return &fakeTier{setCalls: make(chan setCall, 8)}
}

func (f *fakeTier) Set(ctx context.Context, jti string, ttl time.Duration) error {
	f.setCalls <- setCall{jti: jti, ttl: ttl}
	return f.err
}

func (f *fakeTier) Exists(ctx context.Context, jti string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeTier) Ping(ctx context.Context) error { return f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRevokeVisibleImmediately(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(testLogger(), WithClock(func() time.Time { return now }))

	s.Revoke("jti-1", now.Add(time.Hour))
	require.True(t, s.IsRevoked(context.Background(), "jti-1"))
	require.False(t, s.IsRevoked(context.Background(), "jti-2"))
}

func TestRevokeExpiredTokenGetsFloorEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	tier := newFakeTier()
	s := NewStore(testLogger(),
		WithClock(func() time.Time { return now }),
		WithSharedTier(tier),
	)

	// Expiry is already in the past, but the revocation still lands with the
	// one-second floor instead of being dropped.
	s.Revoke("jti-old", now.Add(-time.Minute))
	require.True(t, s.IsRevoked(context.Background(), "jti-old"))
	require.Equal(t, 1, s.Len())

	select {
	case call := <-tier.setCalls:
		require.Equal(t, "jti-old", call.jti)
		require.Equal(t, time.Second, call.ttl)
	case <-time.After(time.Second):
		t.Fatal("shared tier write never happened")
	}

	// Once the floor lapses the entry sweeps away like any other.
	now = now.Add(2 * time.Second)
	require.Equal(t, 1, s.Sweep())
	require.False(t, s.IsRevoked(context.Background(), "jti-old"))
}

func TestSharedTierWriteCarriesRoundedUpTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	tier := newFakeTier()
	s := NewStore(testLogger(),
		WithClock(func() time.Time { return now }),
		WithSharedTier(tier),
	)

	// 1500ms of remaining lifetime rounds up to a 2s TTL.
	s.Revoke("jti-1", now.Add(1500*time.Millisecond))

	select {
	case call := <-tier.setCalls:
		require.Equal(t, "jti-1", call.jti)
		require.Equal(t, 2*time.Second, call.ttl)
	case <-time.After(time.Second):
		t.Fatal("shared tier write never happened")
	}
}

func TestSharedTierTTLHasOneSecondFloor(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	tier := newFakeTier()
	s := NewStore(testLogger(),
		WithClock(func() time.Time { return now }),
		WithSharedTier(tier),
	)

	s.Revoke("jti-1", now.Add(200*time.Millisecond))

	select {
	case call := <-tier.setCalls:
		require.Equal(t, time.Second, call.ttl)
	case <-time.After(time.Second):
		t.Fatal("shared tier write never happened")
	}
}

func TestLookupFailsOpenOnSharedTierError(t *testing.T) {
	t.Parallel()

	tier := newFakeTier()
	tier.err = errors.New("connection refused")
	s := NewStore(testLogger(), WithSharedTier(tier))

	require.False(t, s.IsRevoked(context.Background(), "jti-1"))
}

func TestSharedTierHitBackfillsLocal(t *testing.T) {
	t.Parallel()

	tier := newFakeTier()
	tier.exists = true
	s := NewStore(testLogger(), WithSharedTier(tier))

	require.True(t, s.IsRevoked(context.Background(), "jti-remote"))
	require.Equal(t, 1, s.Len())
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(testLogger(), WithClock(func() time.Time { return now }))

	s.Revoke("jti-short", now.Add(time.Minute))
	s.Revoke("jti-long", now.Add(time.Hour))

	now = now.Add(30 * time.Minute)
	require.Equal(t, 1, s.Sweep())
	require.Equal(t, 1, s.Len())
	require.True(t, s.IsRevoked(context.Background(), "jti-long"))
	require.False(t, s.IsRevoked(context.Background(), "jti-short"))
}
