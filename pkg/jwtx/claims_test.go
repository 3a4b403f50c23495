package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaimsSetsRegisteredFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	c := jwtx.NewAccessClaims("sub-1", []string{"llm:chat", "tools:read"}, 30*time.Minute, "chatgate", now)

	require.Equal(t, "chatgate", c.Issuer)
	require.Equal(t, "sub-1", c.Subject)
	require.Equal(t, now.Add(30*time.Minute), c.ExpiresAt.Time)
	require.Equal(t, now, c.IssuedAt.Time)
	require.NotEmpty(t, c.ID)
}

func TestNewJTIIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 100 {
		jti := jwtx.NewJTI()
		_, dup := seen[jti]
		require.False(t, dup, "jti collision")
		seen[jti] = struct{}{}
	}
}

func TestValidateExpiryLeeway(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	c := jwtx.NewAccessClaims("sub", nil, -10*time.Second, "iss", now)

	require.ErrorIs(t, c.ValidateExpiry(0), jwtx.ErrExpired)
	require.NoError(t, c.ValidateExpiry(time.Minute), "leeway should forgive small skews")
}

func TestValidateIssuer(t *testing.T) {
	t.Parallel()

	c := jwtx.NewAccessClaims("sub", nil, time.Minute, "chatgate", time.Now())
	require.NoError(t, c.ValidateIssuer("chatgate"))
	require.NoError(t, c.ValidateIssuer(""), "empty expected issuer enforces nothing")
	require.ErrorIs(t, c.ValidateIssuer("other"), jwtx.ErrIssuer)
}
