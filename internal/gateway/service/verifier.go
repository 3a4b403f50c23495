package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/revoke"
	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

var (
	// ErrTokenMalformed covers tokens that fail to parse or whose signature
	// does not verify.
	ErrTokenMalformed = errors.New("token_malformed")

	// ErrTokenExpired covers structurally valid tokens past their expiry.
	ErrTokenExpired = errors.New("token_expired")

	// ErrTokenRevoked covers valid, unexpired tokens on the revocation list.
	ErrTokenRevoked = errors.New("token_revoked")
)

// VerifierService validates signed access tokens. Checks run cheapest-first:
// parse and signature, then expiry, then the revocation lookup. A token that
// fails an earlier check never reaches the revocation store.
type VerifierService struct {
	Verifier jwtx.Verifier
	Revoked  *revoke.Store
}

// Verify validates a raw token string and returns the principal it carries.
// The returned error is one of the sentinel errors above; callers decide how
// much of that detail leaks to the client (the HTTP layer leaks none).
func (s *VerifierService) Verify(ctx context.Context, raw string) (domain.Principal, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Verifier.Verify(raw)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			return domain.Principal{}, ErrTokenExpired
		default:
			l.Debug("token verification failed", slog.String("reason", err.Error()))
			return domain.Principal{}, ErrTokenMalformed
		}
	}

	if s.Revoked.IsRevoked(ctx, claims.ID) {
		l.Info("revoked token presented", slog.String("sub", claims.Subject))
		return domain.Principal{}, ErrTokenRevoked
	}

	return domain.Principal{
		SubjectID: claims.Subject,
		Mode:      domain.AuthModeToken,
		Scopes:    claims.Scopes,
	}, nil
}

// Revoke puts a token on the revocation list. Revocation is idempotent and
// deliberately quiet: a token that is malformed or signed by an unknown key
// is simply not recorded, and no error says which. Reporting a difference
// would let a caller probe token validity through this endpoint.
//
// An expired token with a valid signature is still recorded. The revocation
// store applies a short floor TTL so the entry covers verifiers whose clocks
// have not caught up to the expiry yet.
func (s *VerifierService) Revoke(ctx context.Context, raw string) {
	claims, err := s.Verifier.Verify(raw)
	if err != nil && !errors.Is(err, jwtx.ErrExpired) {
		slogx.FromContext(ctx).Debug("revocation request for unusable token ignored")
		return
	}

	s.Revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	slogx.FromContext(ctx).Info("token revoked",
		slog.String("sub", claims.Subject),
		slog.Time("expires_at", claims.ExpiresAt.Time),
	)
}
