package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/pkg/cryptox"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// ErrUnauthorized is the single error every failed resolution collapses to.
// The specific reason (unknown secret, bad signature, expired token, revoked
// token, dead session) is logged server-side and never returned.
var ErrUnauthorized = errors.New("unauthorized")

// StaticSecret is one operator-configured pre-shared credential. Value holds
// either the plaintext secret or an argon2id hash of it (PHC string form);
// hashed entries survive a config leak.
type StaticSecret struct {
	Name   string
	Value  string
	Hashed bool
	Scopes []string
}

// matches reports whether candidate is this secret, in constant time for
// the plaintext case.
func (s StaticSecret) matches(candidate string) bool {
	if s.Hashed {
		return cryptox.VerifySecret(candidate, s.Value) == nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.Value)) == 1
}

// ResolverService turns request credentials into a Principal. Credential
// sources are tried in a fixed order and the first source that applies is
// final:
//
//  1. a bearer value matching a static secret
//  2. a bearer value verified as a signed access token
//  3. a session cookie, only when no bearer value was presented at all
//
// A bearer value that matches nothing fails the request outright. It never
// falls through to the session cookie; a caller who presented a credential
// gets judged on that credential.
type ResolverService struct {
	Secrets  []StaticSecret
	Verifier *VerifierService
	Sessions *SessionService
}

// Resolve authenticates a request from its bearer value (the Authorization
// header with the "Bearer " prefix stripped) and session cookie value.
// Either may be empty. On any failure it returns ErrUnauthorized and nothing
// else.
func (s *ResolverService) Resolve(ctx context.Context, bearer, sessionToken string) (domain.Principal, error) {
	l := slogx.FromContext(ctx)
	bearer = strings.TrimSpace(bearer)

	if bearer != "" {
		for _, secret := range s.Secrets {
			if secret.matches(bearer) {
				return scoped(ctx, domain.Principal{
					SubjectID: secret.Name,
					Mode:      domain.AuthModeStatic,
					Scopes:    secret.Scopes,
				})
			}
		}

		p, err := s.Verifier.Verify(ctx, bearer)
		if err != nil {
			l.Info("bearer credential rejected", slog.String("reason", err.Error()))
			return domain.Principal{}, ErrUnauthorized
		}
		return scoped(ctx, p)
	}

	if sessionToken != "" {
		p, err := s.Sessions.ResolveToken(ctx, sessionToken)
		if err != nil {
			l.Info("session cookie rejected")
			return domain.Principal{}, ErrUnauthorized
		}
		return scoped(ctx, p)
	}

	return domain.Principal{}, ErrUnauthorized
}

// scoped rejects principals that resolved to no scopes at all. A credential
// that authorizes nothing is treated the same as no credential.
func scoped(ctx context.Context, p domain.Principal) (domain.Principal, error) {
	if len(p.Scopes) == 0 {
		slogx.FromContext(ctx).Info("credential resolved to empty scopes",
			slog.String("sub", p.SubjectID))
		return domain.Principal{}, ErrUnauthorized
	}
	return p, nil
}
