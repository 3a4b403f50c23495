package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/cryptox"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

// DefaultSessionTTL is how long a browser session lives.
const DefaultSessionTTL = 24 * time.Hour

// SessionService manages the browser sessions behind the device-grant
// approval surface. Session tokens are opaque random values; only their
// fingerprints are stored.
type SessionService struct {
	Store store.Store
	TTL   time.Duration
}

func (s *SessionService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// Create mints a new session for a subject and returns the opaque token to
// place in the cookie.
func (s *SessionService) Create(ctx context.Context, subjectID string, scopes []string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	err = s.Store.Sessions().CreateSession(ctx, domain.Session{
		ID:        idx.New(),
		TokenFP:   cryptox.FingerprintToken(token),
		SubjectID: subjectID,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ResolveToken returns the principal behind an opaque session token.
func (s *SessionService) ResolveToken(ctx context.Context, token string) (domain.Principal, error) {
	sess, err := s.Store.Sessions().GetSessionByTokenFP(ctx,
		cryptox.FingerprintToken(token), time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrUnauthorized
		}
		return domain.Principal{}, err
	}

	return domain.Principal{
		SubjectID: sess.SubjectID,
		Mode:      domain.AuthModeSession,
		Scopes:    sess.Scopes,
	}, nil
}

// Destroy removes a session (logout). Unknown tokens are a no-op.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	return s.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(token))
}
