package domain

import (
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

// Session is a browser session used by the device-grant approval UI. The
// session token itself is never stored, only its fingerprint.
type Session struct {
	ID idx.ID

	// TokenFP is the fingerprint of the opaque session token held in the
	// browser cookie.
	TokenFP string

	// SubjectID is the user this session belongs to.
	SubjectID string

	// Scopes are the permissions the session carries.
	Scopes []string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's lifetime has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
