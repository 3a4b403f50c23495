package domain

import "slices"

// Scopes the gateway understands.
const (
	// ScopeChat permits calling the chat completion proxy.
	ScopeChat = "llm:chat"

	// ScopeUsageRead permits reading one's own balance and usage ledger.
	ScopeUsageRead = "usage:read"
)

// AuthMode identifies which credential path authenticated a request.
type AuthMode string

const (
	// AuthModeStatic means a pre-shared gateway secret matched.
	AuthModeStatic AuthMode = "static"
	// AuthModeToken means a signed access token verified.
	AuthModeToken AuthMode = "token"
	// AuthModeSession means a browser session cookie resolved.
	AuthModeSession AuthMode = "session"
)

// Principal is the authenticated identity attached to a request after
// resolution. Handlers only ever see a Principal, never the credential that
// produced it.
type Principal struct {
	// SubjectID identifies who the principal is. For static secrets this is
	// the operator-assigned name of the secret.
	SubjectID string

	// Mode records which credential path produced this principal.
	Mode AuthMode

	// Scopes are the permissions granted to this principal.
	Scopes []string
}

// HasScope reports whether the principal holds the given scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// HasAnyScope reports whether the principal holds at least one of the given
// scopes.
func (p Principal) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if p.HasScope(s) {
			return true
		}
	}
	return false
}
