package jwtx

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAVerifier validates EdDSA-signed tokens against a set of public keys
// keyed by kid. Safe for concurrent use; keys can be added at runtime for
// rotation.
type EdDSAVerifier struct {
	mu     sync.RWMutex
	keys   map[string]ed25519.PublicKey
	issuer string
	leeway time.Duration
}

// NewVerifierEdDSA creates a verifier that enforces the given issuer and
// allows a small clock-skew leeway on exp/nbf. Because time sync is never
// perfect.
func NewVerifierEdDSA(issuer string, leeway time.Duration) *EdDSAVerifier {
	return &EdDSAVerifier{
		keys:   make(map[string]ed25519.PublicKey),
		issuer: issuer,
		leeway: leeway,
	}
}

// AddKey registers a verification key under its kid.
func (v *EdDSAVerifier) AddKey(kid string, pub ed25519.PublicKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[kid] = pub
}

// AddSigner registers a signer's public key so tokens it mints verify locally.
func (v *EdDSAVerifier) AddSigner(s *Signer) {
	v.AddKey(s.KID(), s.PublicKey())
}

// IsReady reports whether at least one verification key is loaded.
func (v *EdDSAVerifier) IsReady() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys) > 0
}

// Verify parses and validates the token: structure, signature, then issuer
// and expiry. Claim validation is done by hand so callers get distinct error
// kinds instead of the library's folded-up validation error.
func (v *EdDSAVerifier) Verify(raw string) (Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, v.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKID), errors.Is(err, ErrAlgMismatch):
			return Claims{}, err
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		default:
			return Claims{}, ErrMalformed
		}
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(v.leeway); err != nil {
		// Expiry failures hand back the parsed claims alongside the error.
		// The signature checked out, and revocation wants the jti even when
		// the token is past its lifetime.
		return claims, err
	}

	return claims, nil
}

func (v *EdDSAVerifier) keyFor(token *jwt.Token) (any, error) {
	if token.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
		return nil, ErrAlgMismatch
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, ErrUnknownKID
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	pub, ok := v.keys[kid]
	if !ok {
		return nil, ErrUnknownKID
	}
	return pub, nil
}
