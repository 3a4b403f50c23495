package domain

import (
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

// GrantStatus is the lifecycle state of a device authorization grant.
//
// The stored status only ever moves forward:
//
//	pending -> authorized -> consumed
//	pending -> denied
//
// Expiry is not a stored status. A grant is expired whenever the wall clock
// passes ExpiresAt, regardless of its stored status, and an expired grant
// rejects every transition.
type GrantStatus string

const (
	GrantStatusPending    GrantStatus = "pending"
	GrantStatusAuthorized GrantStatus = "authorized"
	GrantStatusDenied     GrantStatus = "denied"
	GrantStatusConsumed   GrantStatus = "consumed"
)

// DeviceGrant is one device authorization request. The device code itself is
// never stored; only its fingerprint is, so a database leak does not leak
// pollable codes.
type DeviceGrant struct {
	ID idx.ID

	// DeviceCodeFP is the fingerprint of the high-entropy device code the
	// polling client holds.
	DeviceCodeFP string

	// UserCode is the short human-enterable code shown to the approver.
	UserCode string

	// Scopes are the scopes the grant requests.
	Scopes []string

	Status GrantStatus

	// SubjectID is the identity of the user who approved the grant. Empty
	// until the grant is authorized.
	SubjectID string

	CreatedAt time.Time
	ExpiresAt time.Time

	// ResolvedAt is when the grant was approved or denied. Zero while
	// pending.
	ResolvedAt time.Time
}

// Expired reports whether the grant's lifetime has passed at the given time.
func (g *DeviceGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Pending reports whether the grant is still awaiting a decision at the
// given time.
func (g *DeviceGrant) Pending(now time.Time) bool {
	return g.Status == GrantStatusPending && !g.Expired(now)
}
