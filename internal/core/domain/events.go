package domain

import "time"

// IdentityCreatedEvent records first-time identity creation for the audit sink.
type IdentityCreatedEvent struct {
	EventID   string
	UserID    string
	Phone     *string
	Email     *string
	Method    string // "phone_otp" or the SSO provider name
	CreatedAt time.Time
	Metadata  map[string]any
}

// IdentityLinkedEvent records a new credential attached to an existing identity.
type IdentityLinkedEvent struct {
	EventID        string
	UserID         string
	Provider       string
	ProviderUserID string
	AutoLink       bool
	LinkedAt       time.Time
	Metadata       map[string]any
}

// TokenReuseDetectedEvent is emitted when a superseded refresh token is
// presented. The whole family is revoked before this event is published.
type TokenReuseDetectedEvent struct {
	EventID    string
	UserID     string
	FamilyID   string
	DetectedAt time.Time
	IP         *string
	Metadata   map[string]any
}

// TokensRevokedEvent records logout and logout-everywhere revocations.
type TokensRevokedEvent struct {
	EventID   string
	UserID    string
	FamilyID  string // empty when every family was revoked
	Scope     string // "family" or "user"
	Reason    string
	Count     int
	RevokedAt time.Time
	Metadata  map[string]any
}
