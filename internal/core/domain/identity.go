package domain

import "time"

// IdentityStatus enumerates the lifecycle states of a rider/driver identity.
type IdentityStatus string

const (
	IdentityStatusActive  IdentityStatus = "active"
	IdentityStatusBlocked IdentityStatus = "blocked"
)

// Identity is the canonical user record that phone and SSO credentials
// resolve to. Deletion is owned by the profile service, not this core.
type Identity struct {
	ID        string
	Phone     *string
	Email     *string
	Name      *string
	Status    IdentityStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the identity may authenticate.
func (i Identity) IsActive() bool {
	return i.Status == IdentityStatusActive
}

// SsoLink binds one external provider account to exactly one identity.
type SsoLink struct {
	Provider       string
	ProviderUserID string
	IdentityID     string
	Email          *string
	CreatedAt      time.Time
}

// SsoProfile carries the claims a provider vouches for after token
// verification. Verified flags gate auto-linking decisions.
type SsoProfile struct {
	Provider       string
	ProviderUserID string
	Email          *string
	EmailVerified  bool
	Phone          *string
	PhoneVerified  bool
	Name           *string
}
