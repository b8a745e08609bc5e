package domain

import "time"

// RefreshToken is one link in a rotation family. The unused, unrevoked
// record with the highest rotation number is the family head; presenting
// any other member is treated as replay.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	FamilyID  string
	Rotation  int
	// AuthMethod records how the family was originally established and is
	// carried onto every access token minted from it.
	AuthMethod string
	IP         *string
	UserAgent  *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
	RevokedAt  *time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsHead reports whether the token is still the current rotation head.
func (t RefreshToken) IsHead() bool {
	return t.UsedAt == nil && t.RevokedAt == nil
}

// TokenPair is the issued credential set returned to clients. The refresh
// token value is opaque; only its SHA-256 hash is persisted.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	FamilyID     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}
