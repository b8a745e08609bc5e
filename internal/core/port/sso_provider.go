package port

import (
	"context"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// SsoProvider verifies a provider-issued token and returns the vouched
// profile claims. Verification happens against the provider's own endpoint.
type SsoProvider interface {
	Name() string
	VerifyToken(ctx context.Context, providerToken string) (*domain.SsoProfile, error)
}
