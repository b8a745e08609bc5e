package port

import (
	"context"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for identities and their
// SSO links. Uniqueness of phone, and of (provider, provider_user_id), is
// enforced by the backing store.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetLink(ctx context.Context, provider, providerUserID string) (*domain.SsoLink, error)
	CreateLink(ctx context.Context, link domain.SsoLink) error
	ListLinks(ctx context.Context, identityID string) ([]domain.SsoLink, error)
}
