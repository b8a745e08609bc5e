package port

import (
	"context"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// EventPublisher delivers audit events to the external log sink. Publishing
// is best-effort from the caller's point of view; auth flows do not fail on
// sink errors.
type EventPublisher interface {
	PublishIdentityCreated(ctx context.Context, event domain.IdentityCreatedEvent) error
	PublishIdentityLinked(ctx context.Context, event domain.IdentityLinkedEvent) error
	PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error
	PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error
}
