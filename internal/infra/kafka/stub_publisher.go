package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishIdentityCreated logs auth.identity.created events.
func (p *StubPublisher) PublishIdentityCreated(_ context.Context, event domain.IdentityCreatedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"phone":      event.Phone,
		"email":      event.Email,
		"method":     event.Method,
		"created_at": event.CreatedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("auth.identity.created", event.UserID, event.CreatedAt, payload)
	return nil
}

// PublishIdentityLinked logs auth.identity.linked events.
func (p *StubPublisher) PublishIdentityLinked(_ context.Context, event domain.IdentityLinkedEvent) error {
	payload := map[string]any{
		"user_id":          event.UserID,
		"provider":         event.Provider,
		"provider_user_id": event.ProviderUserID,
		"auto_link":        event.AutoLink,
		"linked_at":        event.LinkedAt,
		"metadata":         event.Metadata,
	}
	p.logEvent("auth.identity.linked", event.UserID, event.LinkedAt, payload)
	return nil
}

// PublishTokenReuseDetected logs auth.token.reuse_detected events.
func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"family_id":   event.FamilyID,
		"detected_at": event.DetectedAt,
		"ip_address":  event.IP,
		"metadata":    event.Metadata,
	}
	p.logEvent("auth.token.reuse_detected", event.UserID, event.DetectedAt, payload)
	return nil
}

// PublishTokensRevoked logs auth.token.revoked events.
func (p *StubPublisher) PublishTokensRevoked(_ context.Context, event domain.TokensRevokedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"family_id":  event.FamilyID,
		"scope":      event.Scope,
		"reason":     event.Reason,
		"count":      event.Count,
		"revoked_at": event.RevokedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("auth.token.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
