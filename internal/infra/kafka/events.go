package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishIdentityCreated publishes auth.identity.created events.
func (p *EventPublisher) PublishIdentityCreated(ctx context.Context, event domain.IdentityCreatedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		Phone     *string        `json:"phone,omitempty"`
		Email     *string        `json:"email,omitempty"`
		Method    string         `json:"method"`
		CreatedAt time.Time      `json:"created_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		Phone:     event.Phone,
		Email:     event.Email,
		Method:    event.Method,
		CreatedAt: event.CreatedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.identity.created", event.UserID, event.CreatedAt, payload)
}

// PublishIdentityLinked publishes auth.identity.linked events.
func (p *EventPublisher) PublishIdentityLinked(ctx context.Context, event domain.IdentityLinkedEvent) error {
	payload := struct {
		UserID         string         `json:"user_id"`
		Provider       string         `json:"provider"`
		ProviderUserID string         `json:"provider_user_id"`
		AutoLink       bool           `json:"auto_link"`
		LinkedAt       time.Time      `json:"linked_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		UserID:         event.UserID,
		Provider:       event.Provider,
		ProviderUserID: event.ProviderUserID,
		AutoLink:       event.AutoLink,
		LinkedAt:       event.LinkedAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.identity.linked", event.UserID, event.LinkedAt, payload)
}

// PublishTokenReuseDetected publishes auth.token.reuse_detected events.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		UserID     string         `json:"user_id"`
		FamilyID   string         `json:"family_id"`
		DetectedAt time.Time      `json:"detected_at"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		UserID:     event.UserID,
		FamilyID:   event.FamilyID,
		DetectedAt: event.DetectedAt.UTC(),
		IPAddress:  event.IP,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.token.reuse_detected", event.UserID, event.DetectedAt, payload)
}

// PublishTokensRevoked publishes auth.token.revoked events.
func (p *EventPublisher) PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		FamilyID  string         `json:"family_id,omitempty"`
		Scope     string         `json:"scope"`
		Reason    string         `json:"reason"`
		Count     int            `json:"count"`
		RevokedAt time.Time      `json:"revoked_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		FamilyID:  event.FamilyID,
		Scope:     event.Scope,
		Reason:    event.Reason,
		Count:     event.Count,
		RevokedAt: event.RevokedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.token.revoked", event.UserID, event.RevokedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
