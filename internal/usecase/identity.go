package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/logger"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

// ErrIdentityBlocked indicates the resolved identity may not authenticate.
var ErrIdentityBlocked = errors.New("identity is blocked")

// ErrAlreadyLinked indicates the provider account is bound to some identity.
var ErrAlreadyLinked = errors.New("provider account already linked")

// LinkConflictError reports an SSO profile whose claims collide with an
// existing identity that the provider cannot vouch for. The client must
// authenticate with the existing credential and link explicitly.
type LinkConflictError struct {
	Provider string
	Email    string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("cannot auto-link %s account: email already belongs to another identity", e.Provider)
}

// IdentityService resolves external credentials (verified phone numbers and
// SSO profiles) to canonical identities, creating them on first contact.
type IdentityService struct {
	identities port.IdentityRepository
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// ResolveResult carries the resolved identity plus how it was obtained.
type ResolveResult struct {
	Identity   *domain.Identity
	Created    bool
	AutoLinked bool
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(identities port.IdentityRepository, events port.EventPublisher, log *zap.Logger) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}

	return &IdentityService{
		identities: identities,
		events:     events,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *IdentityService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ResolveByPhone finds the identity owning a verified phone number, creating
// a fresh one on first login. Callers must only pass numbers that already
// passed OTP verification.
func (s *IdentityService) ResolveByPhone(ctx context.Context, phone string) (*ResolveResult, error) {
	identity, err := s.identities.GetByPhone(ctx, phone)
	if err == nil {
		if !identity.IsActive() {
			return nil, ErrIdentityBlocked
		}
		return &ResolveResult{Identity: identity}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get identity by phone: %w", err)
	}

	now := s.now().UTC()
	identity = &domain.Identity{
		ID:        uuid.NewString(),
		Phone:     &phone,
		Status:    domain.IdentityStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.identities.Create(ctx, *identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.publishCreated(ctx, identity, "phone_otp")

	s.logger.Info("identity created",
		zap.String("user_id", identity.ID),
		zap.String("phone", logger.MaskPhone(phone)),
		zap.String("method", "phone_otp"),
	)

	return &ResolveResult{Identity: identity, Created: true}, nil
}

// ResolveSso maps a verified provider profile to an identity. An existing
// link wins outright. Without a link, a provider-verified email or phone that
// matches exactly one identity is auto-linked; a matching but unverified
// email is a conflict; otherwise a fresh identity is created.
func (s *IdentityService) ResolveSso(ctx context.Context, profile domain.SsoProfile) (*ResolveResult, error) {
	link, err := s.identities.GetLink(ctx, profile.Provider, profile.ProviderUserID)
	if err == nil {
		identity, err := s.identities.GetByID(ctx, link.IdentityID)
		if err != nil {
			return nil, fmt.Errorf("get linked identity: %w", err)
		}
		if !identity.IsActive() {
			return nil, ErrIdentityBlocked
		}
		return &ResolveResult{Identity: identity}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get sso link: %w", err)
	}

	if profile.Email != nil {
		existing, err := s.identities.GetByEmail(ctx, *profile.Email)
		switch {
		case err == nil:
			if !profile.EmailVerified {
				return nil, &LinkConflictError{Provider: profile.Provider, Email: *profile.Email}
			}
			if !existing.IsActive() {
				return nil, ErrIdentityBlocked
			}
			if err := s.createLink(ctx, existing.ID, profile, true); err != nil {
				return nil, err
			}
			return &ResolveResult{Identity: existing, AutoLinked: true}, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("get identity by email: %w", err)
		}
	}

	if profile.Phone != nil && profile.PhoneVerified {
		existing, err := s.identities.GetByPhone(ctx, *profile.Phone)
		switch {
		case err == nil:
			if !existing.IsActive() {
				return nil, ErrIdentityBlocked
			}
			if err := s.createLink(ctx, existing.ID, profile, true); err != nil {
				return nil, err
			}
			return &ResolveResult{Identity: existing, AutoLinked: true}, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("get identity by phone: %w", err)
		}
	}

	now := s.now().UTC()
	identity := &domain.Identity{
		ID:        uuid.NewString(),
		Email:     profile.Email,
		Name:      profile.Name,
		Status:    domain.IdentityStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if profile.PhoneVerified {
		identity.Phone = profile.Phone
	}

	if err := s.identities.Create(ctx, *identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.publishCreated(ctx, identity, profile.Provider)

	if err := s.createLink(ctx, identity.ID, profile, false); err != nil {
		return nil, err
	}

	return &ResolveResult{Identity: identity, Created: true}, nil
}

// Link attaches a provider account to an already authenticated identity.
// Used by the explicit linking flow after a conflict.
func (s *IdentityService) Link(ctx context.Context, identityID string, profile domain.SsoProfile) error {
	if _, err := s.identities.GetLink(ctx, profile.Provider, profile.ProviderUserID); err == nil {
		return ErrAlreadyLinked
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get sso link: %w", err)
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("get identity: %w", err)
	}
	if !identity.IsActive() {
		return ErrIdentityBlocked
	}

	return s.createLink(ctx, identityID, profile, false)
}

// Links lists the provider accounts attached to an identity.
func (s *IdentityService) Links(ctx context.Context, identityID string) ([]domain.SsoLink, error) {
	return s.identities.ListLinks(ctx, identityID)
}

func (s *IdentityService) createLink(ctx context.Context, identityID string, profile domain.SsoProfile, autoLink bool) error {
	now := s.now().UTC()

	link := domain.SsoLink{
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		IdentityID:     identityID,
		Email:          profile.Email,
		CreatedAt:      now,
	}

	if err := s.identities.CreateLink(ctx, link); err != nil {
		return fmt.Errorf("create sso link: %w", err)
	}

	if s.events != nil {
		event := domain.IdentityLinkedEvent{
			EventID:        uuid.NewString(),
			UserID:         identityID,
			Provider:       profile.Provider,
			ProviderUserID: profile.ProviderUserID,
			AutoLink:       autoLink,
			LinkedAt:       now,
		}
		if err := s.events.PublishIdentityLinked(ctx, event); err != nil {
			s.logger.Warn("publish identity linked failed", zap.Error(err))
		}
	}

	s.logger.Info("identity linked",
		zap.String("user_id", identityID),
		zap.String("provider", profile.Provider),
		zap.Bool("auto_link", autoLink),
	)

	return nil
}

func (s *IdentityService) publishCreated(ctx context.Context, identity *domain.Identity, method string) {
	if s.events == nil {
		return
	}

	event := domain.IdentityCreatedEvent{
		EventID:   uuid.NewString(),
		UserID:    identity.ID,
		Phone:     identity.Phone,
		Email:     identity.Email,
		Method:    method,
		CreatedAt: identity.CreatedAt,
	}
	if err := s.events.PublishIdentityCreated(ctx, event); err != nil {
		s.logger.Warn("publish identity created failed", zap.Error(err))
	}
}
