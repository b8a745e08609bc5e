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
	"github.com/obidovbek/ubergo-sub004/internal/infra/config"
	"github.com/obidovbek/ubergo-sub004/internal/infra/security"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

const (
	refreshTokenBytes = 32

	reuseRevokeReason  = "reuse_detected"
	logoutRevokeReason = "user_logout"
	logoutAllReason    = "logout_everywhere"

	fallbackAccessTTL  = 15 * time.Minute
	fallbackRefreshTTL = 720 * time.Hour
)

var (
	// ErrRefreshTokenInvalid covers unknown, expired, and revoked tokens.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenReused indicates a superseded token was presented. The
	// whole family is revoked before this error is returned.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")
)

// TokenService issues access/refresh pairs and rotates refresh families.
type TokenService struct {
	cfg    *config.AppConfig
	tokens port.TokenRepository
	jwt    *security.JWTManager
	kid    string
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// IssueInput captures the request context bound to a new token family.
type IssueInput struct {
	UserID     string
	AuthMethod string
	IP         *string
	UserAgent  *string
}

// NewTokenService constructs a TokenService signing with the given kid.
func NewTokenService(cfg *config.AppConfig, tokens port.TokenRepository, jwt *security.JWTManager, kid string, events port.EventPublisher, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}

	return &TokenService{
		cfg:    cfg,
		tokens: tokens,
		jwt:    jwt,
		kid:    kid,
		events: events,
		logger: log,
		now:    time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue starts a new rotation family for the user and returns the pair.
func (s *TokenService) Issue(ctx context.Context, input IssueInput) (*domain.TokenPair, error) {
	familyID := uuid.NewString()
	return s.mint(ctx, input.UserID, input.AuthMethod, familyID, 1, input.IP, input.UserAgent)
}

// Rotate exchanges a refresh token for a fresh pair. Presenting any family
// member other than the current head is treated as replay: every active
// token in the family is revoked and the caller gets ErrRefreshTokenReused.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, ip, userAgent *string) (*domain.TokenPair, error) {
	hash := security.HashToken(refreshToken)

	record, err := s.tokens.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	now := s.now().UTC()

	if record.RevokedAt != nil || record.IsExpired(now) {
		return nil, ErrRefreshTokenInvalid
	}

	if record.UsedAt != nil {
		s.revokeOnReuse(ctx, record, ip, now)
		return nil, ErrRefreshTokenReused
	}

	won, err := s.tokens.MarkRefreshTokenUsed(ctx, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark refresh token used: %w", err)
	}
	if !won {
		// A concurrent rotation consumed the token first; this presentation
		// is a replay of a now superseded credential.
		s.revokeOnReuse(ctx, record, ip, now)
		return nil, ErrRefreshTokenReused
	}

	pair, err := s.mint(ctx, record.UserID, record.AuthMethod, record.FamilyID, record.Rotation+1, ip, userAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refresh token rotated",
		zap.String("user_id", record.UserID),
		zap.String("family_id", record.FamilyID),
		zap.Int("rotation", record.Rotation+1),
	)

	return pair, nil
}

// ParseAccessToken validates an access token and returns its claims.
func (s *TokenService) ParseAccessToken(token string) (*security.AccessTokenClaims, error) {
	return s.jwt.ParseAccessToken(token)
}

// RevokeFamily ends the session behind one refresh token (logout).
func (s *TokenService) RevokeFamily(ctx context.Context, refreshToken string) error {
	hash := security.HashToken(refreshToken)

	record, err := s.tokens.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Logout with an unknown token is a no-op, not an error.
			return nil
		}
		return fmt.Errorf("get refresh token: %w", err)
	}

	count, err := s.tokens.RevokeFamily(ctx, record.FamilyID, logoutRevokeReason)
	if err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}

	s.publishRevoked(ctx, record.UserID, record.FamilyID, "family", logoutRevokeReason, count)

	return nil
}

// RevokeAllForUser ends every session of the user (logout everywhere).
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	count, err := s.tokens.RevokeAllForUser(ctx, userID, logoutAllReason)
	if err != nil {
		return 0, fmt.Errorf("revoke all for user: %w", err)
	}

	s.publishRevoked(ctx, userID, "", "user", logoutAllReason, count)

	return count, nil
}

func (s *TokenService) mint(ctx context.Context, userID, authMethod, familyID string, rotation int, ip, userAgent *string) (*domain.TokenPair, error) {
	now := s.now().UTC()

	refreshValue, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshTTL := s.cfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = fallbackRefreshTTL
	}

	record := domain.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  security.HashToken(refreshValue),
		FamilyID:   familyID,
		Rotation:   rotation,
		AuthMethod: authMethod,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(refreshTTL),
	}

	if err := s.tokens.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	accessTTL := s.cfg.JWT.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = fallbackAccessTTL
	}

	claims, err := security.NewAccessTokenClaims(security.AccessTokenOptions{
		UserID:     userID,
		AuthMethod: authMethod,
		FamilyID:   familyID,
		Issuer:     s.cfg.App.Name,
		TTL:        accessTTL,
		IssuedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("build access claims: %w", err)
	}

	accessToken, err := s.jwt.SignAccessToken(s.kid, claims)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		UserID:       userID,
		FamilyID:     familyID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(accessTTL),
	}, nil
}

func (s *TokenService) revokeOnReuse(ctx context.Context, record *domain.RefreshToken, ip *string, now time.Time) {
	count, err := s.tokens.RevokeFamily(ctx, record.FamilyID, reuseRevokeReason)
	if err != nil {
		s.logger.Error("revoke family on reuse failed",
			zap.String("family_id", record.FamilyID),
			zap.Error(err),
		)
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", record.UserID),
		zap.String("family_id", record.FamilyID),
		zap.Int("tokens_revoked", count),
	)

	if s.events != nil {
		event := domain.TokenReuseDetectedEvent{
			EventID:    uuid.NewString(),
			UserID:     record.UserID,
			FamilyID:   record.FamilyID,
			DetectedAt: now,
			IP:         ip,
		}
		if err := s.events.PublishTokenReuseDetected(ctx, event); err != nil {
			s.logger.Warn("publish token reuse failed", zap.Error(err))
		}
	}

	s.publishRevoked(ctx, record.UserID, record.FamilyID, "family", reuseRevokeReason, count)
}

func (s *TokenService) publishRevoked(ctx context.Context, userID, familyID, scope, reason string, count int) {
	if s.events == nil || count == 0 {
		return
	}

	event := domain.TokensRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		FamilyID:  familyID,
		Scope:     scope,
		Reason:    reason,
		Count:     count,
		RevokedAt: s.now().UTC(),
	}
	if err := s.events.PublishTokensRevoked(ctx, event); err != nil {
		s.logger.Warn("publish tokens revoked failed", zap.Error(err))
	}
}
