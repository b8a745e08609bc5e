package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/security"
)

// ErrSsoTokenInvalid indicates the provider rejected the presented token.
var ErrSsoTokenInvalid = errors.New("sso token invalid")

// SsoProviderResolver maps a provider name to its verifier.
type SsoProviderResolver interface {
	Get(name string) (port.SsoProvider, error)
}

// AuthService orchestrates the full login flows: phone OTP, SSO, refresh
// rotation, and logout.
type AuthService struct {
	otp        *OtpService
	identities *IdentityService
	tokens     *TokenService
	providers  SsoProviderResolver
	logger     *zap.Logger
}

// NewAuthService constructs the orchestrator from its collaborating services.
func NewAuthService(otp *OtpService, identities *IdentityService, tokens *TokenService, providers SsoProviderResolver, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		otp:        otp,
		identities: identities,
		tokens:     tokens,
		providers:  providers,
		logger:     log,
	}
}

// StartPhoneLogin issues an OTP challenge for the target over the channel.
func (s *AuthService) StartPhoneLogin(ctx context.Context, channel domain.OtpChannel, target string) (*OtpIssueResult, error) {
	return s.otp.Issue(ctx, channel, target)
}

// CompletePhoneLogin verifies the submitted code and exchanges it for a
// token pair, creating the identity on first login.
func (s *AuthService) CompletePhoneLogin(ctx context.Context, channel domain.OtpChannel, target, code string, ip, userAgent *string) (*domain.TokenPair, *ResolveResult, error) {
	normalized, err := s.otp.normalizeTarget(channel, target)
	if err != nil {
		return nil, nil, err
	}

	if err := s.otp.Verify(ctx, channel, normalized, code); err != nil {
		return nil, nil, err
	}

	resolved, err := s.identities.ResolveByPhone(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.Issue(ctx, IssueInput{
		UserID:     resolved.Identity.ID,
		AuthMethod: "phone_otp",
		IP:         ip,
		UserAgent:  userAgent,
	})
	if err != nil {
		return nil, nil, err
	}

	return pair, resolved, nil
}

// SocialLogin verifies a provider token, resolves the identity, and issues
// a token pair.
func (s *AuthService) SocialLogin(ctx context.Context, providerName, providerToken string, ip, userAgent *string) (*domain.TokenPair, *ResolveResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSsoTokenInvalid, err)
	}

	profile, err := provider.VerifyToken(ctx, providerToken)
	if err != nil {
		s.logger.Info("sso token verification failed",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		return nil, nil, ErrSsoTokenInvalid
	}

	resolved, err := s.identities.ResolveSso(ctx, *profile)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.Issue(ctx, IssueInput{
		UserID:     resolved.Identity.ID,
		AuthMethod: provider.Name(),
		IP:         ip,
		UserAgent:  userAgent,
	})
	if err != nil {
		return nil, nil, err
	}

	return pair, resolved, nil
}

// ParseAccessToken validates an access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*security.AccessTokenClaims, error) {
	return s.tokens.ParseAccessToken(token)
}

// LinkProvider verifies a provider token and attaches the account to the
// authenticated identity. Used after a link conflict.
func (s *AuthService) LinkProvider(ctx context.Context, userID, providerName, providerToken string) error {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSsoTokenInvalid, err)
	}

	profile, err := provider.VerifyToken(ctx, providerToken)
	if err != nil {
		return ErrSsoTokenInvalid
	}

	return s.identities.Link(ctx, userID, *profile)
}

// Links lists the provider accounts attached to an identity.
func (s *AuthService) Links(ctx context.Context, userID string) ([]domain.SsoLink, error) {
	return s.identities.Links(ctx, userID)
}

// Refresh rotates a refresh token into a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, ip, userAgent *string) (*domain.TokenPair, error) {
	return s.tokens.Rotate(ctx, refreshToken, ip, userAgent)
}

// Logout revokes the session family behind the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.RevokeFamily(ctx, refreshToken)
}

// LogoutEverywhere revokes every active session of the user.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string) (int, error) {
	return s.tokens.RevokeAllForUser(ctx, userID)
}
