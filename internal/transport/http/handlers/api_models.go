package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	TraceID           string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// OtpSendRequest asks for a login code over a delivery channel.
type OtpSendRequest struct {
	Channel string `json:"channel" binding:"required"`
	Target  string `json:"target" binding:"required"`
}

// OtpSendResponse reports the issued challenge.
type OtpSendResponse struct {
	Channel   string    `json:"channel"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
	Resent    bool      `json:"resent,omitempty"`
	// SECURITY: DevCode is ONLY exposed outside production.
	DevCode *string `json:"dev_code,omitempty"`
}

// OtpVerifyRequest submits the received code to complete the login.
type OtpVerifyRequest struct {
	Channel string `json:"channel" binding:"required"`
	Target  string `json:"target" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

// SocialLoginRequest carries a provider-issued token.
type SocialLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// UserSummary describes a minimal view of an identity returned by the API.
type UserSummary struct {
	ID     string                `json:"id"`
	Status domain.IdentityStatus `json:"status"`
	Phone  *string               `json:"phone,omitempty"`
	Email  *string               `json:"email,omitempty"`
	Name   *string               `json:"name,omitempty"`
}

// LoginResponse is returned by every flow that ends with issued tokens.
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         UserSummary `json:"user"`
	Created      bool        `json:"created,omitempty"`
	AutoLinked   bool        `json:"auto_linked,omitempty"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains tokens issued by the refresh endpoint.
type TokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// LogoutRequest revokes the session behind a refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse summarises a logout-everywhere operation.
type LogoutAllResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// LinkRequest attaches a provider account to the authenticated identity.
type LinkRequest struct {
	Provider string `json:"provider" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// LinkPayload describes one provider link.
type LinkPayload struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          *string   `json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LinkListResponse wraps the provider accounts of an identity.
type LinkListResponse struct {
	Links []LinkPayload `json:"links"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JWKSKey describes an individual JSON Web Key in the JWKS response.
type JWKSKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSResponse represents the JSON Web Key Set payload.
type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

// newUserSummary converts a resolved identity to its API view.
func newUserSummary(identity *domain.Identity) UserSummary {
	if identity == nil {
		return UserSummary{}
	}

	return UserSummary{
		ID:     identity.ID,
		Status: identity.Status,
		Phone:  identity.Phone,
		Email:  identity.Email,
		Name:   identity.Name,
	}
}

func newLoginResponse(pair *domain.TokenPair, resolved *usecase.ResolveResult, now time.Time) LoginResponse {
	resp := LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(pair.ExpiresAt, now),
	}

	if resolved != nil {
		resp.User = newUserSummary(resolved.Identity)
		resp.Created = resolved.Created
		resp.AutoLinked = resolved.AutoLinked
	}

	return resp
}

func newLinkPayload(link domain.SsoLink) LinkPayload {
	return LinkPayload{
		Provider:       link.Provider,
		ProviderUserID: link.ProviderUserID,
		Email:          link.Email,
		CreatedAt:      link.CreatedAt,
	}
}

func expiresIn(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds())
}
