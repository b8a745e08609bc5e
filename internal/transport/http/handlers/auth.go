package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/transport/http/middleware"
	"github.com/obidovbek/ubergo-sub004/internal/usecase"
)

const (
	authRateLimitProblemType  = "https://auth.ubergo.example.com/errors/rate-limit-exceeded"
	authRateLimitProblemTitle = "Rate Limit Exceeded"
)

// AuthHandler exposes the passwordless authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
	now  func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		now:  time.Now,
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the SSO and refresh handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, ssoMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	r.POST("/otp/send", h.sendOtp)
	r.POST("/otp/verify", h.verifyOtp)

	social := append([]gin.HandlerFunc{}, ssoMiddlewares...)
	social = append(social, h.socialLogin)
	r.POST("/social", social...)

	refresh := append([]gin.HandlerFunc{}, refreshMiddlewares...)
	refresh = append(refresh, h.refresh)
	r.POST("/refresh", refresh...)

	r.POST("/logout", h.logout)
	r.POST("/logout/all", middleware.RequireAuth(h.auth), h.logoutAll)

	links := r.Group("/links")
	links.Use(middleware.RequireAuth(h.auth))
	links.GET("", h.listLinks)
	links.POST("", h.createLink)
}

// SendOtp godoc
// @Summary Request a one-time login code
// @Description Issues a short-lived code for the target over the chosen channel (sms, call, or push). Repeating the request inside the re-send throttle re-delivers the active code.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body OtpSendRequest true "Challenge request"
// @Success 200 {object} OtpSendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 502 {object} ErrorResponse "Delivery provider failure"
// @Router /api/v1/auth/otp/send [post]
func (h *AuthHandler) sendOtp(c *gin.Context) {
	var req OtpSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "channel and target are required"))
		return
	}

	channel, err := domain.ParseOtpChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unsupported channel"))
		return
	}

	result, err := h.auth.StartPhoneLogin(c.Request.Context(), channel, req.Target)
	if err != nil {
		h.respondOtpError(c, err)
		return
	}

	resp := OtpSendResponse{
		Channel:   string(result.Channel),
		Target:    result.Target,
		ExpiresAt: result.ExpiresAt,
		Resent:    result.Resent,
	}
	if code := strings.TrimSpace(result.Code); code != "" {
		resp.DevCode = &code
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyOtp godoc
// @Summary Complete a one-time code login
// @Description Verifies the submitted code and returns access and refresh tokens, creating the identity on first login.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body OtpVerifyRequest true "Verification payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Code mismatch or expired"
// @Failure 403 {object} ErrorResponse "Identity blocked"
// @Failure 423 {object} ErrorResponse "Attempt budget exhausted"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Router /api/v1/auth/otp/verify [post]
func (h *AuthHandler) verifyOtp(c *gin.Context) {
	var req OtpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "channel, target, and code are required"))
		return
	}

	channel, err := domain.ParseOtpChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unsupported channel"))
		return
	}

	ip, userAgent := requestOrigin(c)

	pair, resolved, err := h.auth.CompletePhoneLogin(c.Request.Context(), channel, req.Target, req.Code, ip, userAgent)
	if err != nil {
		h.respondOtpError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(pair, resolved, h.now().UTC()))
}

// SocialLogin godoc
// @Summary Authenticate with an SSO provider token
// @Description Verifies a provider-issued token, resolves or creates the identity, and returns access and refresh tokens.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body SocialLoginRequest true "Provider token"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Provider rejected the token"
// @Failure 403 {object} ErrorResponse "Identity blocked"
// @Failure 409 {object} ErrorResponse "Email belongs to another identity"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Router /api/v1/auth/social [post]
func (h *AuthHandler) socialLogin(c *gin.Context) {
	var req SocialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "provider and token are required"))
		return
	}

	ip, userAgent := requestOrigin(c)

	pair, resolved, err := h.auth.SocialLogin(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Provider)), req.Token, ip, userAgent)
	if err != nil {
		h.respondSsoError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(pair, resolved, h.now().UTC()))
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Rotates the refresh token and issues a new pair. Presenting a superseded token revokes the whole session family.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenRefreshResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Invalid, expired, or reused refresh token"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	ip, userAgent := requestOrigin(c)

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrRefreshTokenReused):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token reuse detected"))
		case errors.Is(err, usecase.ErrRefreshTokenInvalid):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid refresh token"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to refresh token"))
		}
		return
	}

	c.JSON(http.StatusOK, TokenRefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(pair.ExpiresAt, h.now().UTC()),
	})
}

// Logout godoc
// @Summary End the current session
// @Description Revokes the session family behind the presented refresh token. An unknown token still returns success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest true "Logout request"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout"))
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary End every session of the caller
// @Description Revokes all refresh token families of the authenticated user.
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} LogoutAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout/all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	count, err := h.auth.LogoutEverywhere(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{RevokedCount: count})
}

// ListLinks godoc
// @Summary List linked provider accounts
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} LinkListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/links [get]
func (h *AuthHandler) listLinks(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	links, err := h.auth.Links(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list links"))
		return
	}

	resp := LinkListResponse{Links: make([]LinkPayload, 0, len(links))}
	for _, link := range links {
		resp.Links = append(resp.Links, newLinkPayload(link))
	}

	c.JSON(http.StatusOK, resp)
}

// CreateLink godoc
// @Summary Link a provider account explicitly
// @Description Verifies a provider token and attaches the account to the authenticated identity. Used after an auto-link conflict.
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Provider account already linked"
// @Router /api/v1/auth/links [post]
func (h *AuthHandler) createLink(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "provider and token are required"))
		return
	}

	err := h.auth.LinkProvider(c.Request.Context(), userID, strings.ToLower(strings.TrimSpace(req.Provider)), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSsoTokenInvalid):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "provider token rejected"))
		case errors.Is(err, usecase.ErrIdentityBlocked):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "identity blocked"))
		case errors.Is(err, usecase.ErrAlreadyLinked):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "provider account already linked"))
		default:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				c.JSON(http.StatusConflict, NewErrorResponse(c, "provider account already linked"))
				return
			}
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to link provider account"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) respondOtpError(c *gin.Context, err error) {
	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimitExceeded(c, rateErr)
		return
	}

	var mismatch *usecase.OtpMismatchError
	if errors.As(err, &mismatch) {
		resp := NewErrorResponse(c, "code mismatch")
		remaining := mismatch.AttemptsRemaining
		resp.AttemptsRemaining = &remaining
		c.JSON(http.StatusUnauthorized, resp)
		return
	}

	var dispatchErr *port.DispatchError
	if errors.As(err, &dispatchErr) {
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "code delivery failed"))
		return
	}

	switch {
	case errors.Is(err, usecase.ErrOtpLocked):
		c.JSON(http.StatusLocked, NewErrorResponse(c, "too many wrong codes, request a new one"))
	case errors.Is(err, usecase.ErrOtpExpired):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "code expired or already used"))
	case errors.Is(err, usecase.ErrIdentityBlocked):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "identity blocked"))
	case errors.Is(err, domain.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid phone number"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func (h *AuthHandler) respondSsoError(c *gin.Context, err error) {
	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimitExceeded(c, rateErr)
		return
	}

	var conflict *usecase.LinkConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, NewErrorResponse(c, "email belongs to an existing account, sign in with it and link explicitly"))
		return
	}

	switch {
	case errors.Is(err, usecase.ErrSsoTokenInvalid):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "provider token rejected"))
	case errors.Is(err, usecase.ErrIdentityBlocked):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "identity blocked"))
	default:
		// Two concurrent first logins with the same provider account race on
		// the unique link; the loser resolves through the stored link on retry.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, NewErrorResponse(c, "provider account already linked, retry sign-in"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func respondRateLimitExceeded(c *gin.Context, rateErr *usecase.RateLimitExceededError) {
	retryAfter := int(rateErr.RetryAfter / time.Second)
	if rateErr.RetryAfter%time.Second != 0 {
		retryAfter++
	}
	if retryAfter < 0 {
		retryAfter = 0
	}

	detail := "Too many attempts. Try again later."
	if rateErr.RetryAfter > 0 {
		detail = fmt.Sprintf("Too many attempts. Try again in %d seconds.", retryAfter)
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

	problem := middleware.ProblemDetails{
		Type:       authRateLimitProblemType,
		Title:      authRateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: retryAfter,
		TraceID:    middleware.GetTraceID(c),
	}

	c.JSON(http.StatusTooManyRequests, problem)
}

func requestOrigin(c *gin.Context) (ip, userAgent *string) {
	if v := strings.TrimSpace(c.ClientIP()); v != "" {
		ip = &v
	}
	if v := strings.TrimSpace(c.Request.UserAgent()); v != "" {
		userAgent = &v
	}
	return ip, userAgent
}
