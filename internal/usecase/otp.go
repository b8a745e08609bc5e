package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/config"
	"github.com/obidovbek/ubergo-sub004/internal/infra/logger"
	"github.com/obidovbek/ubergo-sub004/internal/infra/security"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

const (
	otpSendRateLimitScope   = "otp_send"
	otpVerifyRateLimitScope = "otp_verify"

	fallbackCodeLength  = 6
	fallbackOtpTTL      = 5 * time.Minute
	fallbackMaxAttempts = 5
)

var (
	// ErrOtpExpired covers a missing, lapsed, or already spent challenge.
	// Clients cannot distinguish these states.
	ErrOtpExpired = errors.New("otp challenge expired")
	// ErrOtpLocked indicates the attempt budget is exhausted.
	ErrOtpLocked = errors.New("otp challenge locked")
)

// OtpMismatchError reports a wrong code together with the remaining budget.
type OtpMismatchError struct {
	AttemptsRemaining int
}

func (e *OtpMismatchError) Error() string {
	return fmt.Sprintf("otp code mismatch, %d attempts remaining", e.AttemptsRemaining)
}

// OtpService owns the challenge lifecycle: issue, re-send, verify, spend.
type OtpService struct {
	cfg        *config.AppConfig
	store      port.OtpStore
	dispatcher port.ChannelDispatcher
	rateLimits port.RateLimitStore
	logger     *zap.Logger
	now        func() time.Time
}

// OtpIssueResult describes an issued or re-dispatched challenge.
type OtpIssueResult struct {
	Channel   domain.OtpChannel
	Target    string
	ExpiresAt time.Time
	Resent    bool
	// Code is populated only outside production for manual testing.
	Code string
}

// NewOtpService constructs an OtpService.
func NewOtpService(cfg *config.AppConfig, store port.OtpStore, dispatcher port.ChannelDispatcher, rateLimits port.RateLimitStore, log *zap.Logger) *OtpService {
	if log == nil {
		log = zap.NewNop()
	}

	return &OtpService{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		rateLimits: rateLimits,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *OtpService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue creates a challenge for the channel and target and dispatches the
// code. A repeated request inside the re-send throttle re-delivers the
// stored code instead of minting a new one, so an impatient user cannot
// invalidate a code already in flight.
func (s *OtpService) Issue(ctx context.Context, channel domain.OtpChannel, target string) (*OtpIssueResult, error) {
	target, err := s.normalizeTarget(channel, target)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if err := enforceRateLimit(ctx, s.rateLimits, s.logger, otpSendRateLimitScope, target,
		s.cfg.RateLimit.OtpSendMaxAttempts, s.cfg.RateLimit.OtpSendWindow, now); err != nil {
		return nil, err
	}

	if existing, err := s.store.Fetch(ctx, channel, target); err == nil {
		throttle := s.cfg.Otp.ResendThrottle
		if throttle > 0 && now.Sub(existing.CreatedAt) < throttle && !existing.IsExpired(now) {
			if err := s.dispatcher.Send(ctx, channel, target, existing.Code); err != nil {
				return nil, err
			}
			return s.result(channel, target, existing.Code, existing.ExpiresAt, true), nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("fetch existing challenge: %w", err)
	}

	codeLength := s.cfg.Otp.CodeLength
	if codeLength <= 0 {
		codeLength = fallbackCodeLength
	}

	code, err := security.GenerateNumericCode(codeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	ttl := s.cfg.Otp.TTL
	if ttl <= 0 {
		ttl = fallbackOtpTTL
	}

	challenge := domain.OtpChallenge{
		Channel:   channel,
		Target:    target,
		Code:      code,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.store.Replace(ctx, challenge, ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	if err := s.dispatcher.Send(ctx, channel, target, code); err != nil {
		// The stored challenge stays valid; the client may retry delivery.
		return nil, err
	}

	s.logger.Info("otp challenge issued",
		zap.String("channel", string(channel)),
		zap.String("target", logger.MaskPhone(target)),
		zap.Time("expires_at", challenge.ExpiresAt),
	)

	return s.result(channel, target, code, challenge.ExpiresAt, false), nil
}

// Verify checks a submitted code against the active challenge. The attempt
// counter is bumped atomically before the comparison so concurrent guesses
// cannot share a slot, and a correct code is spent single-use: of N
// concurrent verifies with the right code exactly one succeeds.
func (s *OtpService) Verify(ctx context.Context, channel domain.OtpChannel, target, code string) error {
	target, err := s.normalizeTarget(channel, target)
	if err != nil {
		return err
	}

	now := s.now().UTC()

	if err := enforceRateLimit(ctx, s.rateLimits, s.logger, otpVerifyRateLimitScope, target,
		s.cfg.RateLimit.OtpVerifyMaxAttempts, s.cfg.RateLimit.OtpVerifyWindow, now); err != nil {
		return err
	}

	challenge, err := s.store.Fetch(ctx, channel, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOtpExpired
		}
		return fmt.Errorf("fetch challenge: %w", err)
	}

	if challenge.IsExpired(now) {
		return ErrOtpExpired
	}

	maxAttempts := s.cfg.Otp.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = fallbackMaxAttempts
	}

	attempts, err := s.store.IncrementAttempts(ctx, channel, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOtpExpired
		}
		return fmt.Errorf("increment attempts: %w", err)
	}

	if attempts > maxAttempts {
		return ErrOtpLocked
	}

	if !security.ConstantTimeEqual(challenge.Code, code) {
		if attempts >= maxAttempts {
			return ErrOtpLocked
		}
		return &OtpMismatchError{AttemptsRemaining: maxAttempts - attempts}
	}

	won, err := s.store.Spend(ctx, channel, target)
	if err != nil {
		return fmt.Errorf("spend challenge: %w", err)
	}
	if !won {
		// Another verify with the same code got there first.
		return ErrOtpExpired
	}

	s.logger.Info("otp challenge verified",
		zap.String("channel", string(channel)),
		zap.String("target", logger.MaskPhone(target)),
		zap.Int("attempts", attempts),
	)

	return nil
}

func (s *OtpService) normalizeTarget(channel domain.OtpChannel, target string) (string, error) {
	if channel == domain.OtpChannelPush {
		if target == "" {
			return "", fmt.Errorf("target is required")
		}
		return target, nil
	}
	return domain.NormalizePhone(target)
}

func (s *OtpService) result(channel domain.OtpChannel, target, code string, expiresAt time.Time, resent bool) *OtpIssueResult {
	res := &OtpIssueResult{
		Channel:   channel,
		Target:    target,
		ExpiresAt: expiresAt,
		Resent:    resent,
	}
	if s.cfg.App.Env != "production" {
		res.Code = code
	}
	return res
}
