package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/port"
)

// RateLimitExceededError signals that a sliding-window limit was hit.
// RetryAfter tells the caller when the oldest attempt leaves the window.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// enforceRateLimit applies the sliding-window check for one (scope, identity)
// pair. Store failures degrade open: a broken limiter must not lock users
// out of authentication.
func enforceRateLimit(ctx context.Context, store port.RateLimitStore, logger *zap.Logger, scope, identifier string, limit int, window time.Duration, now time.Time) error {
	if store == nil || limit <= 0 || identifier == "" {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}

	storageKey := fmt.Sprintf("%s:%s", scope, identifier)

	if err := store.TrimWindow(ctx, storageKey, window, now); err != nil {
		logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := store.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := store.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := store.RecordAttempt(ctx, storageKey, now); err != nil {
		logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}
