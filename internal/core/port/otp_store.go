package port

import (
	"context"
	"time"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// OtpStore persists the single active challenge per (channel, target) key.
// Implementations must make IncrementAttempts and Spend atomic so that
// concurrent verify calls cannot both pass the lockout check or both win.
type OtpStore interface {
	// Replace stores the challenge, discarding any prior one for its key.
	Replace(ctx context.Context, challenge domain.OtpChallenge, ttl time.Duration) error
	// Fetch returns the active challenge or repository.ErrNotFound.
	Fetch(ctx context.Context, channel domain.OtpChannel, target string) (*domain.OtpChallenge, error)
	// IncrementAttempts atomically bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, channel domain.OtpChannel, target string) (int, error)
	// Spend deletes the challenge; the return value reports whether this
	// caller performed the deletion. Exactly one concurrent caller wins.
	Spend(ctx context.Context, channel domain.OtpChannel, target string) (bool, error)
}
