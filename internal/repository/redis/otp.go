package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

const (
	defaultOtpPrefix = "auth:otp"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// OtpRepository keeps the single active challenge per (channel, target) key
// as a Redis hash. The key TTL mirrors the challenge expiry so abandoned
// challenges disappear on their own.
type OtpRepository struct {
	client *red.Client
	prefix string
}

// NewOtpRepository constructs an OTP repository with the provided Redis
// client and key prefix.
func NewOtpRepository(client *red.Client, keyPrefix string) *OtpRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOtpPrefix
	}

	return &OtpRepository{
		client: client,
		prefix: prefix,
	}
}

// Replace stores the challenge, unconditionally discarding any prior one for
// the same key. HSet overwrites every field, so a stale attempts counter
// cannot survive a re-issue.
func (r *OtpRepository) Replace(ctx context.Context, challenge domain.OtpChallenge, ttl time.Duration) error {
	switch {
	case challenge.Target == "":
		return errors.New("target is required")
	case challenge.Code == "":
		return errors.New("code is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	key := r.key(challenge.Channel, challenge.Target)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      challenge.Code,
		fieldCreatedAt: strconv.FormatInt(challenge.CreatedAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(challenge.ExpiresAt.Unix(), 10),
		fieldAttempts:  strconv.Itoa(challenge.Attempts),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}

	return nil
}

// Fetch retrieves the active challenge for the channel and target.
func (r *OtpRepository) Fetch(ctx context.Context, channel domain.OtpChannel, target string) (*domain.OtpChallenge, error) {
	if target == "" {
		return nil, errors.New("target is required")
	}

	key := r.key(channel, target)

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.OtpChallenge{
		Channel:   channel,
		Target:    target,
		Code:      code,
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IncrementAttempts atomically bumps the attempt counter and returns the new
// value. HIncrBy makes concurrent verifies observe distinct counts. The key
// can expire between the guarding Fetch and the increment, which would leave
// HIncrBy to recreate the hash without a TTL; the pipelined ExpireAt re-arms
// the original deadline either way.
func (r *OtpRepository) IncrementAttempts(ctx context.Context, channel domain.OtpChannel, target string) (int, error) {
	challenge, err := r.Fetch(ctx, channel, target)
	if err != nil {
		return 0, err
	}

	key := r.key(channel, target)

	pipe := r.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, fieldAttempts, 1)
	pipe.ExpireAt(ctx, key, challenge.ExpiresAt)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis hincrby otp attempts: %w", err)
	}

	return int(incr.Val()), nil
}

// Spend deletes the challenge and reports whether this caller removed it.
// DEL returns the number of removed keys, so of N concurrent callers exactly
// one observes true.
func (r *OtpRepository) Spend(ctx context.Context, channel domain.OtpChannel, target string) (bool, error) {
	if target == "" {
		return false, errors.New("target is required")
	}

	key := r.key(channel, target)

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete otp: %w", err)
	}

	return deleted > 0, nil
}

func (r *OtpRepository) key(channel domain.OtpChannel, target string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, channel, target)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.OtpStore = (*OtpRepository)(nil)
