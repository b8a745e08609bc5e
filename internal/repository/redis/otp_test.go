package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testChallenge(now time.Time) domain.OtpChallenge {
	return domain.OtpChallenge{
		Channel:   domain.OtpChannelSms,
		Target:    "+998901234567",
		Code:      "123456",
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestOtpRepository_ReplaceAndFetch(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	challenge := testChallenge(now)

	if err := repo.Replace(ctx, challenge, 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	got, err := repo.Fetch(ctx, domain.OtpChannelSms, "+998901234567")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.Code != "123456" {
		t.Fatalf("unexpected code: %s", got.Code)
	}
	if got.Attempts != 0 {
		t.Fatalf("unexpected attempts: %d", got.Attempts)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at: %v", got.CreatedAt)
	}
	if !got.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expires_at: %v", got.ExpiresAt)
	}

	remaining := server.TTL("auth:otp:sms:+998901234567")
	if remaining <= 0 || remaining > 5*time.Minute {
		t.Fatalf("expected ttl within (0, 5m], got %v", remaining)
	}
}

func TestOtpRepository_ReplaceResetsAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := repo.Replace(ctx, testChallenge(now), 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := repo.IncrementAttempts(ctx, domain.OtpChannelSms, "+998901234567"); err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
	}

	replacement := testChallenge(now)
	replacement.Code = "654321"
	if err := repo.Replace(ctx, replacement, 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	got, err := repo.Fetch(ctx, domain.OtpChannelSms, "+998901234567")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.Code != "654321" {
		t.Fatalf("expected replacement code, got %s", got.Code)
	}
	if got.Attempts != 0 {
		t.Fatalf("expected attempts reset to 0, got %d", got.Attempts)
	}
}

func TestOtpRepository_IncrementAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := repo.Replace(ctx, testChallenge(now), 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	for want := 1; want <= 5; want++ {
		got, err := repo.IncrementAttempts(ctx, domain.OtpChannelSms, "+998901234567")
		if err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected attempt count %d, got %d", want, got)
		}
	}
}

func TestOtpRepository_IncrementAttemptsRearmsExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Seed the hash without a TTL, the state a lost expiry leaves behind.
	key := "auth:otp:sms:+998901234567"
	server.HSet(key,
		"code", "123456",
		"created_at", strconv.FormatInt(now.Unix(), 10),
		"expires_at", strconv.FormatInt(now.Add(5*time.Minute).Unix(), 10),
		"attempts", "0",
	)
	if server.TTL(key) != 0 {
		t.Fatalf("expected seeded key without ttl, got %v", server.TTL(key))
	}

	if _, err := repo.IncrementAttempts(ctx, domain.OtpChannelSms, "+998901234567"); err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}

	remaining := server.TTL(key)
	if remaining <= 0 || remaining > 5*time.Minute {
		t.Fatalf("expected increment to re-arm expiry, got ttl %v", remaining)
	}
}

func TestOtpRepository_IncrementAttemptsMissingChallenge(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	_, err := repo.IncrementAttempts(context.Background(), domain.OtpChannelSms, "+998900000000")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOtpRepository_SpendIsSingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := repo.Replace(ctx, testChallenge(now), 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	won, err := repo.Spend(ctx, domain.OtpChannelSms, "+998901234567")
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}
	if !won {
		t.Fatal("expected first spend to win")
	}

	won, err = repo.Spend(ctx, domain.OtpChannelSms, "+998901234567")
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}
	if won {
		t.Fatal("expected second spend to lose")
	}

	if _, err := repo.Fetch(ctx, domain.OtpChannelSms, "+998901234567"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after spend, got %v", err)
	}
}

func TestOtpRepository_ChannelsAreIsolated(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOtpRepository(client, "auth:otp")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	smsChallenge := testChallenge(now)
	callChallenge := testChallenge(now)
	callChallenge.Channel = domain.OtpChannelCall
	callChallenge.Code = "999000"

	if err := repo.Replace(ctx, smsChallenge, 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if err := repo.Replace(ctx, callChallenge, 5*time.Minute); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	sms, err := repo.Fetch(ctx, domain.OtpChannelSms, "+998901234567")
	if err != nil {
		t.Fatalf("Fetch sms returned error: %v", err)
	}
	call, err := repo.Fetch(ctx, domain.OtpChannelCall, "+998901234567")
	if err != nil {
		t.Fatalf("Fetch call returned error: %v", err)
	}

	if sms.Code == call.Code {
		t.Fatal("expected per-channel challenges to be independent")
	}
}
