package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func TestIdentityService_ResolveByPhoneCreatesOnFirstLogin(t *testing.T) {
	repo := newIdentityRepoMock()
	events := &eventPublisherMock{}
	svc := NewIdentityService(repo, events, nil)

	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result, err := svc.ResolveByPhone(context.Background(), "+998901234567")
	if err != nil {
		t.Fatalf("ResolveByPhone returned error: %v", err)
	}
	if !result.Created {
		t.Fatal("expected identity to be created on first login")
	}
	if result.Identity.Phone == nil || *result.Identity.Phone != "+998901234567" {
		t.Fatalf("unexpected phone on identity: %v", result.Identity.Phone)
	}
	if result.Identity.Status != domain.IdentityStatusActive {
		t.Fatalf("unexpected status: %s", result.Identity.Status)
	}

	if len(events.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(events.created))
	}
	if events.created[0].Method != "phone_otp" {
		t.Fatalf("unexpected method on event: %s", events.created[0].Method)
	}

	// A second login with the same number resolves to the same identity.
	again, err := svc.ResolveByPhone(context.Background(), "+998901234567")
	if err != nil {
		t.Fatalf("ResolveByPhone returned error: %v", err)
	}
	if again.Created {
		t.Fatal("expected existing identity to be reused")
	}
	if again.Identity.ID != result.Identity.ID {
		t.Fatalf("expected same identity, got %s and %s", again.Identity.ID, result.Identity.ID)
	}
	if len(events.created) != 1 {
		t.Fatalf("expected no second created event, got %d", len(events.created))
	}
}

func TestIdentityService_ResolveByPhoneBlockedIdentity(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{
		ID:     "user-blocked",
		Phone:  strPtr("+998901234567"),
		Status: domain.IdentityStatusBlocked,
	})
	svc := NewIdentityService(repo, nil, nil)

	_, err := svc.ResolveByPhone(context.Background(), "+998901234567")
	if !errors.Is(err, ErrIdentityBlocked) {
		t.Fatalf("expected ErrIdentityBlocked, got %v", err)
	}
}

func TestIdentityService_ResolveSsoExistingLink(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{ID: "user-1", Status: domain.IdentityStatusActive})
	repo.links["google:goog-1"] = domain.SsoLink{
		Provider:       "google",
		ProviderUserID: "goog-1",
		IdentityID:     "user-1",
	}
	svc := NewIdentityService(repo, &eventPublisherMock{}, nil)

	result, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-1",
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if result.Created || result.AutoLinked {
		t.Fatal("existing link must resolve without creating or linking")
	}
	if result.Identity.ID != "user-1" {
		t.Fatalf("unexpected identity: %s", result.Identity.ID)
	}
}

func TestIdentityService_ResolveSsoAutoLinksVerifiedEmail(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{
		ID:     "user-1",
		Email:  strPtr("rider@example.com"),
		Status: domain.IdentityStatusActive,
	})
	events := &eventPublisherMock{}
	svc := NewIdentityService(repo, events, nil)

	result, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-1",
		Email:          strPtr("rider@example.com"),
		EmailVerified:  true,
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if !result.AutoLinked {
		t.Fatal("expected auto-link for provider-verified email")
	}
	if result.Identity.ID != "user-1" {
		t.Fatalf("unexpected identity: %s", result.Identity.ID)
	}

	if len(events.linked) != 1 {
		t.Fatalf("expected one linked event, got %d", len(events.linked))
	}
	if !events.linked[0].AutoLink {
		t.Fatal("linked event must be flagged as auto-link")
	}

	// The link persists: the next SSO login resolves directly.
	again, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-1",
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if again.AutoLinked || again.Created {
		t.Fatal("expected direct resolution via stored link")
	}
}

func TestIdentityService_ResolveSsoAutoLinksVerifiedPhone(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{
		ID:     "user-1",
		Phone:  strPtr("+998901234567"),
		Status: domain.IdentityStatusActive,
	})
	events := &eventPublisherMock{}
	svc := NewIdentityService(repo, events, nil)

	result, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-7",
		Phone:          strPtr("+998901234567"),
		PhoneVerified:  true,
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if result.Created {
		t.Fatal("verified phone matching an existing identity must not create a duplicate")
	}
	if !result.AutoLinked {
		t.Fatal("expected auto-link for provider-verified phone")
	}
	if result.Identity.ID != "user-1" {
		t.Fatalf("unexpected identity: %s", result.Identity.ID)
	}

	if len(events.linked) != 1 {
		t.Fatalf("expected one linked event, got %d", len(events.linked))
	}
	if !events.linked[0].AutoLink {
		t.Fatal("linked event must be flagged as auto-link")
	}

	// An unverified phone claim never participates in matching.
	fresh, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-8",
		Phone:          strPtr("+998901234567"),
		PhoneVerified:  false,
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if !fresh.Created {
		t.Fatal("unverified phone claim must fall through to creation")
	}
	if fresh.Identity.Phone != nil {
		t.Fatal("unverified phone must not be persisted on the new identity")
	}
}

func TestIdentityService_ResolveSsoUnverifiedEmailConflicts(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{
		ID:     "user-1",
		Email:  strPtr("rider@example.com"),
		Status: domain.IdentityStatusActive,
	})
	svc := NewIdentityService(repo, nil, nil)

	_, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "facebook",
		ProviderUserID: "fb-1",
		Email:          strPtr("rider@example.com"),
		EmailVerified:  false,
	})

	var conflict *LinkConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected LinkConflictError, got %v", err)
	}
	if conflict.Provider != "facebook" {
		t.Fatalf("unexpected provider on conflict: %s", conflict.Provider)
	}
	if repo.linkCreate != 0 {
		t.Fatal("no link must be created on conflict")
	}
}

func TestIdentityService_ResolveSsoCreatesFreshIdentity(t *testing.T) {
	repo := newIdentityRepoMock()
	events := &eventPublisherMock{}
	svc := NewIdentityService(repo, events, nil)

	result, err := svc.ResolveSso(context.Background(), domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-9",
		Email:          strPtr("new-rider@example.com"),
		EmailVerified:  true,
		Name:           strPtr("New Rider"),
	})
	if err != nil {
		t.Fatalf("ResolveSso returned error: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a fresh identity")
	}
	if result.Identity.Email == nil || *result.Identity.Email != "new-rider@example.com" {
		t.Fatalf("unexpected email: %v", result.Identity.Email)
	}

	if len(events.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(events.created))
	}
	if events.created[0].Method != "google" {
		t.Fatalf("unexpected method: %s", events.created[0].Method)
	}
	if len(events.linked) != 1 {
		t.Fatalf("expected one linked event, got %d", len(events.linked))
	}
	if events.linked[0].AutoLink {
		t.Fatal("first-contact link must not be flagged auto-link")
	}
}

func TestIdentityService_LinkRejectsDuplicate(t *testing.T) {
	repo := newIdentityRepoMock()
	repo.add(domain.Identity{ID: "user-1", Status: domain.IdentityStatusActive})
	repo.links["google:goog-1"] = domain.SsoLink{
		Provider:       "google",
		ProviderUserID: "goog-1",
		IdentityID:     "user-2",
	}
	svc := NewIdentityService(repo, nil, nil)

	err := svc.Link(context.Background(), "user-1", domain.SsoProfile{
		Provider:       "google",
		ProviderUserID: "goog-1",
	})
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
}
