package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/repository"
)

// otpStoreMock mirrors the Redis hash semantics in memory.
type otpStoreMock struct {
	mu         sync.Mutex
	challenges map[string]*domain.OtpChallenge
}

func newOtpStoreMock() *otpStoreMock {
	return &otpStoreMock{challenges: make(map[string]*domain.OtpChallenge)}
}

func otpKey(channel domain.OtpChannel, target string) string {
	return string(channel) + ":" + target
}

func (m *otpStoreMock) Replace(_ context.Context, challenge domain.OtpChallenge, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := challenge
	m.challenges[otpKey(challenge.Channel, challenge.Target)] = &stored
	return nil
}

func (m *otpStoreMock) Fetch(_ context.Context, channel domain.OtpChannel, target string) (*domain.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[otpKey(channel, target)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (m *otpStoreMock) IncrementAttempts(_ context.Context, channel domain.OtpChannel, target string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[otpKey(channel, target)]
	if !ok {
		return 0, repository.ErrNotFound
	}
	challenge.Attempts++
	return challenge.Attempts, nil
}

func (m *otpStoreMock) Spend(_ context.Context, channel domain.OtpChannel, target string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := otpKey(channel, target)
	if _, ok := m.challenges[key]; !ok {
		return false, nil
	}
	delete(m.challenges, key)
	return true, nil
}

var _ port.OtpStore = (*otpStoreMock)(nil)

// dispatcherMock records every dispatched code.
type dispatcherMock struct {
	mu    sync.Mutex
	sent  []string
	codes []string
	err   error
}

func (m *dispatcherMock) Send(_ context.Context, channel domain.OtpChannel, target, code string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, string(channel)+":"+target)
	m.codes = append(m.codes, code)
	return nil
}

func (m *dispatcherMock) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

var _ port.ChannelDispatcher = (*dispatcherMock)(nil)

// rateLimitStoreMock drives the sliding-window check deterministically.
type rateLimitStoreMock struct {
	count       int
	oldest      time.Time
	hasOldest   bool
	trimCalls   int
	recordCalls int
}

func (m *rateLimitStoreMock) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return m.count, nil
}

func (m *rateLimitStoreMock) RecordAttempt(context.Context, string, time.Time) error {
	m.recordCalls++
	return nil
}

func (m *rateLimitStoreMock) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	m.trimCalls++
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return m.oldest, m.hasOldest, nil
}

var _ port.RateLimitStore = (*rateLimitStoreMock)(nil)

// identityRepoMock keeps identities and links in maps.
type identityRepoMock struct {
	mu         sync.Mutex
	byID       map[string]domain.Identity
	byPhone    map[string]string
	byEmail    map[string]string
	links      map[string]domain.SsoLink
	createErr  error
	linkCreate int
}

func newIdentityRepoMock() *identityRepoMock {
	return &identityRepoMock{
		byID:    make(map[string]domain.Identity),
		byPhone: make(map[string]string),
		byEmail: make(map[string]string),
		links:   make(map[string]domain.SsoLink),
	}
}

func (m *identityRepoMock) add(identity domain.Identity) {
	m.byID[identity.ID] = identity
	if identity.Phone != nil {
		m.byPhone[*identity.Phone] = identity.ID
	}
	if identity.Email != nil {
		m.byEmail[*identity.Email] = identity.ID
	}
}

func (m *identityRepoMock) Create(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.add(identity)
	return nil
}

func (m *identityRepoMock) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

func (m *identityRepoMock) GetByPhone(_ context.Context, phone string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	identity := m.byID[id]
	return &identity, nil
}

func (m *identityRepoMock) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	identity := m.byID[id]
	return &identity, nil
}

func (m *identityRepoMock) GetLink(_ context.Context, provider, providerUserID string) (*domain.SsoLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[provider+":"+providerUserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &link, nil
}

func (m *identityRepoMock) CreateLink(_ context.Context, link domain.SsoLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkCreate++
	m.links[link.Provider+":"+link.ProviderUserID] = link
	return nil
}

func (m *identityRepoMock) ListLinks(_ context.Context, identityID string) ([]domain.SsoLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SsoLink
	for _, link := range m.links {
		if link.IdentityID == identityID {
			out = append(out, link)
		}
	}
	return out, nil
}

var _ port.IdentityRepository = (*identityRepoMock)(nil)

// tokenRepoMock keeps refresh token rows in a map keyed by hash.
type tokenRepoMock struct {
	mu      sync.Mutex
	byHash  map[string]*domain.RefreshToken
	revokes []string
}

func newTokenRepoMock() *tokenRepoMock {
	return &tokenRepoMock{byHash: make(map[string]*domain.RefreshToken)}
}

func (m *tokenRepoMock) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := token
	m.byHash[token.TokenHash] = &stored
	return nil
}

func (m *tokenRepoMock) GetRefreshTokenByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (m *tokenRepoMock) MarkRefreshTokenUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.byHash {
		if token.ID != id {
			continue
		}
		if token.UsedAt != nil || token.RevokedAt != nil {
			return false, nil
		}
		at := usedAt
		token.UsedAt = &at
		return true, nil
	}
	return false, nil
}

func (m *tokenRepoMock) RevokeFamily(_ context.Context, familyID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokes = append(m.revokes, reason)
	count := 0
	now := time.Now().UTC()
	for _, token := range m.byHash {
		if token.FamilyID == familyID && token.RevokedAt == nil {
			at := now
			token.RevokedAt = &at
			count++
		}
	}
	return count, nil
}

func (m *tokenRepoMock) RevokeAllForUser(_ context.Context, userID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokes = append(m.revokes, reason)
	count := 0
	now := time.Now().UTC()
	for _, token := range m.byHash {
		if token.UserID == userID && token.RevokedAt == nil {
			at := now
			token.RevokedAt = &at
			count++
		}
	}
	return count, nil
}

var _ port.TokenRepository = (*tokenRepoMock)(nil)

// eventPublisherMock records published audit events.
type eventPublisherMock struct {
	mu       sync.Mutex
	created  []domain.IdentityCreatedEvent
	linked   []domain.IdentityLinkedEvent
	reuses   []domain.TokenReuseDetectedEvent
	revokeds []domain.TokensRevokedEvent
}

func (m *eventPublisherMock) PublishIdentityCreated(_ context.Context, event domain.IdentityCreatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, event)
	return nil
}

func (m *eventPublisherMock) PublishIdentityLinked(_ context.Context, event domain.IdentityLinkedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linked = append(m.linked, event)
	return nil
}

func (m *eventPublisherMock) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reuses = append(m.reuses, event)
	return nil
}

func (m *eventPublisherMock) PublishTokensRevoked(_ context.Context, event domain.TokensRevokedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeds = append(m.revokeds, event)
	return nil
}

var _ port.EventPublisher = (*eventPublisherMock)(nil)
