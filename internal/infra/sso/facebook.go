package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0/me"

// FacebookProvider verifies Facebook access tokens via the Graph API.
// Facebook does not vouch for email verification, so EmailVerified stays
// false and auto-linking never applies to Facebook profiles.
type FacebookProvider struct {
	client   *http.Client
	endpoint string
}

func NewFacebookProvider() *FacebookProvider {
	return &FacebookProvider{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: facebookGraphURL,
	}
}

func (p *FacebookProvider) Name() string {
	return "facebook"
}

type facebookProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (p *FacebookProvider) VerifyToken(ctx context.Context, providerToken string) (*domain.SsoProfile, error) {
	endpoint := p.endpoint + "?fields=id,name,email&access_token=" + url.QueryEscape(providerToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call graph api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook rejected token: status %d", resp.StatusCode)
	}

	var profile facebookProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}

	if profile.ID == "" {
		return nil, fmt.Errorf("facebook profile missing id")
	}

	out := &domain.SsoProfile{
		Provider:       p.Name(),
		ProviderUserID: profile.ID,
	}
	if email := strings.TrimSpace(profile.Email); email != "" {
		out.Email = &email
	}
	if name := strings.TrimSpace(profile.Name); name != "" {
		out.Name = &name
	}

	return out, nil
}

var _ port.SsoProvider = (*FacebookProvider)(nil)
