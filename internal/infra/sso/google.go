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

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleProvider verifies Google ID tokens against the tokeninfo endpoint.
type GoogleProvider struct {
	clientID string
	client   *http.Client
	endpoint string
}

func NewGoogleProvider(clientID string) *GoogleProvider {
	return &GoogleProvider{
		clientID: clientID,
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: googleTokenInfoURL,
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

type googleTokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *GoogleProvider) VerifyToken(ctx context.Context, providerToken string) (*domain.SsoProfile, error) {
	endpoint := p.endpoint + "?id_token=" + url.QueryEscape(providerToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tokeninfo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google rejected token: status %d", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	if p.clientID != "" && info.Aud != p.clientID {
		return nil, fmt.Errorf("google token audience mismatch")
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("google token missing subject")
	}

	profile := &domain.SsoProfile{
		Provider:       p.Name(),
		ProviderUserID: info.Sub,
		EmailVerified:  info.EmailVerified == "true",
	}
	if email := strings.TrimSpace(info.Email); email != "" {
		profile.Email = &email
	}
	if name := strings.TrimSpace(info.Name); name != "" {
		profile.Name = &name
	}

	return profile, nil
}

var _ port.SsoProvider = (*GoogleProvider)(nil)
