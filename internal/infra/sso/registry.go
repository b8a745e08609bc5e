package sso

import (
	"fmt"
	"strings"

	"github.com/obidovbek/ubergo-sub004/internal/core/port"
)

// Registry maps provider names to verified SsoProvider implementations.
type Registry struct {
	providers map[string]port.SsoProvider
}

func NewRegistry(providers ...port.SsoProvider) *Registry {
	r := &Registry{providers: make(map[string]port.SsoProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get resolves a provider by name.
func (r *Registry) Get(name string) (port.SsoProvider, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported sso provider %q", name)
	}
	return provider, nil
}
