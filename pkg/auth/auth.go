// Package auth provides the credentials the item store client sends.
package auth

import (
	"context"
	"fmt"
	"net/http"
)

// Provider defines the interface for authentication providers.
type Provider interface {
	// Authenticate adds authentication headers to the HTTP request.
	Authenticate(req *http.Request) error

	// Refresh refreshes authentication credentials if applicable.
	// For static keys and tokens this is a no-op.
	Refresh(ctx context.Context) error
}

// None sends no credentials.
type None struct{}

func (None) Authenticate(*http.Request) error { return nil }
func (None) Refresh(context.Context) error    { return nil }

// Config selects a provider.
type Config struct {
	Mode         string // "none", "apikey", "apitoken" or "oauth"
	APIKey       string // X-API-Key value, or a Bearer token in apitoken mode
	TokenURL     string // OAuth client credentials token endpoint
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// New creates the provider described by cfg.
func New(cfg Config) (Provider, error) {
	switch cfg.Mode {
	case "", "none":
		return None{}, nil
	case "apikey":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("APIKey is required for apikey mode")
		}
		// tokens with the API token prefix always go as Bearer
		if IsAPIToken(cfg.APIKey) {
			return NewAPITokenProvider(cfg.APIKey), nil
		}
		return NewAPIKeyProvider(cfg.APIKey), nil
	case "apitoken":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("APIKey is required for apitoken mode")
		}
		return NewAPITokenProvider(cfg.APIKey), nil
	case "oauth":
		if cfg.TokenURL == "" || cfg.ClientID == "" {
			return nil, fmt.Errorf("TokenURL and ClientID are required for oauth mode")
		}
		return NewClientCredentialsProvider(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes...), nil
	default:
		return nil, fmt.Errorf("invalid auth mode: %s (must be 'none', 'apikey', 'apitoken', or 'oauth')", cfg.Mode)
	}
}
