package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthProvider authenticates with tokens from an oauth2.TokenSource.
// Tokens are cached until they expire.
type OAuthProvider struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	newSource func(ctx context.Context) oauth2.TokenSource
}

// NewTokenSourceProvider wraps an existing token source. Refresh drops the
// cached token but can only obtain a new one if src does.
func NewTokenSourceProvider(src oauth2.TokenSource) *OAuthProvider {
	return &OAuthProvider{
		src:       oauth2.ReuseTokenSource(nil, src),
		newSource: func(context.Context) oauth2.TokenSource { return src },
	}
}

// NewClientCredentialsProvider uses the OAuth 2.0 client credentials grant.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes ...string) *OAuthProvider {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return &OAuthProvider{
		src:       cfg.TokenSource(context.Background()),
		newSource: func(ctx context.Context) oauth2.TokenSource { return cfg.TokenSource(ctx) },
	}
}

// Authenticate adds the Bearer token to the request, fetching one if the
// cached token expired.
func (p *OAuthProvider) Authenticate(req *http.Request) error {
	p.mu.Lock()
	src := p.src
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// Refresh discards the cached token and fetches a new one.
func (p *OAuthProvider) Refresh(ctx context.Context) error {
	src := oauth2.ReuseTokenSource(nil, p.newSource(context.WithoutCancel(ctx)))
	if _, err := src.Token(); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
	return nil
}
