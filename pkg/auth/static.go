package auth

import (
	"context"
	"net/http"
	"strings"
)

// APITokenPrefix marks personal access tokens issued by the item store.
const APITokenPrefix = "ist_"

// IsAPIToken reports whether key looks like an item store access token.
func IsAPIToken(key string) bool {
	return len(key) > len(APITokenPrefix) && strings.HasPrefix(key, APITokenPrefix)
}

// static sends a fixed header value. It cannot be refreshed.
type static struct {
	header string
	value  string
}

func (s static) Authenticate(req *http.Request) error {
	req.Header.Set(s.header, s.value)
	return nil
}

func (static) Refresh(context.Context) error { return nil }

// APIKeyProvider sends the key in X-API-Key, which the store server checks
// against its configured API_KEY.
type APIKeyProvider struct{ static }

func NewAPIKeyProvider(apiKey string) *APIKeyProvider {
	return &APIKeyProvider{static{header: "X-API-Key", value: apiKey}}
}

// APITokenProvider sends an access token as a Bearer token.
type APITokenProvider struct{ static }

func NewAPITokenProvider(token string) *APITokenProvider {
	return &APITokenProvider{static{header: "Authorization", value: "Bearer " + token}}
}
