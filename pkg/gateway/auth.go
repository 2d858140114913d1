package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth guards destructive requests with a static bearer token
type TokenAuth struct {
	token string
}

// NewTokenAuth creates a token authenticator. An empty token disables
// the check.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// Enabled reports whether a token is configured
func (a *TokenAuth) Enabled() bool {
	return a.token != ""
}

// Authorize checks the request's "Authorization: Bearer" header
func (a *TokenAuth) Authorize(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}

	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}

	// Use constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(presented)) == 1
}
