// Package auth guards the admin endpoints
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth accepts requests carrying one of its secrets as a bearer token
type BearerAuth struct {
	secrets map[string]struct{}
}

// NewBearerAuth creates an authenticator for the given secrets. Empty
// secrets are ignored.
func NewBearerAuth(secrets ...string) *BearerAuth {
	a := &BearerAuth{secrets: make(map[string]struct{})}
	for _, s := range secrets {
		a.AddSecret(s)
	}
	return a
}

// AddSecret adds a new valid secret
func (a *BearerAuth) AddSecret(secret string) {
	if secret = strings.TrimSpace(secret); secret != "" {
		a.secrets[secret] = struct{}{}
	}
}

// RemoveSecret revokes a secret
func (a *BearerAuth) RemoveSecret(secret string) {
	delete(a.secrets, secret)
}

// IsValid checks if token is one of the secrets
func (a *BearerAuth) IsValid(token string) bool {
	if token == "" {
		return false
	}
	for secret := range a.secrets {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// Authorized reports whether r carries "Authorization: Bearer <secret>"
func (a *BearerAuth) Authorized(r *http.Request) bool {
	token, ok := Token(r)
	return ok && a.IsValid(token)
}

// Token extracts the bearer token from r
func Token(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
