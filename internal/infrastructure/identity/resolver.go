// Package identity derives the cache-isolation owner id from an opaque
// bearer credential. The credential is treated as a JWT-shaped token whose
// payload carries a "sub" claim; the token is never verified here, only
// parsed, since the owner id is an isolation key rather than an
// authorization decision.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

type Resolver struct {
	token func() string
}

// NewResolver wires a token source, typically the same credential the
// remote client sends. A nil source resolves every caller into the shared
// namespace.
func NewResolver(token func() string) *Resolver {
	return &Resolver{token: token}
}

// CurrentOwnerID returns the credential's subject claim, or "" on any
// resolution failure. "" means the shared, non-isolated namespace.
func (r *Resolver) CurrentOwnerID() string {
	if r == nil || r.token == nil {
		return ""
	}
	return ownerFromToken(r.token())
}

type tokenClaims struct {
	Subject string `json:"sub"`
}

func ownerFromToken(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return ""
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return strings.TrimSpace(claims.Subject)
}
