package credentials

import (
	"net/http"
	"time"
)

// RefreshMargin is how long before expiry a credential stops being served from cache.
const RefreshMargin = 5 * time.Minute

type Kind string

const (
	KindBearer Kind = "bearer"
	KindAPIKey Kind = "api-key"
)

// Credential is an access credential for the model endpoint. A zero
// ExpiresOn means the credential never expires.
type Credential struct {
	Token     string
	Kind      Kind
	ExpiresOn time.Time
}

// Valid reports whether the credential can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	if c.ExpiresOn.IsZero() {
		return true
	}
	return now.Before(c.ExpiresOn.Add(-RefreshMargin))
}

// TTL returns the time left until expiry, or zero for non-expiring credentials.
func (c Credential) TTL(now time.Time) time.Duration {
	if c.ExpiresOn.IsZero() {
		return 0
	}
	return c.ExpiresOn.Sub(now)
}

// Apply sets the authorization header matching the credential kind.
func (c Credential) Apply(req *http.Request) {
	switch c.Kind {
	case KindAPIKey:
		req.Header.Set("api-key", c.Token)
	default:
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
