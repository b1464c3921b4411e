package app

import (
	"strings"
	"time"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/auth/providers"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultLoginRequests    = 10
	defaultLoginWindow      = time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// LoginRateLimit returns the request budget and window for the login endpoint.
func (c AuthConfig) LoginRateLimit() (int, time.Duration) {
	requests := c.RateLimit.Requests
	if requests <= 0 {
		requests = defaultLoginRequests
	}
	window := c.RateLimit.Window
	if window <= 0 {
		window = defaultLoginWindow
	}
	return requests, window
}

// Login rate limit counter backends.
const (
	RateStoreMemory   = "memory"
	RateStoreDatabase = "database"
)

// LoginRateStore returns the normalised counter backend, defaulting to memory.
func (c AuthConfig) LoginRateStore() string {
	store := strings.ToLower(strings.TrimSpace(c.RateLimit.Store))
	if store == "" {
		return RateStoreMemory
	}
	return store
}

// Policy converts AdmissionConfig into the gating policy. Unset gated roles keep the defaults,
// while an explicitly empty list gates only users flagged requires_approval. An empty operator
// list keeps the defaults so that requests can always be decided.
func (c AdmissionConfig) Policy() admission.Policy {
	policy := admission.DefaultPolicy()
	policy.Enabled = c.Enabled
	if c.GatedRoles != nil {
		policy.GatedRoles = c.GatedRoles
	}
	if len(c.OperatorRoles) > 0 {
		policy.OperatorRoles = c.OperatorRoles
	}
	return policy
}

// TTL returns how long a request may wait for a decision.
func (c AdmissionConfig) TTL() time.Duration {
	if c.RequestTTL <= 0 {
		return admission.DefaultRequestTTL
	}
	return c.RequestTTL
}
