// Package token caches the short-lived access credential the platform
// issues per account, and serializes credential refresh through a
// tenant-scoped lock so concurrent callers trigger at most one issuance
// call per lock window.
package token

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Tenant identifies one configured integration/account.
type Tenant uint64

// ErrLockTimeout is returned when the refresh lock could not be acquired
// within the configured attempt bound. Callers may retry at a higher layer;
// the store never retries past the bound itself.
var ErrLockTimeout = errors.New("credential refresh lock timeout")

// Credential is a bearer token plus its absolute expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCredential builds a credential from an issuance response's relative TTL.
func NewCredential(token string, ttlSeconds int64) Credential {
	return Credential{
		Token:     token,
		ExpiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
}

// RemainTTL returns the time left before expiry, floored at zero.
func (c Credential) RemainTTL() time.Duration {
	ttl := time.Until(c.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Expired reports whether the credential may no longer be used. An expired
// credential is treated identically to an absent one.
func (c Credential) Expired() bool {
	return c.RemainTTL() <= 0
}

// Store is the credential cache contract. Implementations guarantee that
// Get never returns an expired credential and that Lock admits at most one
// holder per tenant at a time.
type Store interface {
	// Get returns the cached credential, or nil when absent or expired.
	Get(ctx context.Context, tenant Tenant) (*Credential, error)
	// Set stores a credential; nil deletes the cache entry.
	Set(ctx context.Context, tenant Tenant, cred *Credential) error
	// Lock acquires the tenant's exclusive refresh lock, blocking with
	// bounded retries. Fails with ErrLockTimeout when the bound is hit.
	Lock(ctx context.Context, tenant Tenant) (*Guard, error)
}

// Guard represents a held refresh lock. Release is idempotent and does not
// return until the lock's cleanup (key delete, renewal-loop exit) has run.
type Guard struct {
	once    sync.Once
	release func()
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release drops the lock.
func (g *Guard) Release() {
	g.once.Do(g.release)
}
