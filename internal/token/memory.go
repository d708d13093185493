package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process credential cache for single-instance
// deployments. A per-tenant semaphore stands in for the distributed lock;
// the Get/Set/Lock contract is identical to the redis backend.
type MemoryStore struct {
	// RetryInterval and MaxAttempts bound Lock the same way the
	// distributed backend is bounded.
	RetryInterval time.Duration
	MaxAttempts   int

	mu    sync.RWMutex
	creds map[Tenant]Credential

	semMu sync.Mutex
	sems  map[Tenant]chan struct{}
}

// NewMemoryStore creates an in-process store with the default lock bounds.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		RetryInterval: time.Second,
		MaxAttempts:   100,
		creds:         make(map[Tenant]Credential),
		sems:          make(map[Tenant]chan struct{}),
	}
}

// Get returns the cached credential, treating expired entries as absent.
func (s *MemoryStore) Get(_ context.Context, tenant Tenant) (*Credential, error) {
	s.mu.RLock()
	cred, ok := s.creds[tenant]
	s.mu.RUnlock()

	if !ok || cred.Expired() {
		return nil, nil
	}
	return &cred, nil
}

// Set stores the credential; nil deletes.
func (s *MemoryStore) Set(_ context.Context, tenant Tenant, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred == nil {
		delete(s.creds, tenant)
		return nil
	}
	s.creds[tenant] = *cred
	return nil
}

// Lock acquires the tenant's refresh semaphore, polling with the configured
// interval up to MaxAttempts before failing with ErrLockTimeout.
func (s *MemoryStore) Lock(ctx context.Context, tenant Tenant) (*Guard, error) {
	sem := s.semaphore(tenant)

	for attempt := 0; ; attempt++ {
		select {
		case sem <- struct{}{}:
			return newGuard(func() { <-sem }), nil
		default:
		}
		if attempt+1 >= s.MaxAttempts {
			return nil, ErrLockTimeout
		}
		select {
		case sem <- struct{}{}:
			return newGuard(func() { <-sem }), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.RetryInterval):
		}
	}
}

func (s *MemoryStore) semaphore(tenant Tenant) chan struct{} {
	s.semMu.Lock()
	defer s.semMu.Unlock()
	sem, ok := s.sems[tenant]
	if !ok {
		sem = make(chan struct{}, 1)
		s.sems[tenant] = sem
	}
	return sem
}
