// Package leases records which client currently holds the controller
// mastership. The ledger is advisory bookkeeping alongside the controller's
// own exclusion primitive: it gives operators a queryable answer to "who has
// write authority right now" and a TTL so a crashed bridge cannot wedge the
// record forever.
package leases

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

// Lease captures the current holder of an exclusive resource.
type Lease struct {
	Resource  string    `json:"resource"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store manages exclusive, TTL-bounded lease records.
type Store interface {
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lease, bool, error)
	Release(ctx context.Context, resource, owner string) (bool, error)
	Get(ctx context.Context, resource string) (*Lease, error)
}

// MemoryStore is an in-process Store for tests and deployments without Redis.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]*Lease
}

// NewMemoryStore constructs an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]*Lease)}
}

// Acquire grants the lease when it is free, expired, or already owned by
// the caller (re-acquisition refreshes the TTL).
func (s *MemoryStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lease, bool, error) {
	if s == nil {
		return nil, false, errors.New("lease store unavailable")
	}
	if resource == "" || owner == "" {
		return nil, false, errors.New("resource and owner required")
	}
	ttl = normalizeTTL(ttl)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[resource]; ok && cur.Owner != owner && now.Before(cur.ExpiresAt) {
		return nil, false, nil
	}
	lease := &Lease{
		Resource:  resource,
		Owner:     owner,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.leases[resource] = lease
	out := *lease
	return &out, true, nil
}

// Release clears the record when the caller owns it. Releasing a lease the
// caller does not own is a no-op reported as ok=false.
func (s *MemoryStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	if s == nil {
		return false, errors.New("lease store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leases[resource]
	if !ok {
		return true, nil
	}
	if cur.Owner != owner {
		return false, nil
	}
	delete(s.leases, resource)
	return true, nil
}

// Get returns the current lease or nil when the resource is free.
func (s *MemoryStore) Get(ctx context.Context, resource string) (*Lease, error) {
	if s == nil {
		return nil, errors.New("lease store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leases[resource]
	if !ok || time.Now().UTC().After(cur.ExpiresAt) {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
