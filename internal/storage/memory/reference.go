// Package memory provides in-process storage used when no external store
// is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/emoji-storefront/internal/domain/checkout"
)

var _ checkout.ReferenceRegistry = (*ReferenceRegistry)(nil)

type claim struct {
	owner     string
	expiresAt time.Time
}

// ReferenceRegistry remembers issued order identifiers for a fixed TTL.
type ReferenceRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	claims map[string]claim
}

// NewReferenceRegistry creates a registry whose claims expire after ttl.
func NewReferenceRegistry(ttl time.Duration) *ReferenceRegistry {
	return &ReferenceRegistry{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]claim),
	}
}

// Claim binds reference to owner unless another owner holds it.
func (r *ReferenceRegistry) Claim(_ context.Context, reference, owner string) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[reference]; ok && now.Before(c.expiresAt) {
		return c.owner == owner, nil
	}
	r.claims[reference] = claim{owner: owner, expiresAt: now.Add(r.ttl)}
	return true, nil
}

// Len reports the number of tracked claims, expired ones included.
func (r *ReferenceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

func (r *ReferenceRegistry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ref, c := range r.claims {
		if !now.Before(c.expiresAt) {
			delete(r.claims, ref)
		}
	}
}

// Run evicts expired claims every interval until ctx is cancelled.
func (r *ReferenceRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}
