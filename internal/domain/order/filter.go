package order

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

var _ Repository = (*PurchaseFilter)(nil)

// PurchaseFilter fronts a Repository with a bloom filter of purchased
// (buyer, item) pairs so that the common "not purchased yet" answer skips
// storage. The filter only sees appends made through this process; run a
// single writer or disable it.
type PurchaseFilter struct {
	next Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewPurchaseFilter wraps next with a filter sized for capacity pairs at
// the given false positive rate. Call Warm before serving queries.
func NewPurchaseFilter(next Repository, capacity uint, fpRate float64) *PurchaseFilter {
	return &PurchaseFilter{
		next:   next,
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

func purchaseKey(buyer, itemID string) string {
	return buyer + "\x00" + itemID
}

// Warm loads every stored purchase into the filter.
func (f *PurchaseFilter) Warm(ctx context.Context) (int, error) {
	var n int
	err := f.next.Purchases(ctx, func(buyer, itemID string) error {
		f.add(buyer, itemID)
		n++
		return nil
	})
	if err != nil {
		return n, errors.Wrap(err, "warm purchase filter")
	}
	return n, nil
}

func (f *PurchaseFilter) add(buyer, itemID string) {
	f.mu.Lock()
	f.filter.AddString(purchaseKey(buyer, itemID))
	f.mu.Unlock()
}

// Append stores o and records it in the filter.
func (f *PurchaseFilter) Append(ctx context.Context, o *Order) error {
	if err := f.next.Append(ctx, o); err != nil {
		return err
	}
	f.add(o.Buyer, o.ItemID)
	return nil
}

// HasPurchased answers false without touching storage when the filter
// rules the pair out.
func (f *PurchaseFilter) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	f.mu.RLock()
	maybe := f.filter.TestString(purchaseKey(buyer, itemID))
	f.mu.RUnlock()

	if !maybe {
		return false, nil
	}
	return f.next.HasPurchased(ctx, buyer, itemID)
}

// Purchases delegates to the wrapped repository.
func (f *PurchaseFilter) Purchases(ctx context.Context, fn func(buyer, itemID string) error) error {
	return f.next.Purchases(ctx, fn)
}
