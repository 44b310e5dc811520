// Package catalog holds the read-only list of items the storefront sells.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the finest price precision accepted, matching the
// smallest unit of the settlement currency (1 lamport = 1e-9 SOL).
const PriceDecimals = 9

var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidItem is returned when a catalog entry fails validation.
	ErrInvalidItem = errors.New("invalid catalog item")
)

// Item is a catalog entry available for purchase.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string

	// Filename and Hash locate the purchased content on IPFS. They are
	// only handed out by the fetch-item endpoint.
	Filename string
	Hash     string
}

// Catalog is an immutable, ordered set of items. The zero value is an
// empty catalog.
type Catalog struct {
	items []Item
	byID  map[string]int
}

// New validates items and builds a Catalog preserving their order.
func New(items []Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for i, it := range items {
		if err := validate(it); err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, errors.Wrapf(ErrInvalidItem, "duplicate id %q", it.ID)
		}
		c.items[i] = it
		c.byID[it.ID] = i
	}
	return c, nil
}

func validate(it Item) error {
	switch {
	case it.ID == "":
		return errors.Wrap(ErrInvalidItem, "empty id")
	case !it.Price.IsPositive():
		return errors.Wrapf(ErrInvalidItem, "price of %q must be positive", it.ID)
	case !it.Price.Shift(PriceDecimals).IsInteger():
		return errors.Wrapf(ErrInvalidItem, "price of %q has more than %d decimal places", it.ID, PriceDecimals)
	}
	return nil
}

// List returns every item in catalog order. The returned slice is a copy.
func (c *Catalog) List() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the item with the given id or ErrNotFound.
func (c *Catalog) Get(id string) (Item, error) {
	i, ok := c.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return c.items[i], nil
}

// Len reports the number of items.
func (c *Catalog) Len() int { return len(c.items) }
