package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a paid purchase of one catalog item.
type Order struct {
	// OrderID is the reference key attached to the payment transaction.
	OrderID   string
	Buyer     string
	ItemID    string
	Amount    decimal.Decimal
	Signature string
	CreatedAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Append stores o. Appending an existing OrderID is a no-op.
	Append(ctx context.Context, o *Order) error
	HasPurchased(ctx context.Context, buyer, itemID string) (bool, error)
	// Purchases calls fn for every stored (buyer, item) pair.
	Purchases(ctx context.Context, fn func(buyer, itemID string) error) error
}

// Finder looks up stored orders by identifier.
type Finder interface {
	Get(ctx context.Context, orderID string) (*Order, error)
}
