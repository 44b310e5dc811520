package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emoji-storefront/internal/domain/order"
)

const (
	appendOrderSQL = `INSERT INTO orders (order_id, buyer, item_id, amount, signature)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`

	hasPurchasedSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE buyer = $1 AND item_id = $2)`

	purchasesSQL = `SELECT DISTINCT buyer, item_id FROM orders`

	getOrderSQL = `SELECT order_id, buyer, item_id, amount, signature, created_at
		FROM orders WHERE order_id = $1`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Finder     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Append inserts o, ignoring duplicates of the same order identifier.
func (r *OrderRepository) Append(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, appendOrderSQL, o.OrderID, o.Buyer, o.ItemID, o.Amount, o.Signature)
	if err != nil {
		return errors.Wrapf(err, "append order %q", o.OrderID)
	}
	return nil
}

// HasPurchased reports whether any order links buyer and itemID.
func (r *OrderRepository) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, hasPurchasedSQL, buyer, itemID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "query purchase")
	}
	return ok, nil
}

// Purchases streams every distinct (buyer, item) pair.
func (r *OrderRepository) Purchases(ctx context.Context, fn func(buyer, itemID string) error) error {
	rows, err := r.pool.Query(ctx, purchasesSQL)
	if err != nil {
		return errors.Wrap(err, "list purchases")
	}
	defer rows.Close()

	var buyer, itemID string
	_, err = pgx.ForEachRow(rows, []any{&buyer, &itemID}, func() error {
		return fn(buyer, itemID)
	})
	if err != nil {
		return errors.Wrap(err, "scan purchases")
	}
	return nil
}

// Get returns a stored order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.OrderID, &o.Buyer, &o.ItemID, &o.Amount, &o.Signature, &o.CreatedAt)
	return o, err
}
