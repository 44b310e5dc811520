// Package order records paid purchases and answers ownership queries.
package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/emoji-storefront/internal/domain/catalog"
)

// ErrPaymentNotConfirmed is returned when no settled payment carrying the
// order identifier exists on the ledger.
var ErrPaymentNotConfirmed = errors.New("payment not confirmed")

// ErrPaymentMismatch is returned when the settled payment carrying the
// order identifier was not made by the buyer, to the store, for the price.
var ErrPaymentMismatch = errors.New("payment does not match order")

// MissingFieldError indicates a required field is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing %s", e.Field)
}

// Payment is a settled transfer found on the ledger.
type Payment struct {
	Signature string
	Payer     string
	Recipient string
	Amount    decimal.Decimal
}

// Verifier looks up the settled payment carrying reference. It returns a
// nil Payment while none exists.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Payment, error)
}

// RecordRequest holds the input for recording a paid order.
type RecordRequest struct {
	Buyer     string
	OrderID   string
	ItemID    string
	Signature string
}

// Service encapsulates order recording.
type Service struct {
	catalog   *catalog.Catalog
	orders    Repository
	verifier  Verifier
	recipient string
}

// Option configures a Service.
type Option func(*Service)

// WithVerifier makes Record require a settled payment of the item price
// from the buyer to recipient.
func WithVerifier(v Verifier, recipient string) Option {
	return func(s *Service) {
		s.verifier = v
		s.recipient = recipient
	}
}

// NewService creates a Service. Without WithVerifier callers are trusted
// that the payment has settled.
func NewService(cat *catalog.Catalog, orders Repository, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		orders:  orders,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record validates req, confirms the payment and appends the order.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Order, error) {
	switch {
	case req.Buyer == "":
		return nil, &MissingFieldError{Field: "buyer"}
	case req.OrderID == "":
		return nil, &MissingFieldError{Field: "orderID"}
	case req.ItemID == "":
		return nil, &MissingFieldError{Field: "itemID"}
	}

	item, err := s.catalog.Get(req.ItemID)
	if err != nil {
		return nil, err
	}

	signature := req.Signature
	if s.verifier != nil {
		p, err := s.verifier.Verify(ctx, req.OrderID)
		if err != nil {
			return nil, errors.Wrap(err, "verify payment")
		}
		if p == nil {
			return nil, ErrPaymentNotConfirmed
		}
		switch {
		case p.Payer != req.Buyer:
			return nil, errors.Wrapf(ErrPaymentMismatch, "paid by %s", p.Payer)
		case p.Recipient != s.recipient:
			return nil, errors.Wrapf(ErrPaymentMismatch, "paid to %s", p.Recipient)
		case !p.Amount.Equal(item.Price):
			return nil, errors.Wrapf(ErrPaymentMismatch, "paid %s, price %s", p.Amount, item.Price)
		}
		signature = p.Signature
	}

	o := &Order{
		OrderID:   req.OrderID,
		Buyer:     req.Buyer,
		ItemID:    item.ID,
		Amount:    item.Price,
		Signature: signature,
	}
	if err := s.orders.Append(ctx, o); err != nil {
		return nil, errors.Wrap(err, "append order")
	}
	return o, nil
}

// HasPurchased reports whether buyer already owns itemID.
func (s *Service) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	if buyer == "" {
		return false, &MissingFieldError{Field: "buyer"}
	}
	if itemID == "" {
		return false, &MissingFieldError{Field: "itemID"}
	}
	ok, err := s.orders.HasPurchased(ctx, buyer, itemID)
	if err != nil {
		return false, errors.Wrap(err, "check purchase")
	}
	return ok, nil
}
