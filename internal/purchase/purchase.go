// Package purchase drives a single buyer's purchase of a catalog item:
// request an unsigned transaction, have the wallet sign and send it, then
// poll the ledger until the payment is confirmed.
package purchase

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Status is the state of a purchase session.
type Status int

const (
	Initial Status = iota
	Submitted
	Paid
)

func (s Status) String() string {
	switch s {
	case Initial:
		return "initial"
	case Submitted:
		return "submitted"
	case Paid:
		return "paid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	// ErrWalletNotConnected is returned when the wallet has no public key.
	ErrWalletNotConnected = errors.New("wallet not connected")
	// ErrReferenceNotFound is returned by a Ledger while no transaction
	// carrying the reference has been observed.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrInProgress is returned by Buy while a submission is running or
	// after the session left Initial.
	ErrInProgress = errors.New("purchase already in progress")
)

// SubmissionError wraps a failure to obtain, sign or send the payment
// transaction. The session stays in Initial and Buy may be retried.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "submit transaction: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Wallet signs and sends transactions on behalf of the buyer.
type Wallet interface {
	PublicKey() string
	SendTransaction(ctx context.Context, transaction string) (signature string, err error)
}

// TransactionSource builds unsigned base64 transactions.
type TransactionSource interface {
	CreateTransaction(ctx context.Context, buyer, orderID, itemID string) (string, error)
}

// Confirmation is a ledger transaction that carries the order identifier.
type Confirmation struct {
	Signature string
	// Status is the ledger confirmation status: processed, confirmed or
	// finalized.
	Status string
}

// Settled reports whether the transaction reached confirmed or finalized.
func (c Confirmation) Settled() bool {
	return c.Status == "confirmed" || c.Status == "finalized"
}

// Ledger finds transactions by reference key.
type Ledger interface {
	FindReference(ctx context.Context, reference string) (*Confirmation, error)
}

// Order is a confirmed purchase.
type Order struct {
	Buyer     string
	OrderID   string
	ItemID    string
	Signature string
}

// OrderStore persists confirmed orders and answers ownership queries.
type OrderStore interface {
	AddOrder(ctx context.Context, o Order) error
	HasPurchased(ctx context.Context, buyer, itemID string) (bool, error)
}

// Item is the downloadable content unlocked by a purchase.
type Item struct {
	ID       string
	Name     string
	Filename string
	Hash     string
}

// ItemFetcher returns the item metadata for purchased items.
type ItemFetcher interface {
	FetchItem(ctx context.Context, itemID string) (*Item, error)
}

// Deps are the external capabilities a session uses.
type Deps struct {
	Wallet       Wallet
	Transactions TransactionSource
	Ledger       Ledger
	Orders       OrderStore
	Items        ItemFetcher
}

func (d Deps) validate() error {
	switch {
	case d.Wallet == nil:
		return errors.New("wallet is required")
	case d.Transactions == nil:
		return errors.New("transaction source is required")
	case d.Ledger == nil:
		return errors.New("ledger is required")
	case d.Orders == nil:
		return errors.New("order store is required")
	case d.Items == nil:
		return errors.New("item fetcher is required")
	}
	return nil
}

// Event describes a status transition.
type Event struct {
	From, To Status
}
