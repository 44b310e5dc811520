// Package checkout builds unsigned payment transactions for catalog items.
package checkout

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/emoji-storefront/internal/chain"
	"github.com/xenking/emoji-storefront/internal/domain/catalog"
)

// ErrReferenceConflict is returned when an order identifier was already
// issued for a different buyer or item.
var ErrReferenceConflict = errors.New("order identifier already in use")

// MissingFieldError indicates a required request field is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	if e.Field == FieldBuyer {
		return "Missing buyer address"
	}
	return fmt.Sprintf("Missing %s", e.Field)
}

// InvalidFieldError indicates a request field is not a valid address.
type InvalidFieldError struct {
	Field string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InvalidFieldError) Unwrap() error { return e.Err }

// Request field names, as they appear on the wire.
const (
	FieldBuyer   = "buyer"
	FieldOrderID = "orderID"
)

// BlockhashSource provides the finality marker for new transactions.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// ReferenceRegistry records which buyer and item an order identifier was
// issued for. Claim returns false when the reference is held by another
// owner; claiming again with the same owner succeeds.
type ReferenceRegistry interface {
	Claim(ctx context.Context, reference, owner string) (bool, error)
}

// Request holds the input for building a payment transaction.
type Request struct {
	Buyer   string
	OrderID string
	ItemID  string
}

// Result is a built, unsigned transaction.
type Result struct {
	// Transaction is the base64-encoded wire transaction.
	Transaction string
	Item        catalog.Item
	Lamports    uint64
}

// Builder constructs transfer transactions paying for catalog items.
type Builder struct {
	catalog   *catalog.Catalog
	chain     BlockhashSource
	refs      ReferenceRegistry
	recipient solana.PublicKey

	tracer trace.Tracer
	built  metric.Int64Counter
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Builder.
type Option func(*options)

// WithTracerProvider sets the tracer provider used for build spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for build counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// NewBuilder creates a Builder paying recipient.
func NewBuilder(
	cat *catalog.Catalog,
	blockhashes BlockhashSource,
	refs ReferenceRegistry,
	recipient solana.PublicKey,
	opts ...Option,
) (*Builder, error) {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	const scope = "github.com/xenking/emoji-storefront/internal/domain/checkout"
	built, err := o.meterProvider.Meter(scope).Int64Counter("storefront.checkout.transactions",
		metric.WithDescription("Unsigned payment transactions built"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Builder{
		catalog:   cat,
		chain:     blockhashes,
		refs:      refs,
		recipient: recipient,
		tracer:    o.tracerProvider.Tracer(scope),
		built:     built,
	}, nil
}

// Build validates req, resolves the item price and returns an unsigned
// transfer from the buyer to the recipient carrying the order identifier
// as a reference key.
func (b *Builder) Build(ctx context.Context, req Request) (_ *Result, rerr error) {
	if req.Buyer == "" {
		return nil, &MissingFieldError{Field: FieldBuyer}
	}
	if req.OrderID == "" {
		return nil, &MissingFieldError{Field: FieldOrderID}
	}

	ctx, span := b.tracer.Start(ctx, "checkout.Build",
		trace.WithAttributes(attribute.String("item.id", req.ItemID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	buyer, err := solana.PublicKeyFromBase58(req.Buyer)
	if err != nil {
		return nil, &InvalidFieldError{Field: FieldBuyer, Err: err}
	}
	reference, err := solana.PublicKeyFromBase58(req.OrderID)
	if err != nil {
		return nil, &InvalidFieldError{Field: FieldOrderID, Err: err}
	}

	item, err := b.catalog.Get(req.ItemID)
	if err != nil {
		return nil, err
	}
	lamports, err := chain.Lamports(item.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "price of item %s", item.ID)
	}

	ok, err := b.refs.Claim(ctx, reference.String(), req.Buyer+"/"+item.ID)
	if err != nil {
		return nil, errors.Wrap(err, "claim reference")
	}
	if !ok {
		return nil, ErrReferenceConflict
	}

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := chain.Transfer{
		From:            buyer,
		To:              b.recipient,
		Lamports:        lamports,
		Reference:       reference,
		RecentBlockhash: blockhash,
	}.Transaction()
	if err != nil {
		return nil, err
	}
	encoded, err := chain.EncodeUnsigned(tx)
	if err != nil {
		return nil, err
	}

	b.built.Add(ctx, 1, metric.WithAttributes(attribute.String("item.id", item.ID)))

	return &Result{
		Transaction: encoded,
		Item:        item,
		Lamports:    lamports,
	}, nil
}
