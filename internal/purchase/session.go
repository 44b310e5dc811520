package purchase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// DefaultInterval is the confirmation polling interval.
const DefaultInterval = time.Second

type options struct {
	interval       time.Duration
	notify         func(Event)
	orderID        func() (string, error)
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Session.
type Option func(*options)

// WithInterval sets the confirmation polling interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithNotify registers a callback invoked after every status transition.
// It is called without the session lock held.
func WithNotify(fn func(Event)) Option {
	return func(o *options) { o.notify = fn }
}

// WithOrderID overrides order identifier generation.
func WithOrderID(fn func() (string, error)) Option {
	return func(o *options) { o.orderID = fn }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Session is one buyer's purchase of one item.
//
// Status only moves forward: Initial, Submitted, Paid. While Submitted, the
// session owns a single poll loop that is stopped on every exit from
// Submitted and on Close.
type Session struct {
	deps    Deps
	buyer   string
	orderID string
	itemID  string

	interval time.Duration
	notify   func(Event)
	lg       *zap.Logger
	tracer   trace.Tracer
	lookups  metric.Int64Counter

	// base bounds the lifetime of background work.
	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	status    Status
	loading   bool
	closed    bool
	signature string
	item      *Item
	paid      chan struct{}
	paidOnce  sync.Once

	pollMu     sync.Mutex
	cancelPoll context.CancelFunc
	pollDone   chan struct{}

	activePolls atomic.Int32
}

// NewSession creates a session for itemID paid from the wallet's account.
// It returns ErrWalletNotConnected when the wallet exposes no public key.
//
// Background work is bound to ctx; Close releases it earlier.
func NewSession(ctx context.Context, deps Deps, itemID string, opts ...Option) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, errors.New("item id is required")
	}
	buyer := deps.Wallet.PublicKey()
	if buyer == "" {
		return nil, ErrWalletNotConnected
	}

	o := options{
		interval:       DefaultInterval,
		orderID:        newOrderID,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	orderID, err := o.orderID()
	if err != nil {
		return nil, errors.Wrap(err, "generate order id")
	}

	const scope = "github.com/xenking/emoji-storefront/internal/purchase"
	lookups, err := o.meterProvider.Meter(scope).Int64Counter("storefront.purchase.ledger_lookups",
		metric.WithDescription("Ledger lookups made while waiting for payment confirmation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	lg := zctx.From(ctx).With(
		zap.String("buyer", buyer),
		zap.String("order_id", orderID),
		zap.String("item_id", itemID),
	)
	base, cancel := context.WithCancel(zctx.Base(ctx, lg))

	return &Session{
		deps:     deps,
		buyer:    buyer,
		orderID:  orderID,
		itemID:   itemID,
		interval: o.interval,
		notify:   o.notify,
		lg:       lg,
		tracer:   o.tracerProvider.Tracer(scope),
		lookups:  lookups,
		base:     base,
		cancel:   cancel,
		paid:     make(chan struct{}),
	}, nil
}

// Buyer returns the buyer address.
func (s *Session) Buyer() string { return s.buyer }

// OrderID returns the order identifier used as the payment reference.
func (s *Session) OrderID() string { return s.orderID }

// ItemID returns the purchased item identifier.
func (s *Session) ItemID() string { return s.itemID }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Loading reports whether a submission is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Signature returns the payment signature once known.
func (s *Session) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signature
}

// Item returns the unlocked item, or nil before the session is Paid.
func (s *Session) Item() *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item
}

// Start checks whether the buyer already owns the item and, if so, moves
// the session directly to Paid.
func (s *Session) Start(ctx context.Context) error {
	owned, err := s.deps.Orders.HasPurchased(ctx, s.buyer, s.itemID)
	if err != nil {
		return errors.Wrap(err, "check purchase")
	}
	if !owned {
		return nil
	}

	from, ok := s.advance(Paid)
	if !ok {
		return nil
	}
	s.stopPolling()
	s.lg.Info("Item already purchased")
	s.unlock(ctx)
	s.emit(Event{From: from, To: Paid})
	return nil
}

// Buy moves the session from Initial to Submitted: it requests the
// transaction, has the wallet sign and send it, then starts polling for
// confirmation. A failure returns *SubmissionError and leaves the session
// in Initial.
func (s *Session) Buy(ctx context.Context) (rerr error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.loading, s.status != Initial:
		s.mu.Unlock()
		return ErrInProgress
	}
	s.loading = true
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "purchase.Buy",
		trace.WithAttributes(attribute.String("item.id", s.itemID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	sig, err := s.submit(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.lg.Warn("Transaction submission failed", zap.Error(err))
		return &SubmissionError{Err: err}
	}
	s.signature = sig
	s.mu.Unlock()

	from, ok := s.advance(Submitted)
	if !ok {
		// Start observed an earlier purchase while we were submitting.
		return nil
	}
	s.lg.Info("Transaction submitted", zap.String("signature", sig))
	s.emit(Event{From: from, To: Submitted})
	s.startPolling()
	return nil
}

func (s *Session) submit(ctx context.Context) (string, error) {
	tx, err := s.deps.Transactions.CreateTransaction(ctx, s.buyer, s.orderID, s.itemID)
	if err != nil {
		return "", errors.Wrap(err, "create transaction")
	}
	sig, err := s.deps.Wallet.SendTransaction(ctx, tx)
	if err != nil {
		return "", errors.Wrap(err, "send transaction")
	}
	return sig, nil
}

// Wait blocks until the session is Paid or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.paid:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops background work. The status is left unchanged.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.stopPolling()
	return nil
}

// advance moves the status forward to to. It reports the previous status
// and false if the transition would not move forward.
func (s *Session) advance(to Status) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.status
	if to <= from {
		return from, false
	}
	s.status = to
	return from, true
}

func (s *Session) emit(e Event) {
	if s.notify != nil {
		s.notify(e)
	}
}

// unlock fetches the item metadata and releases Wait.
func (s *Session) unlock(ctx context.Context) {
	item, err := s.deps.Items.FetchItem(ctx, s.itemID)
	if err != nil {
		s.lg.Error("Fetch item", zap.Error(err))
	} else {
		s.mu.Lock()
		s.item = item
		s.mu.Unlock()
	}
	s.paidOnce.Do(func() { close(s.paid) })
}

// startPolling replaces any running poll loop with a new one.
func (s *Session) startPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.stopPollingLocked()
	if s.base.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancelPoll = cancel
	s.pollDone = done

	s.activePolls.Add(1)
	go s.poll(ctx, done)
}

func (s *Session) stopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	s.stopPollingLocked()
}

func (s *Session) stopPollingLocked() {
	if s.cancelPoll == nil {
		return
	}
	s.cancelPoll()
	<-s.pollDone
	s.cancelPoll = nil
	s.pollDone = nil
}

// poll runs the ledger lookup loop. The Paid event is emitted after done
// is closed; the callback may Close the session.
func (s *Session) poll(ctx context.Context, done chan struct{}) {
	var paid *Event
	defer func() {
		s.activePolls.Add(-1)
		close(done)
		if paid != nil {
			s.emit(*paid)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var over bool
		if over, paid = s.tick(ctx); over {
			return
		}
	}
}

// tick performs one ledger lookup and reports whether polling is over,
// along with the transition to Paid if this lookup made it.
func (s *Session) tick(ctx context.Context) (bool, *Event) {
	s.lookups.Add(ctx, 1)

	conf, err := s.deps.Ledger.FindReference(ctx, s.orderID)
	switch {
	case errors.Is(err, ErrReferenceNotFound):
		return false, nil
	case err != nil:
		if ctx.Err() != nil {
			return true, nil
		}
		s.lg.Warn("Ledger lookup failed", zap.Error(err))
		return false, nil
	case conf == nil:
		return false, nil
	case !conf.Settled():
		return false, nil
	}

	from, ok := s.advance(Paid)
	if !ok {
		return true, nil
	}

	s.mu.Lock()
	s.signature = conf.Signature
	s.mu.Unlock()
	s.lg.Info("Payment confirmed",
		zap.String("signature", conf.Signature),
		zap.String("confirmation_status", conf.Status),
	)

	// The payment is on the ledger; record it even if the session is
	// being torn down.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.deps.Orders.AddOrder(persistCtx, Order{
		Buyer:     s.buyer,
		OrderID:   s.orderID,
		ItemID:    s.itemID,
		Signature: conf.Signature,
	}); err != nil {
		s.lg.Error("Record order", zap.Error(err))
	}
	s.unlock(persistCtx)
	return true, &Event{From: from, To: Paid}
}
