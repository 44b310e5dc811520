package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/emoji-storefront/internal/domain/catalog"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders    []*Order
	hasCalls  int
	appendErr error
}

func (m *mockOrderRepo) Append(_ context.Context, o *Order) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, cur := range m.orders {
		if cur.OrderID == o.OrderID {
			return nil
		}
	}
	m.orders = append(m.orders, o)
	return nil
}

func (m *mockOrderRepo) HasPurchased(_ context.Context, buyer, itemID string) (bool, error) {
	m.hasCalls++
	for _, o := range m.orders {
		if o.Buyer == buyer && o.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepo) Purchases(_ context.Context, fn func(buyer, itemID string) error) error {
	for _, o := range m.orders {
		if err := fn(o.Buyer, o.ItemID); err != nil {
			return err
		}
	}
	return nil
}

type mockVerifier struct {
	payment *Payment
	err     error
	refs    []string
}

func (m *mockVerifier) Verify(_ context.Context, reference string) (*Payment, error) {
	m.refs = append(m.refs, reference)
	return m.payment, m.err
}

// --- Helpers ---

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Item{
		{ID: "1", Name: "Emoji Pack", Price: decimal.RequireFromString("0.1")},
	})
	require.NoError(t, err)
	return c
}

func validRequest() RecordRequest {
	return RecordRequest{Buyer: "B1", OrderID: "ref-1", ItemID: "1", Signature: "client-sig"}
}

const storeWallet = "STORE"

func settled() *Payment {
	return &Payment{
		Signature: "ledger-sig",
		Payer:     "B1",
		Recipient: storeWallet,
		Amount:    decimal.RequireFromString("0.1"),
	}
}

// --- Tests ---

func TestRecord_Verified(t *testing.T) {
	repo := &mockOrderRepo{}
	v := &mockVerifier{payment: settled()}
	svc := NewService(newCatalog(t), repo, WithVerifier(v, storeWallet))

	o, err := svc.Record(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"ref-1"}, v.refs)
	assert.Equal(t, "ledger-sig", o.Signature)
	assert.True(t, decimal.RequireFromString("0.1").Equal(o.Amount))
	require.Len(t, repo.orders, 1)
	assert.Equal(t, "B1", repo.orders[0].Buyer)
}

func TestRecord_NotConfirmed(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newCatalog(t), repo, WithVerifier(&mockVerifier{}, storeWallet))

	_, err := svc.Record(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Empty(t, repo.orders)
}

func TestRecord_PaymentMismatch(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Payment)
	}{
		{"other payer", func(p *Payment) { p.Payer = "B2" }},
		{"other recipient", func(p *Payment) { p.Recipient = "B2" }},
		{"underpaid", func(p *Payment) { p.Amount = decimal.RequireFromString("0.000000001") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := settled()
			tt.modify(p)
			repo := &mockOrderRepo{}
			svc := NewService(newCatalog(t), repo, WithVerifier(&mockVerifier{payment: p}, storeWallet))

			_, err := svc.Record(context.Background(), validRequest())
			require.ErrorIs(t, err, ErrPaymentMismatch)
			assert.Empty(t, repo.orders)

			ok, err := svc.HasPurchased(context.Background(), "B1", "1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRecord_OtherBuyerCannotReuseReference(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newCatalog(t), repo, WithVerifier(&mockVerifier{payment: settled()}, storeWallet))

	req := validRequest()
	req.Buyer = "B2"
	_, err := svc.Record(context.Background(), req)
	require.ErrorIs(t, err, ErrPaymentMismatch)

	ok, err := svc.HasPurchased(context.Background(), "B2", "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecord_VerifierError(t *testing.T) {
	svc := NewService(newCatalog(t), &mockOrderRepo{}, WithVerifier(&mockVerifier{err: errors.New("rpc down")}, storeWallet))

	_, err := svc.Record(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify payment")
}

func TestRecord_WithoutVerifier(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newCatalog(t), repo)

	o, err := svc.Record(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "client-sig", o.Signature)
}

func TestRecord_MissingFields(t *testing.T) {
	svc := NewService(newCatalog(t), &mockOrderRepo{})

	for field, req := range map[string]RecordRequest{
		"buyer":   {OrderID: "r", ItemID: "1"},
		"orderID": {Buyer: "b", ItemID: "1"},
		"itemID":  {Buyer: "b", OrderID: "r"},
	} {
		_, err := svc.Record(context.Background(), req)
		var mfErr *MissingFieldError
		require.ErrorAs(t, err, &mfErr, field)
		assert.Equal(t, field, mfErr.Field)
	}
}

func TestRecord_UnknownItem(t *testing.T) {
	v := &mockVerifier{payment: settled()}
	svc := NewService(newCatalog(t), &mockOrderRepo{}, WithVerifier(v, storeWallet))

	req := validRequest()
	req.ItemID = "404"
	_, err := svc.Record(context.Background(), req)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Empty(t, v.refs, "ledger is not queried for unknown items")
}

func TestRecord_AppendError(t *testing.T) {
	svc := NewService(newCatalog(t), &mockOrderRepo{appendErr: errors.New("db write failed")})

	_, err := svc.Record(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append order")
}

func TestHasPurchased(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newCatalog(t), repo)

	ok, err := svc.HasPurchased(context.Background(), "B1", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Record(context.Background(), validRequest())
	require.NoError(t, err)

	ok, err = svc.HasPurchased(context.Background(), "B1", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.HasPurchased(context.Background(), "", "1")
	var mfErr *MissingFieldError
	require.ErrorAs(t, err, &mfErr)
}

func TestPurchaseFilter(t *testing.T) {
	repo := &mockOrderRepo{orders: []*Order{{OrderID: "old", Buyer: "B0", ItemID: "1"}}}
	f := NewPurchaseFilter(repo, 1000, 0.0001)

	n, err := f.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := f.HasPurchased(context.Background(), "B0", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.hasCalls)

	ok, err = f.HasPurchased(context.Background(), "B1", "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, repo.hasCalls, "negative filter answer skips storage")

	require.NoError(t, f.Append(context.Background(), &Order{OrderID: "new", Buyer: "B1", ItemID: "1"}))
	ok, err = f.HasPurchased(context.Background(), "B1", "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPurchaseFilter_AppendErrorNotRecorded(t *testing.T) {
	repo := &mockOrderRepo{appendErr: errors.New("db write failed")}
	f := NewPurchaseFilter(repo, 1000, 0.0001)

	require.Error(t, f.Append(context.Background(), &Order{OrderID: "x", Buyer: "B1", ItemID: "1"}))

	ok, err := f.HasPurchased(context.Background(), "B1", "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, repo.hasCalls)
}
