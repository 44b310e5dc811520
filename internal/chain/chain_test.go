package chain

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRPC struct {
	blockhash solana.Hash
	sigs      []*rpc.TransactionSignature
	health    string
	err       error

	// txs holds base64 transactions served by GetTransaction.
	txs map[solana.Signature]string

	lastOpts *rpc.GetSignaturesForAddressOpts
	sent     []*solana.Transaction
}

func (m *mockRPC) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash},
	}, nil
}

func (m *mockRPC) GetSignaturesForAddressWithOpts(_ context.Context, _ solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	m.lastOpts = opts
	return m.sigs, m.err
}

func (m *mockRPC) GetTransaction(_ context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	raw, ok := m.txs[sig]
	if !ok || opts == nil || opts.Encoding != solana.EncodingBase64 {
		return nil, errors.Errorf("transaction %s not found", sig)
	}
	env := new(rpc.TransactionResultEnvelope)
	if err := env.UnmarshalJSON([]byte(`["` + raw + `","base64"]`)); err != nil {
		return nil, err
	}
	return &rpc.GetTransactionResult{Transaction: env, Meta: &rpc.TransactionMeta{}}, nil
}

func (m *mockRPC) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	m.sent = append(m.sent, tx)
	return tx.Signatures[0], nil
}

func (m *mockRPC) GetHealth(_ context.Context) (string, error) {
	return m.health, m.err
}

// --- Helpers ---

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// paidTransfer registers a transfer carrying ref under sig and returns it.
func paidTransfer(t *testing.T, m *mockRPC, sig solana.Signature, ref solana.PublicKey, lamports uint64) Transfer {
	t.Helper()
	tr := Transfer{
		From:            newKey(t).PublicKey(),
		To:              newKey(t).PublicKey(),
		Lamports:        lamports,
		Reference:       ref,
		RecentBlockhash: solana.Hash{1},
	}
	tx, err := tr.Transaction()
	require.NoError(t, err)
	raw, err := EncodeUnsigned(tx)
	require.NoError(t, err)

	if m.txs == nil {
		m.txs = make(map[solana.Signature]string)
	}
	m.txs[sig] = raw
	m.sigs = append(m.sigs, &rpc.TransactionSignature{Signature: sig, ConfirmationStatus: rpc.ConfirmationStatusConfirmed})
	return tr
}

// --- Tests ---

func TestLamports(t *testing.T) {
	tests := []struct {
		sol  string
		want uint64
	}{
		{"0.1", 100_000_000},
		{"1", 1_000_000_000},
		{"0.000000001", 1},
		{"2.5", 2_500_000_000},
		{"0.10", 100_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.sol, func(t *testing.T) {
			got, err := Lamports(decimal.RequireFromString(tt.sol))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLamports_Rejects(t *testing.T) {
	for _, sol := range []string{"-1", "0.0000000001", "100000000000"} {
		_, err := Lamports(decimal.RequireFromString(sol))
		assert.Error(t, err, sol)
	}
}

func TestSOL(t *testing.T) {
	assert.Equal(t, "0.1", SOL(100_000_000).String())
	assert.True(t, decimal.RequireFromString("0.000000001").Equal(SOL(1)))

	l, err := Lamports(SOL(2_500_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), l)
}

func TestTransfer_RoundTrip(t *testing.T) {
	buyer := newKey(t).PublicKey()
	seller := newKey(t).PublicKey()
	reference := newKey(t).PublicKey()
	blockhash := solana.Hash{1, 2, 3}

	tx, err := Transfer{
		From:            buyer,
		To:              seller,
		Lamports:        100_000_000,
		Reference:       reference,
		RecentBlockhash: blockhash,
	}.Transaction()
	require.NoError(t, err)

	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)

	msg := decoded.Message
	assert.Equal(t, blockhash, msg.RecentBlockhash)
	assert.Equal(t, uint8(1), msg.Header.NumRequiredSignatures)
	require.Len(t, decoded.Signatures, 1)
	assert.Equal(t, solana.Signature{}, decoded.Signatures[0])
	assert.Equal(t, buyer, msg.AccountKeys[0], "buyer pays the fee")

	require.Len(t, msg.Instructions, 1)
	ci := msg.Instructions[0]
	assert.Equal(t, solana.SystemProgramID, msg.AccountKeys[ci.ProgramIDIndex])
	require.Len(t, ci.Accounts, 3)
	assert.Equal(t, buyer, msg.AccountKeys[ci.Accounts[0]])
	assert.Equal(t, seller, msg.AccountKeys[ci.Accounts[1]])
	assert.Equal(t, reference, msg.AccountKeys[ci.Accounts[2]])

	require.Len(t, ci.Data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ci.Data[:4]), "system transfer discriminator")
	assert.Equal(t, uint64(100_000_000), binary.LittleEndian.Uint64(ci.Data[4:]))

	assert.False(t, msg.IsSigner(reference))
	refIdx := int(ci.Accounts[2])
	assert.GreaterOrEqual(t, refIdx, len(msg.AccountKeys)-int(msg.Header.NumReadonlyUnsignedAccounts),
		"reference must be read-only")
}

func TestDecodeTransaction_Invalid(t *testing.T) {
	_, err := DecodeTransaction("not base64!")
	require.Error(t, err)
}

func TestLatestBlockhash(t *testing.T) {
	m := &mockRPC{blockhash: solana.Hash{9}}
	got, err := NewClientWith(m).LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solana.Hash{9}, got)

	m.err = errors.New("rpc down")
	_, err = NewClientWith(m).LatestBlockhash(context.Background())
	require.Error(t, err)
}

func TestFindReference_NotFound(t *testing.T) {
	m := &mockRPC{}
	_, err := NewClientWith(m).FindReference(context.Background(), newKey(t).PublicKey())
	require.ErrorIs(t, err, ErrReferenceNotFound)
	require.NotNil(t, m.lastOpts)
	assert.Equal(t, rpc.CommitmentConfirmed, m.lastOpts.Commitment)
}

func TestFindReference_OldestSuccessful(t *testing.T) {
	m := &mockRPC{sigs: []*rpc.TransactionSignature{
		{Signature: solana.Signature{3}, Slot: 30, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		{Signature: solana.Signature{2}, Slot: 20, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		{Signature: solana.Signature{1}, Slot: 10, Err: map[string]any{"InstructionError": 0}},
	}}

	conf, err := NewClientWith(m).FindReference(context.Background(), newKey(t).PublicKey())
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{2}, conf.Signature)
	assert.Equal(t, uint64(20), conf.Slot)
	assert.True(t, conf.Settled())
}

func TestFindReference_OnlyFailed(t *testing.T) {
	m := &mockRPC{sigs: []*rpc.TransactionSignature{
		{Signature: solana.Signature{1}, Err: "boom"},
	}}
	_, err := NewClientWith(m).FindReference(context.Background(), newKey(t).PublicKey())
	require.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestFindPayment(t *testing.T) {
	ref := newKey(t).PublicKey()
	m := &mockRPC{}
	tr := paidTransfer(t, m, solana.Signature{7}, ref, 100_000_000)

	p, err := NewClientWith(m).FindPayment(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{7}, p.Signature)
	assert.Equal(t, tr.From, p.From)
	assert.Equal(t, tr.To, p.To)
	assert.Equal(t, uint64(100_000_000), p.Lamports)
	assert.Equal(t, rpc.ConfirmationStatusConfirmed, p.Status)
}

func TestFindPayment_ReferenceElsewhere(t *testing.T) {
	ref := newKey(t).PublicKey()
	m := &mockRPC{}
	// The indexed transaction mentions another reference only.
	paidTransfer(t, m, solana.Signature{7}, newKey(t).PublicKey(), 1)

	_, err := NewClientWith(m).FindPayment(context.Background(), ref)
	require.ErrorIs(t, err, ErrNotTransfer)
}

func TestFindPayment_TransactionUnavailable(t *testing.T) {
	m := &mockRPC{sigs: []*rpc.TransactionSignature{
		{Signature: solana.Signature{7}, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}}
	_, err := NewClientWith(m).FindPayment(context.Background(), newKey(t).PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get transaction")
}

func TestVerify(t *testing.T) {
	key := newKey(t).PublicKey()
	ref := key.String()

	m := &mockRPC{}
	p, err := NewClientWith(m).Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Nil(t, p)

	tr := paidTransfer(t, m, solana.Signature{7}, key, 42)
	p, err = NewClientWith(m).Verify(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, solana.Signature{7}, p.Signature)
	assert.Equal(t, tr.From, p.From)
	assert.Equal(t, uint64(42), p.Lamports)

	m.sigs[0].ConfirmationStatus = rpc.ConfirmationStatusProcessed
	p, err = NewClientWith(m).Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewClientWith(m).Verify(context.Background(), "not-a-key")
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	require.NoError(t, NewClientWith(&mockRPC{health: "ok"}).Health(context.Background()))
	require.Error(t, NewClientWith(&mockRPC{health: "behind"}).Health(context.Background()))
}

func TestKeypairWallet_SendTransaction(t *testing.T) {
	key := newKey(t)
	m := &mockRPC{}
	w := NewKeypairWallet(key, NewClientWith(m))
	assert.Equal(t, key.PublicKey().String(), w.PublicKey())

	tx, err := Transfer{
		From:      key.PublicKey(),
		To:        newKey(t).PublicKey(),
		Lamports:  5,
		Reference: newKey(t).PublicKey(),
	}.Transaction()
	require.NoError(t, err)
	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)

	sig, err := w.SendTransaction(context.Background(), encoded)
	require.NoError(t, err)

	require.Len(t, m.sent, 1)
	sent := m.sent[0]
	require.Len(t, sent.Signatures, 1)
	assert.Equal(t, sent.Signatures[0].String(), sig)
	require.NoError(t, sent.VerifySignatures())
}

func TestKeypairWallet_ForeignPayer(t *testing.T) {
	w := NewKeypairWallet(newKey(t), NewClientWith(&mockRPC{}))

	tx, err := Transfer{
		From:      newKey(t).PublicKey(),
		To:        newKey(t).PublicKey(),
		Lamports:  5,
		Reference: newKey(t).PublicKey(),
	}.Transaction()
	require.NoError(t, err)
	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)

	_, err = w.SendTransaction(context.Background(), encoded)
	require.ErrorIs(t, err, ErrForeignPayer)
}

func TestNewReference_Unique(t *testing.T) {
	a, err := NewReference()
	require.NoError(t, err)
	b, err := NewReference()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
