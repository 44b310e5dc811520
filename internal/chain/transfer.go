package chain

import (
	"encoding/base64"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var lamportsPerSOL = decimal.New(1, 9)

// Lamports converts an amount of SOL to lamports. The conversion is exact;
// amounts finer than one lamport are rejected.
func Lamports(sol decimal.Decimal) (uint64, error) {
	l := sol.Mul(lamportsPerSOL)
	if l.IsNegative() {
		return 0, errors.Errorf("negative amount %s", sol)
	}
	if !l.IsInteger() {
		return 0, errors.Errorf("amount %s is not a whole number of lamports", sol)
	}
	bi := l.BigInt()
	if !bi.IsUint64() {
		return 0, errors.Errorf("amount %s overflows lamports", sol)
	}
	return bi.Uint64(), nil
}

// SOL converts lamports to an amount of SOL.
func SOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// Transfer describes a native SOL payment carrying a reference key.
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
	// Reference is attached to the transfer instruction as a read-only,
	// non-signing account so the payment can be located later.
	Reference solana.PublicKey
	// RecentBlockhash anchors the transaction's lifetime.
	RecentBlockhash solana.Hash
}

// Transaction builds the unsigned transaction. From pays the fee.
func (t Transfer) Transaction() (*solana.Transaction, error) {
	base := system.NewTransferInstruction(t.Lamports, t.From, t.To).Build()
	data, err := base.Data()
	if err != nil {
		return nil, errors.Wrap(err, "encode transfer")
	}

	accounts := append(base.Accounts(), solana.Meta(t.Reference))
	inst := solana.NewInstruction(base.ProgramID(), accounts, data)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		t.RecentBlockhash,
		solana.TransactionPayer(t.From),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new transaction")
	}
	return tx, nil
}

// EncodeUnsigned serializes tx with empty signature slots for every
// required signer and returns it base64-encoded.
func EncodeUnsigned(tx *solana.Transaction) (string, error) {
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "marshal transaction")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire-format transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decode transaction")
	}
	return tx, nil
}

// NewReference returns a fresh random public key for use as an order
// identifier. The private half is discarded.
func NewReference() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "generate reference")
	}
	return key.PublicKey(), nil
}
