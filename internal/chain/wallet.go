package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/go-faster/errors"
)

// ErrForeignPayer is returned when asked to sign a transaction whose fee
// payer is not the wallet's key.
var ErrForeignPayer = errors.New("transaction fee payer is not this wallet")

// Sender submits signed transactions to the network.
type Sender interface {
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// KeypairWallet signs with a locally held private key and submits through
// a Sender. It stands in for a browser wallet.
type KeypairWallet struct {
	key    solana.PrivateKey
	sender Sender
}

// NewKeypairWallet creates a wallet for key.
func NewKeypairWallet(key solana.PrivateKey, sender Sender) *KeypairWallet {
	return &KeypairWallet{key: key, sender: sender}
}

// LoadKeypairWallet reads a solana-keygen JSON keypair file.
func LoadKeypairWallet(path string, sender Sender) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load keypair %s", path)
	}
	return NewKeypairWallet(key, sender), nil
}

// PublicKey returns the wallet address in base58.
func (w *KeypairWallet) PublicKey() string {
	return w.key.PublicKey().String()
}

// SendTransaction signs the base64-encoded unsigned transaction and
// submits it, returning the transaction signature.
func (w *KeypairWallet) SendTransaction(ctx context.Context, encoded string) (string, error) {
	tx, err := DecodeTransaction(encoded)
	if err != nil {
		return "", err
	}

	pub := w.key.PublicKey()
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(pub) {
		return "", ErrForeignPayer
	}

	// Sign appends, so drop the empty placeholder slots first.
	tx.Signatures = nil
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &w.key
		}
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	sig, err := w.sender.Send(ctx, tx)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
