package purchase

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/go-faster/errors"

	"github.com/xenking/emoji-storefront/internal/chain"
)

var _ Ledger = (*ChainLedger)(nil)

// ChainLedger implements Ledger over a Solana RPC client.
type ChainLedger struct {
	client *chain.Client
}

// NewChainLedger returns a Ledger backed by client.
func NewChainLedger(client *chain.Client) *ChainLedger {
	return &ChainLedger{client: client}
}

// FindReference returns the oldest successful transaction carrying
// reference, or ErrReferenceNotFound.
func (l *ChainLedger) FindReference(ctx context.Context, reference string) (*Confirmation, error) {
	key, err := solana.PublicKeyFromBase58(reference)
	if err != nil {
		return nil, errors.Wrap(err, "parse reference")
	}
	conf, err := l.client.FindReference(ctx, key)
	if errors.Is(err, chain.ErrReferenceNotFound) {
		return nil, ErrReferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Confirmation{
		Signature: conf.Signature.String(),
		Status:    string(conf.Status),
	}, nil
}

func newOrderID() (string, error) {
	ref, err := chain.NewReference()
	if err != nil {
		return "", err
	}
	return ref.String(), nil
}
