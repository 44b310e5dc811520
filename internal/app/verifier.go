package app

import (
	"context"

	"github.com/xenking/emoji-storefront/internal/chain"
	"github.com/xenking/emoji-storefront/internal/domain/order"
)

// ledgerVerifier reports settled chain payments to the order service.
type ledgerVerifier struct {
	client *chain.Client
}

func (v ledgerVerifier) Verify(ctx context.Context, reference string) (*order.Payment, error) {
	p, err := v.client.Verify(ctx, reference)
	if err != nil || p == nil {
		return nil, err
	}
	return &order.Payment{
		Signature: p.Signature.String(),
		Payer:     p.From.String(),
		Recipient: p.To.String(),
		Amount:    chain.SOL(p.Lamports),
	}, nil
}
