// Package chain adapts the Solana JSON-RPC API and transaction format to
// the storefront: recent blockhashes, transfer construction, reference
// lookups and a keypair-backed wallet.
package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-faster/errors"
)

// DefaultEndpoint is the public devnet RPC endpoint.
const DefaultEndpoint = rpc.DevNet_RPC

// RPC is the subset of *rpc.Client used by this package.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetHealth(ctx context.Context) (string, error)
}

var _ RPC = (*rpc.Client)(nil)

// Client wraps an RPC connection.
type Client struct {
	rpc RPC
}

// NewClient connects to the given JSON-RPC endpoint.
func NewClient(endpoint string) *Client {
	return &Client{rpc: rpc.New(endpoint)}
}

// NewClientWith wraps an existing RPC implementation.
func NewClientWith(r RPC) *Client {
	return &Client{rpc: r}
}

// LatestBlockhash returns the most recent finalized blockhash, used to
// anchor new transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "get latest blockhash")
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// Send submits a signed transaction.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "send transaction")
	}
	return sig, nil
}

// Health reports an error unless the node answers "ok".
func (c *Client) Health(ctx context.Context) error {
	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return errors.Wrap(err, "get health")
	}
	if status != "ok" {
		return errors.Errorf("node unhealthy: %s", status)
	}
	return nil
}
