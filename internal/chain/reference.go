package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-faster/errors"
)

// ErrReferenceNotFound is returned while no successful transaction
// mentioning a reference has reached the confirmed commitment level.
var ErrReferenceNotFound = errors.New("reference not found")

// ErrNotTransfer is returned when the transaction carrying a reference has
// no native transfer instruction mentioning it.
var ErrNotTransfer = errors.New("no transfer carries the reference")

// referenceLookupLimit bounds the signature page fetched per lookup.
const referenceLookupLimit = 1000

// Confirmation describes the oldest successful transaction that mentions a
// reference key.
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
	Status    rpc.ConfirmationStatusType
}

// Settled reports whether the transaction reached confirmed or finalized.
func (c Confirmation) Settled() bool {
	return c.Status == rpc.ConfirmationStatusConfirmed || c.Status == rpc.ConfirmationStatusFinalized
}

// FindReference looks up the oldest successful transaction that includes
// reference among its accounts.
func (c *Client) FindReference(ctx context.Context, reference solana.PublicKey) (*Confirmation, error) {
	limit := referenceLookupLimit
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, reference, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get signatures for %s", reference)
	}

	// Results are newest first.
	for i := len(sigs) - 1; i >= 0; i-- {
		s := sigs[i]
		if s == nil || s.Err != nil {
			continue
		}
		return &Confirmation{
			Signature: s.Signature,
			Slot:      s.Slot,
			Status:    s.ConfirmationStatus,
		}, nil
	}
	return nil, ErrReferenceNotFound
}

// Payment is a native transfer located by its reference key.
type Payment struct {
	Signature solana.Signature
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Status    rpc.ConfirmationStatusType
}

// FindPayment locates the oldest successful transaction mentioning
// reference and decodes the System Program transfer that carries it.
func (c *Client) FindPayment(ctx context.Context, reference solana.PublicKey) (*Payment, error) {
	conf, err := c.FindReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, conf.Signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get transaction %s", conf.Signature)
	}
	if out == nil || out.Transaction == nil {
		return nil, errors.Errorf("get transaction %s: empty response", conf.Signature)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, errors.Wrapf(err, "decode transaction %s", conf.Signature)
	}

	p, err := referencedTransfer(tx, reference)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", conf.Signature)
	}
	p.Signature = conf.Signature
	p.Status = conf.Status
	return p, nil
}

// referencedTransfer returns the first System Program transfer in tx whose
// accounts include reference.
func referencedTransfer(tx *solana.Transaction, reference solana.PublicKey) (*Payment, error) {
	for i := range tx.Message.Instructions {
		ci := &tx.Message.Instructions[i]
		program, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, errors.Wrap(err, "resolve program")
		}
		if !program.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, errors.Wrap(err, "resolve accounts")
		}
		if len(accounts) < 2 || !hasAccount(accounts, reference) {
			continue
		}
		inst, err := system.DecodeInstruction(accounts, ci.Data)
		if err != nil {
			continue
		}
		transfer, ok := inst.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		return &Payment{
			From:     accounts[0].PublicKey,
			To:       accounts[1].PublicKey,
			Lamports: *transfer.Lamports,
		}, nil
	}
	return nil, ErrNotTransfer
}

func hasAccount(accounts []*solana.AccountMeta, key solana.PublicKey) bool {
	for _, a := range accounts {
		if a != nil && a.PublicKey.Equals(key) {
			return true
		}
	}
	return false
}

// Verify returns the settled payment carrying the base58-encoded reference,
// or nil while there is none.
func (c *Client) Verify(ctx context.Context, reference string) (*Payment, error) {
	key, err := solana.PublicKeyFromBase58(reference)
	if err != nil {
		return nil, errors.Wrap(err, "parse reference")
	}
	p, err := c.FindPayment(ctx, key)
	if errors.Is(err, ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status != rpc.ConfirmationStatusConfirmed && p.Status != rpc.ConfirmationStatusFinalized {
		return nil, nil
	}
	return p, nil
}
