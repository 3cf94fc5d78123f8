package solana

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AlexZinkM/fident/internal/common"
	"github.com/AlexZinkM/fident/internal/keys"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/memo"
	"go.uber.org/zap"
)

// MaxMemoBytes keeps the DID document inside a single legacy transaction.
const MaxMemoBytes = 566

// BinderConfig configures transaction templates.
type BinderConfig struct {
	Endpoint         string
	ComputeUnitLimit uint32
	PriorityFeeCap   uint64 // micro-lamports per compute unit
}

// Binder builds and signs identity-binding transactions.
// It holds no connection between calls.
type Binder struct {
	cfg  BinderConfig
	dial Dialer
	log  *zap.Logger
}

// NewBinder creates a Binder. A nil dial uses DialRPC.
func NewBinder(cfg BinderConfig, dial Dialer, log *zap.Logger) *Binder {
	if dial == nil {
		dial = DialRPC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{cfg: cfg, dial: dial, log: log}
}

// autofill holds the network-derived fields of a transaction.
type autofill struct {
	blockhash            solana.Hash
	lastValidBlockHeight uint64
	computeUnitPrice     uint64
}

// BindIdentity signs a transaction anchoring payload for the keypair derived
// from seed. The seed never leaves this call and the ledger session is
// closed before returning. Network failures during autofill are
// ErrLedgerUnreachable; everything else is ErrSigningFailed.
func (b *Binder) BindIdentity(ctx context.Context, seed string, payload model.DIDDocument) (*model.SignedBlob, error) {
	key, err := keys.Keypair(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSigningFailed, err)
	}
	defer clear(key)
	payer := key.PublicKey()

	if len(payload.VerificationMethod) == 0 || payload.VerificationMethod[0].PublicKeyBase58 != payer.String() {
		return nil, fmt.Errorf("%w: payload key does not belong to the seed", model.ErrSigningFailed)
	}

	memoData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal payload: %v", model.ErrSigningFailed, err)
	}
	if len(memoData) > MaxMemoBytes {
		return nil, fmt.Errorf("%w: payload is %d bytes, limit %d", model.ErrSigningFailed, len(memoData), MaxMemoBytes)
	}

	session := b.dial(b.cfg.Endpoint)
	defer session.Close()

	fill, err := b.autofill(ctx, session, payer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLedgerUnreachable, err)
	}

	tx, err := b.template(payer, memoData, fill)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSigningFailed, err)
	}

	sigs, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payer) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign transaction: %v", model.ErrSigningFailed, err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: signature check failed: %v", model.ErrSigningFailed, err)
	}

	encoded, err := tx.ToBase64()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode transaction: %v", model.ErrSigningFailed, err)
	}

	b.log.Info("identity transaction signed",
		zap.String("address", payer.String()),
		zap.String("signature", sigs[0].String()),
		zap.Uint64("lastValidBlockHeight", fill.lastValidBlockHeight),
		zap.Uint64("computeUnitPrice", fill.computeUnitPrice))

	return &model.SignedBlob{
		Transaction:          encoded,
		Signature:            sigs[0].String(),
		Blockhash:            fill.blockhash.String(),
		LastValidBlockHeight: fill.lastValidBlockHeight,
		ComputeUnitPrice:     fill.computeUnitPrice,
	}, nil
}

func (b *Binder) autofill(ctx context.Context, session Session, payer solana.PublicKey) (autofill, error) {
	blockhash, lastValid, err := session.LatestBlockhash(ctx)
	if err != nil {
		return autofill{}, err
	}

	fees, err := session.PrioritizationFees(ctx, payer)
	if err != nil {
		return autofill{}, err
	}
	price := common.MedianNonZero(fees)
	if price > b.cfg.PriorityFeeCap {
		price = b.cfg.PriorityFeeCap
	}

	return autofill{blockhash: blockhash, lastValidBlockHeight: lastValid, computeUnitPrice: price}, nil
}

func (b *Binder) template(payer solana.PublicKey, memoData []byte, fill autofill) (*solana.Transaction, error) {
	limitIx, err := computebudget.NewSetComputeUnitLimitInstruction(b.cfg.ComputeUnitLimit).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}
	priceIx, err := computebudget.NewSetComputeUnitPriceInstruction(fill.computeUnitPrice).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute price instruction: %w", err)
	}
	memoIx, err := memo.NewMemoInstructionBuilder().SetMessage(memoData).SetSigner(payer).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build memo instruction: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{limitIx, priceIx, memoIx},
		fill.blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}
