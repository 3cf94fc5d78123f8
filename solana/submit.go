package solana

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/fident/internal/client"
	"github.com/AlexZinkM/fident/internal/model"

	"go.uber.org/zap"
)

// Ledger performs direct ledger calls: submission, faucet funding and balance.
type Ledger struct {
	endpoint string
	dial     Dialer
	log      *zap.Logger
}

// NewLedger creates a Ledger. A nil dial uses DialRPC.
func NewLedger(endpoint string, dial Dialer, log *zap.Logger) *Ledger {
	if dial == nil {
		dial = DialRPC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{endpoint: endpoint, dial: dial, log: log}
}

// Submit broadcasts a signed blob. Submitting the same blob twice is safe; the
// ledger deduplicates by signature. A node that rejects the transaction gives
// ErrServerRejected, anything else ErrLedgerUnreachable.
func (l *Ledger) Submit(ctx context.Context, blob *model.SignedBlob) (*model.Receipt, error) {
	session := l.dial(l.endpoint)
	defer session.Close()

	sig, err := session.SendTransaction(ctx, blob.Transaction)
	if err != nil {
		if client.IsRejection(err) {
			return nil, fmt.Errorf("%w: %v", model.ErrServerRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrLedgerUnreachable, err)
	}

	slot, err := session.Slot(ctx)
	if err != nil {
		// the transaction is already in flight; report it without an index
		l.log.Warn("failed to read slot after submission", zap.String("signature", sig.String()), zap.Error(err))
		slot = 0
	}

	l.log.Info("identity transaction submitted", zap.String("signature", sig.String()), zap.Uint64("slot", slot))
	return &model.Receipt{TransactionHash: sig.String(), LedgerIndex: slot}, nil
}
