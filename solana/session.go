package solana

import (
	"context"

	"github.com/AlexZinkM/fident/internal/client"

	"github.com/gagliardetto/solana-go"
)

// Session is one short-lived connection to a ledger RPC endpoint.
type Session interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error)
	PrioritizationFees(ctx context.Context, accounts ...solana.PublicKey) ([]uint64, error)
	SendTransaction(ctx context.Context, encoded string) (solana.Signature, error)
	Slot(ctx context.Context) (uint64, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error)
	GetSOLBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	Close() error
}

// Dialer opens a Session for endpoint.
type Dialer func(endpoint string) Session

// DialRPC opens a JSON-RPC session.
func DialRPC(endpoint string) Session {
	return client.NewSolanaClient(endpoint)
}
