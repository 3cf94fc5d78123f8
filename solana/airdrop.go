package solana

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/fident/internal/client"
	"github.com/AlexZinkM/fident/internal/common"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Fund requests a faucet airdrop for address. Only devnet and testnet
// endpoints serve it; mainnet nodes reject the call.
func (l *Ledger) Fund(ctx context.Context, address string, lamports uint64) (string, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("invalid Solana address: %w", err)
	}

	session := l.dial(l.endpoint)
	defer session.Close()

	sig, err := session.RequestAirdrop(ctx, account, lamports)
	if err != nil {
		if client.IsRejection(err) {
			return "", fmt.Errorf("%w: %v", model.ErrServerRejected, err)
		}
		return "", fmt.Errorf("%w: %v", model.ErrLedgerUnreachable, err)
	}

	l.log.Info("airdrop requested",
		zap.String("address", address),
		zap.String("amount", common.LamportsToSOL(lamports)),
		zap.String("signature", sig.String()))
	return sig.String(), nil
}
