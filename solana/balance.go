package solana

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/fident/internal/common"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Balance gets the SOL balance of address
func (l *Ledger) Balance(ctx context.Context, address string) (*model.BalanceResponse, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address: %w", err)
	}

	session := l.dial(l.endpoint)
	defer session.Close()

	lamports, err := session.GetSOLBalance(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLedgerUnreachable, err)
	}

	return &model.BalanceResponse{
		Address: address,
		SOL:     common.LamportsToSOL(lamports),
	}, nil
}
