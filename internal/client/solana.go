package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// JSON-RPC error codes that mean "try again later" rather than "your transaction is bad".
const (
	rpcCodeTooManyRequests = 429
	rpcCodeNodeUnhealthy   = -32005
)

// SolanaClient is a short-lived session with a Solana RPC endpoint.
// Callers open one per operation and Close it when done.
type SolanaClient struct {
	rpcClient *rpc.Client
	rpcURL    string
}

// NewSolanaClient creates a new Solana client for the endpoint.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
	}
}

// LatestBlockhash returns the finalized blockhash and the last block height at which
// a transaction referencing it is still valid.
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return solana.Hash{}, 0, errors.New("failed to get recent blockhash: empty response")
	}
	return recent.Value.Blockhash, recent.Value.LastValidBlockHeight, nil
}

// PrioritizationFees returns recent per-compute-unit fees (micro-lamports) paid by
// transactions touching accounts.
func (c *SolanaClient) PrioritizationFees(ctx context.Context, accounts ...solana.PublicKey) ([]uint64, error) {
	res, err := c.rpcClient.GetRecentPrioritizationFees(ctx, solana.PublicKeySlice(accounts))
	if err != nil {
		return nil, fmt.Errorf("failed to get prioritization fees: %w", err)
	}
	fees := make([]uint64, 0, len(res))
	for _, r := range res {
		fees = append(fees, r.PrioritizationFee)
	}
	return fees, nil
}

// SendTransaction submits a base64-encoded signed transaction with preflight checks.
func (c *SolanaClient) SendTransaction(ctx context.Context, encoded string) (solana.Signature, error) {
	sig, err := c.rpcClient.SendEncodedTransactionWithOpts(
		ctx,
		encoded,
		rpc.TransactionOpts{
			SkipPreflight:       false, // Transaction validation before node
			PreflightCommitment: rpc.CommitmentFinalized,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// Slot returns the current confirmed slot.
func (c *SolanaClient) Slot(ctx context.Context) (uint64, error) {
	slot, err := c.rpcClient.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// RequestAirdrop asks a faucet-enabled cluster to fund account.
func (c *SolanaClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := c.rpcClient.RequestAirdrop(ctx, account, lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to request airdrop: %w", err)
	}
	return sig, nil
}

// GetSOLBalance gets SOL balance in lamports
func (c *SolanaClient) GetSOLBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	balance, err := c.rpcClient.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	return balance.Value, nil
}

// Close releases the underlying HTTP transport.
func (c *SolanaClient) Close() error {
	return c.rpcClient.Close()
}

// IsRejection reports whether err is a JSON-RPC error returned by a reachable node
// for this specific request, as opposed to a transport failure or overload.
func IsRejection(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code != rpcCodeTooManyRequests && rpcErr.Code != rpcCodeNodeUnhealthy
}
