package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/AlexZinkM/fident/internal/keys"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "legal winner thank year wave sausage worth useful legal winner thank yellow"

type fakeSession struct {
	blockhash    solana.Hash
	lastValid    uint64
	fees         []uint64
	blockhashErr error
	feesErr      error
	sendErr      error
	slot         uint64
	slotErr      error
	airdropErr   error
	balance      uint64

	sent    []string
	dialed  int
	closed  int
	lastAir uint64
}

func (f *fakeSession) dial(string) Session {
	f.dialed++
	return f
}

func (f *fakeSession) LatestBlockhash(context.Context) (solana.Hash, uint64, error) {
	return f.blockhash, f.lastValid, f.blockhashErr
}

func (f *fakeSession) PrioritizationFees(context.Context, ...solana.PublicKey) ([]uint64, error) {
	return f.fees, f.feesErr
}

func (f *fakeSession) SendTransaction(_ context.Context, encoded string) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, encoded)
	tx, err := solana.TransactionFromBase64(encoded)
	if err != nil {
		return solana.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (f *fakeSession) Slot(context.Context) (uint64, error) { return f.slot, f.slotErr }

func (f *fakeSession) RequestAirdrop(_ context.Context, _ solana.PublicKey, lamports uint64) (solana.Signature, error) {
	f.lastAir = lamports
	return solana.Signature{1}, f.airdropErr
}

func (f *fakeSession) GetSOLBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func testIdentity(t *testing.T) model.Identity {
	id, err := keys.DeriveIdentity(testSeed)
	require.NoError(t, err)
	return id
}

func newBinder(f *fakeSession) *Binder {
	return NewBinder(BinderConfig{ComputeUnitLimit: 20000, PriorityFeeCap: 1000}, f.dial, nil)
}

func TestBuildDIDDocument(t *testing.T) {
	id := testIdentity(t)
	doc := BuildDIDDocument("devnet", id)

	assert.Equal(t, "did:sol:devnet:"+id.Address, doc.ID)
	require.Len(t, doc.VerificationMethod, 1)
	assert.Equal(t, doc.ID+"#key-1", doc.VerificationMethod[0].ID)
	assert.Equal(t, "Ed25519VerificationKey2018", doc.VerificationMethod[0].Type)
	assert.Equal(t, id.Address, doc.VerificationMethod[0].PublicKeyBase58)
	assert.Equal(t, []string{doc.ID + "#key-1"}, doc.Authentication)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), MaxMemoBytes)
}

func TestBindIdentitySignsTemplate(t *testing.T) {
	f := &fakeSession{blockhash: solana.Hash{7}, lastValid: 999, fees: []uint64{0, 300, 100, 200}}
	id := testIdentity(t)
	doc := BuildDIDDocument("devnet", id)

	blob, err := newBinder(f).BindIdentity(context.Background(), testSeed, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, f.dialed)
	assert.Equal(t, 1, f.closed, "session must be closed before returning")

	assert.Equal(t, uint64(999), blob.LastValidBlockHeight)
	assert.Equal(t, uint64(200), blob.ComputeUnitPrice)
	assert.Equal(t, solana.Hash{7}.String(), blob.Blockhash)

	tx, err := solana.TransactionFromBase64(blob.Transaction)
	require.NoError(t, err)
	require.NoError(t, tx.VerifySignatures())
	assert.Equal(t, blob.Signature, tx.Signatures[0].String())
	assert.Equal(t, id.Address, tx.Message.AccountKeys[0].String())
	assert.Equal(t, solana.Hash{7}, tx.Message.RecentBlockhash)

	programs, err := tx.GetProgramIDs()
	require.NoError(t, err)
	require.Len(t, programs, 3)
	assert.Equal(t, computebudget.ProgramID, programs[0])
	assert.Equal(t, computebudget.ProgramID, programs[1])
	assert.Equal(t, memo.ProgramID, programs[2])

	docJSON, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(tx.Message.Instructions[2].Data), string(docJSON))
}

func TestBindIdentityCapsPriorityFee(t *testing.T) {
	f := &fakeSession{fees: []uint64{5000, 7000, 9000}}
	blob, err := newBinder(f).BindIdentity(context.Background(), testSeed, BuildDIDDocument("devnet", testIdentity(t)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), blob.ComputeUnitPrice)
}

func TestBindIdentityAutofillFailure(t *testing.T) {
	doc := BuildDIDDocument("devnet", testIdentity(t))

	f := &fakeSession{blockhashErr: errors.New("dial tcp: connection refused")}
	_, err := newBinder(f).BindIdentity(context.Background(), testSeed, doc)
	assert.ErrorIs(t, err, model.ErrLedgerUnreachable)
	assert.Equal(t, 1, f.closed)

	f = &fakeSession{feesErr: errors.New("timeout")}
	_, err = newBinder(f).BindIdentity(context.Background(), testSeed, doc)
	assert.ErrorIs(t, err, model.ErrLedgerUnreachable)
	assert.Equal(t, 1, f.closed)
}

func TestBindIdentityInvalidSeed(t *testing.T) {
	f := &fakeSession{}
	_, err := newBinder(f).BindIdentity(context.Background(), "not a seed", BuildDIDDocument("devnet", testIdentity(t)))
	assert.ErrorIs(t, err, model.ErrSigningFailed)
	assert.Zero(t, f.dialed, "no ledger session for a seed that cannot sign")
}

func TestBindIdentityForeignPayload(t *testing.T) {
	other, err := keys.GenerateSeed(nil)
	require.NoError(t, err)
	otherID, err := keys.DeriveIdentity(other)
	require.NoError(t, err)

	f := &fakeSession{}
	_, err = newBinder(f).BindIdentity(context.Background(), testSeed, BuildDIDDocument("devnet", otherID))
	assert.ErrorIs(t, err, model.ErrSigningFailed)
}

func TestBindIdentityOversizedPayload(t *testing.T) {
	doc := BuildDIDDocument(strings.Repeat("x", MaxMemoBytes), testIdentity(t))
	f := &fakeSession{}
	_, err := newBinder(f).BindIdentity(context.Background(), testSeed, doc)
	assert.ErrorIs(t, err, model.ErrSigningFailed)
	assert.Zero(t, f.dialed)
}

func TestBindIdentityNewAutofillNewBlob(t *testing.T) {
	doc := BuildDIDDocument("devnet", testIdentity(t))
	first, err := newBinder(&fakeSession{blockhash: solana.Hash{1}}).BindIdentity(context.Background(), testSeed, doc)
	require.NoError(t, err)
	second, err := newBinder(&fakeSession{blockhash: solana.Hash{2}}).BindIdentity(context.Background(), testSeed, doc)
	require.NoError(t, err)
	assert.NotEqual(t, first.Transaction, second.Transaction)
	assert.NotEqual(t, first.Signature, second.Signature)
}

func signedBlob(t *testing.T) *model.SignedBlob {
	blob, err := newBinder(&fakeSession{}).BindIdentity(context.Background(), testSeed, BuildDIDDocument("devnet", testIdentity(t)))
	require.NoError(t, err)
	return blob
}

func TestLedgerSubmit(t *testing.T) {
	blob := signedBlob(t)
	f := &fakeSession{slot: 4242}
	receipt, err := NewLedger("", f.dial, nil).Submit(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, blob.Signature, receipt.TransactionHash)
	assert.Equal(t, uint64(4242), receipt.LedgerIndex)
	assert.Equal(t, 1, f.closed)

	// resubmitting the same blob is allowed
	_, err = NewLedger("", f.dial, nil).Submit(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, f.sent[0], f.sent[1])
}

func TestLedgerSubmitSlotFailureStillReturnsReceipt(t *testing.T) {
	blob := signedBlob(t)
	f := &fakeSession{slotErr: errors.New("flaky")}
	receipt, err := NewLedger("", f.dial, nil).Submit(context.Background(), blob)
	require.NoError(t, err)
	assert.Zero(t, receipt.LedgerIndex)
}

func TestLedgerSubmitErrorMapping(t *testing.T) {
	blob := signedBlob(t)
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"rejected", &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}, model.ErrServerRejected},
		{"rate limited", &jsonrpc.RPCError{Code: 429, Message: "Too many requests"}, model.ErrLedgerUnreachable},
		{"transport", errors.New("connection reset"), model.ErrLedgerUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeSession{sendErr: tc.err}
			_, err := NewLedger("", f.dial, nil).Submit(context.Background(), blob)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLedgerFund(t *testing.T) {
	id := testIdentity(t)
	f := &fakeSession{}
	sig, err := NewLedger("", f.dial, nil).Fund(context.Background(), id.Address, 1_000_000_000)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, uint64(1_000_000_000), f.lastAir)

	f = &fakeSession{airdropErr: &jsonrpc.RPCError{Code: -32600, Message: "airdrop not supported"}}
	_, err = NewLedger("", f.dial, nil).Fund(context.Background(), id.Address, 1)
	assert.ErrorIs(t, err, model.ErrServerRejected)

	_, err = NewLedger("", f.dial, nil).Fund(context.Background(), "bogus", 1)
	assert.Error(t, err)
}

func TestLedgerBalance(t *testing.T) {
	id := testIdentity(t)
	f := &fakeSession{balance: 1_500_000_000}
	bal, err := NewLedger("", f.dial, nil).Balance(context.Background(), id.Address)
	require.NoError(t, err)
	assert.Equal(t, "1.500000000", bal.SOL)
	assert.Equal(t, id.Address, bal.Address)
}

func TestAddressQR(t *testing.T) {
	qr, err := AddressQR(testIdentity(t).Address)
	require.NoError(t, err)
	png, err := base64.StdEncoding.DecodeString(qr)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}
