// Package devbackend is an in-memory identity record service speaking the
// same GraphQL contract as the production backend. It backs local
// development and the client tests.
package devbackend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/AlexZinkM/fident/internal/auth"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.uber.org/zap"
)

const schema = `
schema {
  query: Query
  mutation: Mutation
}

type Query {
  me: User
}

type Mutation {
  saveWalletAddress(address: String!, publicKey: String!): User!
  submitDID(txBlob: String!): Receipt!
}

type User {
  id: ID!
  walletAddress: String
  publicKey: String
}

type Receipt {
  transactionHash: String!
  ledgerIndex: Float!
}
`

// Submitter forwards signed transactions to a ledger.
type Submitter interface {
	Submit(ctx context.Context, blob *model.SignedBlob) (*model.Receipt, error)
}

// Backend holds one address record per principal.
type Backend struct {
	mu        sync.Mutex
	records   map[string]model.IdentityRecord
	submitter Submitter
	nextIndex uint64
	log       *zap.Logger
	schema    *graphql.Schema
}

// New returns an empty backend. A nil submitter accepts transactions
// without broadcasting them and numbers them locally.
func New(submitter Submitter, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Backend{
		records:   make(map[string]model.IdentityRecord),
		submitter: submitter,
		nextIndex: 1,
		log:       log,
	}
	b.schema = graphql.MustParseSchema(schema, &resolver{b: b})
	return b
}

// Record returns the stored record for principal.
func (b *Backend) Record(principal string) (model.IdentityRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[principal]
	return rec, ok
}

// Handler serves the GraphQL endpoint. Requests without a bearer token get 401.
func (b *Backend) Handler() http.Handler {
	gql := &relay.Handler{Schema: b.schema}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		principal := auth.PrincipalFromToken(strings.TrimSpace(token))
		if !ok || principal == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(model.ErrorResponse{Error: "missing bearer token", Code: "UNAUTHENTICATED"})
			return
		}
		gql.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

type principalKey struct{}

func principalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

type codedError struct {
	msg  string
	code string
}

func (e *codedError) Error() string { return e.msg }

func (e *codedError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

type resolver struct {
	b *Backend
}

func (r *resolver) Me(ctx context.Context) (*userResolver, error) {
	principal := principalFrom(ctx)
	rec, ok := r.b.Record(principal)
	u := &userResolver{principal: principal}
	if ok {
		u.rec = &rec
	}
	return u, nil
}

func (r *resolver) SaveWalletAddress(ctx context.Context, args struct {
	Address   string
	PublicKey string
}) (*userResolver, error) {
	principal := principalFrom(ctx)

	pub, err := solana.PublicKeyFromBase58(args.Address)
	if err != nil {
		return nil, &codedError{msg: "invalid address", code: "BAD_USER_INPUT"}
	}
	if !strings.EqualFold(hex.EncodeToString(pub[:]), args.PublicKey) {
		return nil, &codedError{msg: "public key does not match address", code: "BAD_USER_INPUT"}
	}

	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if existing, ok := r.b.records[principal]; ok {
		if existing.Address != args.Address {
			return nil, &codedError{msg: "wallet address already registered", code: "ADDRESS_IMMUTABLE"}
		}
		return &userResolver{principal: principal, rec: &existing}, nil
	}

	rec := model.IdentityRecord{Address: args.Address, PublicKey: strings.ToLower(args.PublicKey)}
	r.b.records[principal] = rec
	r.b.log.Info("wallet address registered", zap.String("principal", principal), zap.String("address", rec.Address))
	return &userResolver{principal: principal, rec: &rec}, nil
}

func (r *resolver) SubmitDID(ctx context.Context, args struct{ TxBlob string }) (*receiptResolver, error) {
	principal := principalFrom(ctx)
	rec, ok := r.b.Record(principal)
	if !ok {
		return nil, &codedError{msg: "no wallet address registered", code: "FAILED_PRECONDITION"}
	}

	tx, err := solana.TransactionFromBase64(args.TxBlob)
	if err != nil {
		return nil, &codedError{msg: "malformed transaction", code: "BAD_USER_INPUT"}
	}
	if err := tx.VerifySignatures(); err != nil || len(tx.Signatures) == 0 {
		return nil, &codedError{msg: "invalid transaction signature", code: "BAD_USER_INPUT"}
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.AccountKeys[0].String() != rec.Address {
		return nil, &codedError{msg: "transaction is not signed by the registered wallet", code: "FORBIDDEN"}
	}

	if r.b.submitter != nil {
		receipt, err := r.b.submitter.Submit(ctx, &model.SignedBlob{Transaction: args.TxBlob, Signature: tx.Signatures[0].String()})
		if err != nil {
			r.b.log.Warn("ledger submission failed", zap.String("address", rec.Address), zap.Error(err))
			return nil, &codedError{msg: err.Error(), code: model.Code(err)}
		}
		return &receiptResolver{receipt: *receipt}, nil
	}

	r.b.mu.Lock()
	index := r.b.nextIndex
	r.b.nextIndex++
	r.b.mu.Unlock()

	r.b.log.Info("identity transaction accepted", zap.String("address", rec.Address), zap.Uint64("ledgerIndex", index))
	return &receiptResolver{receipt: model.Receipt{TransactionHash: tx.Signatures[0].String(), LedgerIndex: index}}, nil
}

type userResolver struct {
	principal string
	rec       *model.IdentityRecord
}

func (u *userResolver) ID() graphql.ID { return graphql.ID(u.principal) }

func (u *userResolver) WalletAddress() *string {
	if u.rec == nil {
		return nil
	}
	return &u.rec.Address
}

func (u *userResolver) PublicKey() *string {
	if u.rec == nil {
		return nil
	}
	return &u.rec.PublicKey
}

type receiptResolver struct {
	receipt model.Receipt
}

func (r *receiptResolver) TransactionHash() string { return r.receipt.TransactionHash }

func (r *receiptResolver) LedgerIndex() float64 { return float64(r.receipt.LedgerIndex) }
