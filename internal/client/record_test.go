package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlexZinkM/fident/internal/devbackend"
	"github.com/AlexZinkM/fident/internal/keys"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "legal winner thank year wave sausage worth useful legal winner thank yellow"

type staticToken string

func (s staticToken) BearerToken() string { return string(s) }

func jwtFor(sub string) staticToken {
	enc := base64.RawURLEncoding
	return staticToken(enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
		enc.EncodeToString([]byte(`{"sub":"`+sub+`"}`)) + ".sig")
}

func newBackend(t *testing.T) (*devbackend.Backend, string) {
	b := devbackend.New(nil, nil)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

func TestRecordClientFetchAndSave(t *testing.T) {
	ctx := context.Background()
	_, url := newBackend(t)
	c := NewRecordClient(url, 5*time.Second, jwtFor("alice"))

	rec, err := c.FetchIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	id, err := keys.DeriveIdentity(testSeed)
	require.NoError(t, err)

	saved, err := c.SaveIdentity(ctx, id.Address, id.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, id.Address, saved.Address)

	rec, err = c.FetchIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Matches(id))

	// records are per principal
	other := NewRecordClient(url, 5*time.Second, jwtFor("bob"))
	rec, err = other.FetchIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordClientSaveRejectsSecondAddress(t *testing.T) {
	ctx := context.Background()
	_, url := newBackend(t)
	c := NewRecordClient(url, 5*time.Second, jwtFor("alice"))

	first, err := keys.DeriveIdentity(testSeed)
	require.NoError(t, err)
	seed, err := keys.GenerateSeed(nil)
	require.NoError(t, err)
	second, err := keys.DeriveIdentity(seed)
	require.NoError(t, err)

	_, err = c.SaveIdentity(ctx, first.Address, first.PublicKey)
	require.NoError(t, err)
	_, err = c.SaveIdentity(ctx, second.Address, second.PublicKey)
	assert.ErrorIs(t, err, model.ErrServerRejected)
}

func TestRecordClientSubmitDID(t *testing.T) {
	ctx := context.Background()
	_, url := newBackend(t)
	c := NewRecordClient(url, 5*time.Second, jwtFor("alice"))

	id, err := keys.DeriveIdentity(testSeed)
	require.NoError(t, err)
	_, err = c.SaveIdentity(ctx, id.Address, id.PublicKey)
	require.NoError(t, err)

	key, err := keys.Keypair(testSeed)
	require.NoError(t, err)
	ix, err := memo.NewMemoInstructionBuilder().SetMessage([]byte("hello")).SetSigner(key.PublicKey()).ValidateAndBuild()
	require.NoError(t, err)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(key.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	})
	require.NoError(t, err)
	b64, err := tx.ToBase64()
	require.NoError(t, err)

	receipt, err := c.SubmitDID(ctx, &model.SignedBlob{Transaction: b64})
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0].String(), receipt.TransactionHash)
	assert.Equal(t, uint64(1), receipt.LedgerIndex)

	_, err = c.SubmitDID(ctx, &model.SignedBlob{Transaction: "bm90IGEgdHg="})
	assert.ErrorIs(t, err, model.ErrServerRejected)
}

func TestRecordClientWithoutToken(t *testing.T) {
	_, url := newBackend(t)
	c := NewRecordClient(url, time.Second, staticToken(""))

	_, err := c.FetchIdentity(context.Background())
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestRecordClientStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, model.ErrUnauthenticated},
		{http.StatusForbidden, model.ErrUnauthenticated},
		{http.StatusTooManyRequests, model.ErrNetworkUnavailable},
		{http.StatusBadGateway, model.ErrNetworkUnavailable},
		{http.StatusBadRequest, model.ErrServerRejected},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewRecordClient(srv.URL, time.Second, staticToken("t"))
			_, err := c.FetchIdentity(context.Background())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRecordClientGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"session expired","extensions":{"code":"UNAUTHENTICATED"}}]}`))
	}))
	defer srv.Close()

	c := NewRecordClient(srv.URL, time.Second, staticToken("t"))
	_, err := c.FetchIdentity(context.Background())
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestRecordClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := NewRecordClient(srv.URL, time.Second, staticToken("t"))
	_, err := c.FetchIdentity(context.Background())
	assert.ErrorIs(t, err, model.ErrServerRejected)
}

func TestRecordClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewRecordClient(url, time.Second, staticToken("t"))
	_, err := c.FetchIdentity(context.Background())
	assert.ErrorIs(t, err, model.ErrNetworkUnavailable)
	assert.True(t, model.IsRetryable(err))
}

func TestRecordClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewRecordClient(srv.URL, 20*time.Millisecond, staticToken("t"))
	_, err := c.SaveIdentity(context.Background(), "a", "b")
	assert.ErrorIs(t, err, model.ErrNetworkUnavailable)
}

func TestRecordClientGraphQLRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":null,"errors":[{"message":"address already registered"}]}`))
	}))
	defer srv.Close()

	c := NewRecordClient(srv.URL, time.Second, staticToken("t"))
	_, err := c.SaveIdentity(context.Background(), "a", "b")
	assert.ErrorIs(t, err, model.ErrServerRejected)
	assert.Contains(t, err.Error(), "address already registered")
	assert.False(t, model.IsRetryable(err))
}
