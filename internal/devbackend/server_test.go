package devbackend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(h http.Handler, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresBearer(t *testing.T) {
	h := New(nil, nil).Handler()

	rec := post(h, `{"query":"{ me { walletAddress } }"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSaveWalletAddressValidatesKey(t *testing.T) {
	b := New(nil, nil)
	h := b.Handler()

	rec := post(h, `{"query":"mutation { saveWalletAddress(address: \"nope\", publicKey: \"00\") { walletAddress } }"}`, "dev")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_USER_INPUT")

	_, ok := b.Record("opaque-token")
	assert.False(t, ok)
}

func TestMeWithoutRecord(t *testing.T) {
	rec := post(New(nil, nil).Handler(), `{"query":"{ me { walletAddress publicKey } }"}`, "dev")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"me":{"walletAddress":null,"publicKey":null}}}`, rec.Body.String())
}
