package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/AlexZinkM/fident/internal/crypto"
	"github.com/AlexZinkM/fident/internal/secretstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwtToken(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func TestPrincipalFromToken(t *testing.T) {
	assert.Equal(t, "user-42", PrincipalFromToken(jwtToken(`{"sub":"user-42","exp":1}`)))
	assert.Equal(t, "opaque-token", PrincipalFromToken("abc"))
	assert.Equal(t, "opaque-token", PrincipalFromToken(jwtToken(`{"exp":1}`)))
	assert.Equal(t, "", PrincipalFromToken(""))

	// unknown algorithms still yield the subject; the backend verifies signatures
	enc := base64.RawURLEncoding
	custom := enc.EncodeToString([]byte(`{"alg":"X-CUSTOM"}`)) + "." + enc.EncodeToString([]byte(`{"sub":"u7"}`)) + ".sig"
	assert.Equal(t, "u7", PrincipalFromToken(custom))

	// malformed claims or too many segments fall back to the opaque name
	assert.Equal(t, "opaque-token", PrincipalFromToken(enc.EncodeToString([]byte(`{"alg":"HS256"}`))+".!!!.sig"))
	assert.Equal(t, "opaque-token", PrincipalFromToken(jwtToken(`{"sub":"x"}`)+".extra"))
}

func TestTokenProvider(t *testing.T) {
	p := NewTokenProvider("  " + jwtToken(`{"sub":"u1"}`) + "\n")
	sub, ok := p.Principal()
	assert.True(t, ok)
	assert.Equal(t, "u1", sub)
	assert.NotContains(t, p.BearerToken(), " ")

	_, ok = NewTokenProvider("").Principal()
	assert.False(t, ok)

	var nilProvider *TokenProvider
	_, ok = nilProvider.Principal()
	assert.False(t, ok)
}

func newStore(t *testing.T) secretstore.Store {
	s, err := secretstore.NewFileStore(t.TempDir(), func() ([]byte, error) { return []byte("pw"), nil },
		secretstore.WithParams(crypto.Params{N: 1 << 10, R: 8, P: 1}))
	require.NoError(t, err)
	return s
}

func TestLoginLoadLogout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := Load(ctx, store, "")
	require.NoError(t, err)
	_, ok := p.Principal()
	assert.False(t, ok)

	_, err = Login(ctx, store, jwtToken(`{"sub":"alice"}`))
	require.NoError(t, err)

	p, err = Load(ctx, store, "")
	require.NoError(t, err)
	sub, ok := p.Principal()
	assert.True(t, ok)
	assert.Equal(t, "alice", sub)

	p, err = Load(ctx, store, jwtToken(`{"sub":"env"}`))
	require.NoError(t, err)
	sub, _ = p.Principal()
	assert.Equal(t, "env", sub)

	require.NoError(t, Logout(ctx, store))
	p, err = Load(ctx, store, "")
	require.NoError(t, err)
	_, ok = p.Principal()
	assert.False(t, ok)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	_, err := Login(context.Background(), newStore(t), "   ")
	assert.Error(t, err)
}
