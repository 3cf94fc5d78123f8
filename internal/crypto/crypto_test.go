package crypto

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/AlexZinkM/fident/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{N: 1 << 10, R: 8, P: 1}

func TestEncryptDecrypt(t *testing.T) {
	data := &model.SecretData{Value: "word word word", UpdatedAt: "2026-01-01T00:00:00Z"}

	out, err := EncryptSecret("wallet_seed", data, []byte("pass"), testParams)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, utf8BOM))
	assert.NotContains(t, string(out), "word word word")

	file, got, err := DecryptSecret(out, "wallet_seed", []byte("pass"))
	require.NoError(t, err)
	assert.Equal(t, "wallet_seed", file.Slot)
	assert.Equal(t, testParams.N, file.ScryptN)
	assert.Equal(t, testParams.R, file.ScryptR)
	assert.Equal(t, testParams.P, file.ScryptP)
	assert.Equal(t, data, got)

	slot, err := ReadSlotName(out)
	require.NoError(t, err)
	assert.Equal(t, "wallet_seed", slot)
}

func TestDecryptWrongPassword(t *testing.T) {
	out, err := EncryptSecret("s", &model.SecretData{Value: "v"}, []byte("right"), testParams)
	require.NoError(t, err)

	_, _, err = DecryptSecret(out, "s", []byte("wrong"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestDecryptRejectsSlotSwap(t *testing.T) {
	out, err := EncryptSecret("a", &model.SecretData{Value: "v"}, []byte("pass"), testParams)
	require.NoError(t, err)

	// an intact envelope read as another slot
	_, _, err = DecryptSecret(out, "b", []byte("pass"))
	assert.ErrorIs(t, err, ErrSlotMismatch)

	// a relabelled envelope fails authentication
	var file model.SecretFile
	require.NoError(t, json.Unmarshal(bytes.TrimPrefix(out, utf8BOM), &file))
	file.Slot = "b"
	swapped, err := json.Marshal(file)
	require.NoError(t, err)

	_, _, err = DecryptSecret(swapped, "b", []byte("pass"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestDecryptUsesStoredCost(t *testing.T) {
	params := Params{N: 1 << 10, R: 4, P: 2}
	out, err := EncryptSecret("s", &model.SecretData{Value: "v"}, []byte("pass"), params)
	require.NoError(t, err)

	file, got, err := DecryptSecret(out, "s", []byte("pass"))
	require.NoError(t, err)
	assert.Equal(t, "v", got.Value)
	assert.Equal(t, 4, file.ScryptR)
	assert.Equal(t, 2, file.ScryptP)

	// envelopes written before r and p were recorded fall back to the defaults
	legacy, err := EncryptSecret("s", &model.SecretData{Value: "old"}, []byte("pass"), Params{N: 1 << 10, R: DefaultParams.R, P: DefaultParams.P})
	require.NoError(t, err)
	var lf model.SecretFile
	require.NoError(t, json.Unmarshal(bytes.TrimPrefix(legacy, utf8BOM), &lf))
	lf.ScryptR, lf.ScryptP = 0, 0
	stripped, err := json.Marshal(lf)
	require.NoError(t, err)
	_, got, err = DecryptSecret(stripped, "s", []byte("pass"))
	require.NoError(t, err)
	assert.Equal(t, "old", got.Value)
}

func TestEncryptEmptyPassword(t *testing.T) {
	_, err := EncryptSecret("s", &model.SecretData{Value: "v"}, nil, testParams)
	assert.Error(t, err)
}

func TestDecryptMalformed(t *testing.T) {
	_, _, err := DecryptSecret(nil, "s", []byte("pass"))
	assert.Error(t, err)
	_, _, err = DecryptSecret([]byte("{not json"), "s", []byte("pass"))
	assert.Error(t, err)
}
