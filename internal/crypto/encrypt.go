package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AlexZinkM/fident/internal/model"

	"golang.org/x/crypto/scrypt"
)

// Params are the scrypt cost parameters of an envelope.
//
// N=2^18 (~256MB RAM, 0.5-2s) keeps brute force expensive while still
// fitting phones and small desktops. N=2^20 fails under typical per-app
// memory limits on mobile.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams is used for every slot written in production.
var DefaultParams = Params{N: 1 << 18, R: 8, P: 1}

const (
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncryptSecret seals data for slot and returns the file contents.
// password must be []byte for security (caller should zero it after use)
func EncryptSecret(slot string, data *model.SecretData, password []byte, params Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("password is empty")
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(password, salt, params)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret data: %w", err)
	}
	defer clear(plaintext) // wipe plaintext bytes from memory

	// slot name is bound as additional data
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, []byte(slot))

	file := model.SecretFile{
		Slot:       slot,
		ScryptN:    params.N,
		ScryptR:    params.R,
		ScryptP:    params.P,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}

	fileData, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret file: %w", err)
	}

	// UTF-8 BOM for proper display in Windows
	return append(append([]byte{}, utf8BOM...), fileData...), nil
}

func newGCM(password, salt []byte, params Params) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
