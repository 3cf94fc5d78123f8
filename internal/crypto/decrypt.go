package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/fident/internal/model"
)

var (
	// ErrInvalidPassword is returned when the envelope does not open with the given password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrSlotMismatch is returned when an envelope sealed for one slot is read as another.
	ErrSlotMismatch = errors.New("envelope belongs to another slot")
)

// DecryptSecret opens file contents produced by EncryptSecret for slot.
// The slot is authenticated as additional data, so an envelope copied over
// another slot's file does not open.
// password must be []byte for security (caller should zero it after use)
func DecryptSecret(fileData []byte, slot string, password []byte) (*model.SecretFile, *model.SecretData, error) {
	file, err := parseFile(fileData)
	if err != nil {
		return nil, nil, err
	}
	if file.Slot != slot {
		return nil, nil, fmt.Errorf("%w: want %q, envelope says %q", ErrSlotMismatch, slot, file.Slot)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(file.CipherText)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	params := DefaultParams
	if file.ScryptN > 0 {
		params.N = file.ScryptN
	}
	if file.ScryptR > 0 {
		params.R = file.ScryptR
	}
	if file.ScryptP > 0 {
		params.P = file.ScryptP
	}

	aesGCM, err := newGCM(password, salt, params)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != aesGCM.NonceSize() {
		return nil, nil, errors.New("invalid nonce length")
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, []byte(slot))
	if err != nil {
		return nil, nil, ErrInvalidPassword
	}
	defer clear(plaintext) // wipe decrypted bytes from memory

	var data model.SecretData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal secret data: %w", err)
	}

	return file, &data, nil
}

// ReadSlotName reads only the slot name from file contents (without decryption)
func ReadSlotName(fileData []byte) (string, error) {
	file, err := parseFile(fileData)
	if err != nil {
		return "", err
	}
	return file.Slot, nil
}

func parseFile(fileData []byte) (*model.SecretFile, error) {
	if len(fileData) == 0 {
		return nil, errors.New("file is empty")
	}

	// Skip UTF-8 BOM if present
	fileData = bytes.TrimPrefix(fileData, utf8BOM)

	var file model.SecretFile
	if err := json.Unmarshal(fileData, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret file: %w", err)
	}
	return &file, nil
}
