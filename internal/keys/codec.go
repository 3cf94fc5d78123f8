// Package keys converts wallet seeds into ledger keypairs.
//
// A seed is a BIP-39 English mnemonic. The first 32 bytes of the BIP-39
// seed (empty passphrase) are the ed25519 private seed, so the same words
// always yield the same address.
package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AlexZinkM/fident/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

const entropyBits = 256 // 24 words

// EntropySource returns bitSize bits of randomness.
type EntropySource func(bitSize int) ([]byte, error)

// DefaultEntropy reads from crypto/rand through go-bip39.
var DefaultEntropy EntropySource = bip39.NewEntropy

// NormalizeSeed lower-cases the words and collapses whitespace.
func NormalizeSeed(seed string) string {
	return strings.ToLower(strings.Join(strings.Fields(seed), " "))
}

// GenerateSeed creates a fresh 24-word mnemonic.
func GenerateSeed(entropy EntropySource) (string, error) {
	if entropy == nil {
		entropy = DefaultEntropy
	}
	raw, err := entropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	defer clear(raw)

	mnemonic, err := bip39.NewMnemonic(raw)
	if err != nil {
		return "", fmt.Errorf("failed to build mnemonic: %w", err)
	}
	return mnemonic, nil
}

// Keypair derives the signing key for seed.
// Caller must zero the returned key after use.
func Keypair(seed string) (solana.PrivateKey, error) {
	mnemonic := NormalizeSeed(seed)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, model.ErrInvalidSeed
	}

	raw, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSeed, err)
	}
	defer clear(raw)

	return solana.PrivateKey(ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])), nil
}

// DeriveIdentity returns the public identity for seed. It is pure and
// deterministic; malformed or checksum-failing seeds return ErrInvalidSeed.
func DeriveIdentity(seed string) (model.Identity, error) {
	key, err := Keypair(seed)
	if err != nil {
		return model.Identity{}, err
	}
	defer clear(key)

	pub := key.PublicKey()
	return model.Identity{
		Address:   pub.String(),
		PublicKey: hex.EncodeToString(pub[:]),
	}, nil
}
