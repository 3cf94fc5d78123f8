package model

// SecretFile represents the on-disk envelope of one secret slot
type SecretFile struct {
	Slot       string `json:"slot"`
	ScryptN    int    `json:"scryptN,omitempty"`
	ScryptR    int    `json:"scryptR,omitempty"`
	ScryptP    int    `json:"scryptP,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// SecretData represents decrypted slot contents
type SecretData struct {
	Value     string `json:"value"`
	UpdatedAt string `json:"updatedAt"`
}

// Identity is the public half of a keypair derived from a seed.
// Address is the base58 ledger address, PublicKey the hex of the same bytes.
type Identity struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// IdentityRecord is the backend's authoritative address record for a principal.
type IdentityRecord struct {
	Address   string `json:"walletAddress"`
	PublicKey string `json:"publicKey"`
}

// Matches reports whether the record belongs to id.
func (r *IdentityRecord) Matches(id Identity) bool {
	return r != nil && r.Address == id.Address
}
