package model

// DIDDocument is the identity-binding payload anchored on the ledger
type DIDDocument struct {
	Context            []string             `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
}

// VerificationMethod describes one key of a DID document
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// SignedBlob is a signed ledger transaction ready for submission.
// It is single-use: a new autofill produces a new blob.
type SignedBlob struct {
	Transaction          string `json:"transaction"` // base64 wire encoding
	Signature            string `json:"signature"`
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	ComputeUnitPrice     uint64 `json:"computeUnitPrice"`
}

// Receipt is the result of a successful submission
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	LedgerIndex     uint64 `json:"ledgerIndex"`
}
