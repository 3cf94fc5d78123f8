package solana

import (
	"github.com/AlexZinkM/fident/internal/model"
)

const (
	didMethod         = "sol"
	verificationKeyID = "#key-1"
	verificationType  = "Ed25519VerificationKey2018"
)

// DIDFor returns did:sol:<network>:<address>.
func DIDFor(network string, id model.Identity) string {
	return "did:" + didMethod + ":" + network + ":" + id.Address
}

// BuildDIDDocument returns the document binding id's key to its DID.
func BuildDIDDocument(network string, id model.Identity) model.DIDDocument {
	did := DIDFor(network, id)
	keyID := did + verificationKeyID
	return model.DIDDocument{
		ID: did,
		VerificationMethod: []model.VerificationMethod{{
			ID:              keyID,
			Type:            verificationType,
			Controller:      did,
			PublicKeyBase58: id.Address,
		}},
		Authentication: []string{keyID},
	}
}
