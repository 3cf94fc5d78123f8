package model

// StateResponse represents response for GET /wallet/state
type StateResponse struct {
	State       string         `json:"state"`
	Address     string         `json:"address,omitempty"`
	PublicKey   string         `json:"publicKey,omitempty"`
	QR          string         `json:"QR,omitempty"`
	SyncPending bool           `json:"syncPending"`
	Receipt     *Receipt       `json:"receipt,omitempty"`
	Effects     []string       `json:"effects,omitempty"`
	Error       *ErrorResponse `json:"lastError,omitempty"`
}

// RestoreRequest represents request for POST /wallet/restore
type RestoreRequest struct {
	Seed string `json:"seed"`
}

// SecretResponse represents response for GET /wallet/secret
type SecretResponse struct {
	Seed    string `json:"seed"`
	Address string `json:"address"`
}

// BalanceResponse represents response for GET /wallet/balance
type BalanceResponse struct {
	Address string `json:"address"`
	SOL     string `json:"sol"`
}
