package model

import "errors"

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var (
	ErrInvalidSeed        = errors.New("invalid seed")
	ErrStoreUnavailable   = errors.New("secret store unavailable")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServerRejected     = errors.New("server rejected request")
	ErrLedgerUnreachable  = errors.New("ledger unreachable")
	ErrSigningFailed      = errors.New("signing failed")
	ErrSeedMismatch       = errors.New("seed does not match the registered address")
	ErrStateCorruption    = errors.New("local secret does not match the remote record")
	ErrInvalidTransition  = errors.New("operation not allowed in current state")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidSeed, "INVALID_SEED"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
	{ErrUnauthenticated, "UNAUTHENTICATED"},
	{ErrNetworkUnavailable, "NETWORK_UNAVAILABLE"},
	{ErrServerRejected, "SERVER_REJECTED"},
	{ErrLedgerUnreachable, "LEDGER_UNREACHABLE"},
	{ErrSigningFailed, "SIGNING_FAILED"},
	{ErrSeedMismatch, "SEED_MISMATCH"},
	{ErrStateCorruption, "STATE_CORRUPTION"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
}

// Code returns the stable API code of err, or "INTERNAL" when err is not
// one of the sentinels above.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// IsRetryable reports whether the caller may retry the same operation
// without changing its input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrLedgerUnreachable)
}
