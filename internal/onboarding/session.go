package onboarding

import "github.com/AlexZinkM/fident/internal/auth"

// Session is the signed-in context a Machine runs under. It is created at
// sign-in and dropped at sign-out together with its Machine.
type Session struct {
	provider auth.Provider
}

// NewSession wraps p. A nil provider is a signed-out session.
func NewSession(p auth.Provider) *Session {
	return &Session{provider: p}
}

// Principal reports the signed-in principal.
func (s *Session) Principal() (string, bool) {
	if s == nil || s.provider == nil {
		return "", false
	}
	return s.provider.Principal()
}

// BearerToken returns the credential for remote calls.
func (s *Session) BearerToken() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.BearerToken()
}
