// Package auth exposes the session principal and bearer credential.
//
// Token exchange happens elsewhere; this package only keeps the access token
// the user pasted or the login flow stored, and reads the principal out of it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlexZinkM/fident/internal/secretstore"

	"github.com/golang-jwt/jwt/v5"
)

// Provider reports who is signed in.
type Provider interface {
	Principal() (string, bool)
	BearerToken() string
}

// TokenProvider is a Provider backed by a single access token.
type TokenProvider struct {
	token     string
	principal string
}

// NewTokenProvider parses token. An empty token yields a signed-out provider.
func NewTokenProvider(token string) *TokenProvider {
	token = strings.TrimSpace(token)
	return &TokenProvider{token: token, principal: PrincipalFromToken(token)}
}

// Principal returns the subject of the token.
func (p *TokenProvider) Principal() (string, bool) {
	if p == nil || p.token == "" {
		return "", false
	}
	return p.principal, true
}

// BearerToken returns the raw access token.
func (p *TokenProvider) BearerToken() string {
	if p == nil {
		return ""
	}
	return p.token
}

// PrincipalFromToken returns the "sub" claim of a JWT, or a stable opaque
// name for tokens that are not JWTs. The signature is not checked here; the
// backend verifies it on every call.
func PrincipalFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if (err == nil || errors.Is(err, jwt.ErrTokenUnverifiable)) && claims.Subject != "" {
		return claims.Subject
	}
	return "opaque-token"
}

// Load builds a provider from an explicit token (environment override) or,
// when empty, from the token slot of store.
func Load(ctx context.Context, store secretstore.Store, override string) (*TokenProvider, error) {
	if override != "" {
		return NewTokenProvider(override), nil
	}
	token, _, err := store.Get(ctx, secretstore.SlotAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}
	return NewTokenProvider(token), nil
}

// Login persists token and returns a provider for it.
func Login(ctx context.Context, store secretstore.Store, token string) (*TokenProvider, error) {
	p := NewTokenProvider(token)
	if _, ok := p.Principal(); !ok {
		return nil, fmt.Errorf("access token is empty")
	}
	if err := store.Set(ctx, secretstore.SlotAuthToken, p.token); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}
	return p, nil
}

// Logout forgets the stored token. The wallet seed is kept.
func Logout(ctx context.Context, store secretstore.Store) error {
	if err := store.Delete(ctx, secretstore.SlotAuthToken); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}
