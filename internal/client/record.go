package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AlexZinkM/fident/internal/model"

	"github.com/machinebox/graphql"
)

const (
	maxResponseBytes = 1 << 20

	meQuery = `query Me { me { walletAddress publicKey } }`

	saveWalletMutation = `mutation SaveWalletAddress($address: String!, $publicKey: String!) {
  saveWalletAddress(address: $address, publicKey: $publicKey) { walletAddress publicKey }
}`

	submitDIDMutation = `mutation SubmitDID($txBlob: String!) {
  submitDID(txBlob: $txBlob) { transactionHash ledgerIndex }
}`
)

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	BearerToken() string
}

// RecordClient talks to the backend identity record service over GraphQL.
type RecordClient struct {
	gql    *graphql.Client
	tokens TokenSource
}

// NewRecordClient creates a new record service client
func NewRecordClient(endpoint string, timeout time.Duration, tokens TokenSource) *RecordClient {
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &statusTransport{next: http.DefaultTransport},
	}
	// The client's Log hook stays a no-op: it prints request headers,
	// which carry the bearer token.
	return &RecordClient{
		gql:    graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient)),
		tokens: tokens,
	}
}

type identityPayload struct {
	WalletAddress *string `json:"walletAddress"`
	PublicKey     *string `json:"publicKey"`
}

func (p *identityPayload) record() *model.IdentityRecord {
	if p == nil || p.WalletAddress == nil || *p.WalletAddress == "" {
		return nil
	}
	rec := &model.IdentityRecord{Address: *p.WalletAddress}
	if p.PublicKey != nil {
		rec.PublicKey = *p.PublicKey
	}
	return rec
}

// FetchIdentity returns the principal's address record, or nil when none was saved yet.
func (c *RecordClient) FetchIdentity(ctx context.Context) (*model.IdentityRecord, error) {
	var data struct {
		Me *identityPayload `json:"me"`
	}
	if err := c.do(ctx, meQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch identity: %w", err)
	}
	if data.Me == nil {
		return nil, fmt.Errorf("failed to fetch identity: %w", model.ErrUnauthenticated)
	}
	return data.Me.record(), nil
}

// SaveIdentity registers address and publicKey for the principal.
// The backend rejects a second, different address.
func (c *RecordClient) SaveIdentity(ctx context.Context, address, publicKey string) (*model.IdentityRecord, error) {
	var data struct {
		SaveWalletAddress *identityPayload `json:"saveWalletAddress"`
	}
	vars := map[string]any{"address": address, "publicKey": publicKey}
	if err := c.do(ctx, saveWalletMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("failed to save identity: %w", err)
	}
	rec := data.SaveWalletAddress.record()
	if rec == nil {
		return nil, fmt.Errorf("failed to save identity: %w: empty record in response", model.ErrServerRejected)
	}
	return rec, nil
}

// SubmitDID hands a signed identity-binding transaction to the backend for submission.
func (c *RecordClient) SubmitDID(ctx context.Context, blob *model.SignedBlob) (*model.Receipt, error) {
	var data struct {
		SubmitDID *model.Receipt `json:"submitDID"`
	}
	vars := map[string]any{"txBlob": blob.Transaction}
	if err := c.do(ctx, submitDIDMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("failed to submit DID: %w", err)
	}
	if data.SubmitDID == nil || data.SubmitDID.TransactionHash == "" {
		return nil, fmt.Errorf("failed to submit DID: %w: empty receipt", model.ErrServerRejected)
	}
	return data.SubmitDID, nil
}

// Submit lets the backend act as the binding submitter.
func (c *RecordClient) Submit(ctx context.Context, blob *model.SignedBlob) (*model.Receipt, error) {
	return c.SubmitDID(ctx, blob)
}

func (c *RecordClient) do(ctx context.Context, query string, vars map[string]any, out any) error {
	token := ""
	if c.tokens != nil {
		token = c.tokens.BearerToken()
	}
	if token == "" {
		return model.ErrUnauthenticated
	}

	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	err := c.gql.Run(ctx, req, out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrNetworkUnavailable),
		errors.Is(err, model.ErrServerRejected):
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", model.ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%w: %v", model.ErrServerRejected, err)
}

// statusTransport maps HTTP status codes and GraphQL error codes to the
// model sentinels before the GraphQL client sees the response. The GraphQL
// client itself ignores both.
type statusTransport struct {
	next http.RoundTripper
}

type graphQLErrors struct {
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetworkUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", model.ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", model.ErrNetworkUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", model.ErrServerRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", model.ErrNetworkUnavailable, err)
	}

	var gqlErrs graphQLErrors
	if json.Unmarshal(body, &gqlErrs) == nil {
		for _, e := range gqlErrs.Errors {
			if e.Extensions.Code == "UNAUTHENTICATED" {
				return nil, fmt.Errorf("%w: %s", model.ErrUnauthenticated, e.Message)
			}
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
