package gatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the gateway API. It covers the device
// authorization flow, chat completions and the account endpoints, and is what
// the end-to-end tests drive the gateway with.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// accessToken, when set, is attached as a bearer credential to
	// authenticated requests.
	accessToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAccessToken sets the bearer credential used for authenticated requests.
// Both signed access tokens and static gateway secrets are accepted here; the
// gateway decides how to interpret the value.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

// NewClient creates a gateway API client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAccessToken replaces the client's bearer credential.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// ============================================================================
// Device Authorization Flow
// ============================================================================

// RequestDeviceCode starts a device authorization grant.
func (c *Client) RequestDeviceCode(ctx context.Context, scope string) (*DeviceCodeResponse, error) {
	var out DeviceCodeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/device/code", DeviceCodeRequest{Scope: scope}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupGrant fetches the pending grant identified by a user code so an
// approver can review it. Requires an authenticated client.
func (c *Client) LookupGrant(ctx context.Context, userCode string) (*GrantSummary, error) {
	var out GrantSummary
	path := "/v1/device/verify?user_code=" + userCode
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveGrant approves or denies the grant identified by a user code.
// Requires an authenticated client.
func (c *Client) ResolveGrant(ctx context.Context, userCode string, approve bool) error {
	body := map[string]any{"user_code": userCode, "approve": approve}
	return c.doJSON(ctx, http.MethodPost, "/v1/device/authorize", body, nil)
}

// PollDeviceToken attempts to exchange a device code for an access token.
// While the grant is pending it returns ErrAuthorizationPending (matched via
// errors.Is by comparing *APIError codes).
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/device/token", DeviceTokenRequest{DeviceCode: deviceCode}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeToken revokes an access token. Revocation of an unknown or already
// revoked token still succeeds.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/tokens/revoke", RevokeRequest{Token: token}, nil)
}

// ============================================================================
// Chat and Account
// ============================================================================

// ChatCompletion performs a buffered (non-streaming) chat completion.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	req.Stream = false
	var out ChatCompletionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/chat/completions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamChatCompletion performs a streaming chat completion and returns the
// raw SSE body. The caller must close it.
func (c *Client) StreamChatCompletion(ctx context.Context, req ChatCompletionRequest) (io.ReadCloser, error) {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gatesdk: stream chat completion: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}
	return resp.Body, nil
}

// Balance fetches the caller's remaining credit balance.
func (c *Client) Balance(ctx context.Context) (*BalanceResponse, error) {
	var out BalanceResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage fetches the caller's most recent usage ledger entries.
func (c *Client) Usage(ctx context.Context) (*UsageResponse, error) {
	var out UsageResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports the gateway's readiness state.
func (c *Client) Ready(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/readyz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Internals
// ============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gatesdk: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("gatesdk: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gatesdk: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gatesdk: decode response: %w", err)
	}
	return nil
}

// parseAPIError converts an error response body into an *APIError. Bodies
// that are not in the standard error shape fall back to a generic error with
// the raw body as the description.
func parseAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: strings.TrimSpace(string(raw)),
	}
}
