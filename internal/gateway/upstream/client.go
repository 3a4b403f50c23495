// Package upstream talks to the model provider the gateway fronts. It
// exposes exactly two calls, a buffered completion and a streaming one, and
// keeps provider quirks (SSE framing, usage extraction) out of the proxy
// service.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
)

// ErrUpstreamStatus is returned when the provider answers with a non-200
// status before any bytes were relayed.
var ErrUpstreamStatus = errors.New("upstream: non-200 response")

// Client is an HTTP client for the upstream chat completion API. Outbound
// calls pass through a token-bucket limiter so a burst of gateway traffic
// smooths out before it reaches the provider's own rate limits.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client. Streaming responses need a
// client without a response timeout; the default accounts for that.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outbound calls at rps requests per second with the
// given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates an upstream client for the given provider base URL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// No Timeout on the client itself: streams legitimately run for
		// minutes. Dial and TLS handshake limits come from the default
		// transport; per-request deadlines come from the caller's context.
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a buffered completion response. Body is the provider's response
// verbatim so the gateway can relay it untouched; Usage is extracted from it
// when present.
type Result struct {
	Body  []byte
	Usage *gatesdk.Usage
}

// Complete performs a buffered (non-streaming) chat completion. The request
// body is relayed to the provider verbatim.
func (c *Client) Complete(ctx context.Context, body []byte) (*Result, error) {
	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}

	var envelope struct {
		Usage *gatesdk.Usage `json:"usage"`
	}
	// A body without a usage block is still a valid response; the proxy
	// falls back to estimating from bytes.
	_ = json.Unmarshal(raw, &envelope)

	return &Result{Body: raw, Usage: envelope.Usage}, nil
}

// Stream performs a streaming chat completion and returns a Stream the
// caller iterates over. The caller must Close it.
func (c *Client) Stream(ctx context.Context, body []byte) (*Stream, error) {
	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}
	return &Stream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d: %s", ErrUpstreamStatus, resp.StatusCode,
			strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

// Stream iterates over an SSE completion response one event at a time.
// It watches the event payloads for a usage block as they pass through, so
// after the stream ends Usage() reports what the provider counted without
// the events ever being buffered.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	usage      *gatesdk.Usage
	relayed    int64
	sawDone    bool
	terminated bool
}

// Next returns the next raw SSE line, including blank separator lines, so
// the caller can relay framing byte-for-byte. It returns io.EOF after the
// terminal [DONE] event or when the provider closes the stream.
func (s *Stream) Next() ([]byte, error) {
	if s.terminated {
		return nil, io.EOF
	}
	if !s.scanner.Scan() {
		s.terminated = true
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	line := s.scanner.Bytes()
	s.relayed += int64(len(line))
	s.inspect(line)

	// Return a copy; the scanner reuses its buffer on the next call.
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

// inspect watches data lines for the terminal marker and a usage block.
func (s *Stream) inspect(line []byte) {
	payload, ok := bytes.CutPrefix(line, []byte("data: "))
	if !ok {
		return
	}
	if bytes.Equal(bytes.TrimSpace(payload), []byte("[DONE]")) {
		s.sawDone = true
		return
	}

	var chunk struct {
		Usage *gatesdk.Usage `json:"usage"`
	}
	if err := json.Unmarshal(payload, &chunk); err == nil && chunk.Usage != nil {
		s.usage = chunk.Usage
	}
}

// Usage returns the provider-reported usage, or nil if no chunk carried one.
func (s *Stream) Usage() *gatesdk.Usage {
	return s.usage
}

// RelayedBytes returns how many payload bytes have passed through the
// stream. The proxy uses this for estimated billing when Usage is nil.
func (s *Stream) RelayedBytes() int64 {
	return s.relayed
}

// Completed reports whether the stream ended with the provider's terminal
// [DONE] event rather than a drop.
func (s *Stream) Completed() bool {
	return s.sawDone
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// healthTimeout bounds the provider reachability probe.
const healthTimeout = 2 * time.Second

// Ping probes the provider's base URL for readiness reporting. Any HTTP
// answer counts as reachable; only transport errors fail.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}
