package gateway_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestDeviceCodeEndpointRateLimited(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()
	client := gatesdk.NewClient(env.BaseURL)

	// The device code endpoint sits behind the strict per-IP profile. Burn
	// through the whole window, then expect a refusal.
	limit := httpx.StrictLimit.RequestsPerWindow
	for i := 0; i < limit; i++ {
		_, err := client.RequestDeviceCode(ctx, "llm:chat")
		require.NoError(t, err, "request %d of %d should be admitted", i+1, limit)
	}

	_, err := client.RequestDeviceCode(ctx, "llm:chat")
	require.ErrorIs(t, err, gatesdk.ErrRateLimited)

	var apiErr *gatesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestRateLimitKeysAreIndependentPerClient(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()

	// Exhaust the window for the default client address.
	client := gatesdk.NewClient(env.BaseURL)
	for i := 0; i < httpx.StrictLimit.RequestsPerWindow; i++ {
		_, err := client.RequestDeviceCode(ctx, "llm:chat")
		require.NoError(t, err)
	}
	_, err := client.RequestDeviceCode(ctx, "llm:chat")
	require.ErrorIs(t, err, gatesdk.ErrRateLimited)

	// A request arriving from a different forwarded address counts against
	// its own window and is still admitted.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		env.BaseURL+"/v1/device/code", strings.NewReader(`{"scope":"llm:chat"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestRateLimitResponseCarriesRetryAfter(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()

	for i := 0; i < httpx.StrictLimit.RequestsPerWindow; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			env.BaseURL+"/v1/device/code", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		env.BaseURL+"/v1/device/code", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
}
