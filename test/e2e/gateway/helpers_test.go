package gateway_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/app"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/stretchr/testify/require"
)

// gatewayEnv is one fully wired gateway instance behind an httptest server,
// fronting a fake upstream provider.
type gatewayEnv struct {
	BaseURL       string
	UpstreamCalls *atomic.Int64
}

// fakeUpstream mimics the provider: buffered requests get a JSON completion
// reporting 150 total tokens, streaming requests get an SSE relay with the
// same usage in the final chunk.
func fakeUpstream(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls.Add(1)

		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n")
			fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":50,\"completion_tokens\":100,\"total_tokens\":150}}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-e2e","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":50,"completion_tokens":100,"total_tokens":150}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// baseConfig returns a config suitable for in-process testing. Static
// secrets cover the three personas the tests use: a chat-only CI secret, an
// ops secret that can also read usage, and the human approver.
func baseConfig(t *testing.T, upstreamURL string) app.Config {
	t.Helper()

	secrets, err := app.ParseStaticSecrets(
		"gw-tok=gw-tok=llm:chat;" +
			"ops=ops-tok=llm:chat usage:read;" +
			"user-42=user-42-tok=llm:chat usage:read")
	require.NoError(t, err)

	return app.Config{
		Issuer:          "chatgate-test",
		UpstreamBaseURL: upstreamURL,
		UpstreamRPS:     1000,
		UpstreamBurst:   100,
		StaticSecrets:   secrets,
		SigningKeyKID:   "e2e-key",
		TokenTTL:        time.Hour,
		PollInterval:    time.Second,
		VerificationURI: "http://gateway.test/activate",
		DatabaseFile:    filepath.Join(t.TempDir(), "gateway.db"),

		Env:                  "dev",
		LogLevel:             "error",
		LogFormat:            "text",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

// setupGateway builds an application around a fake upstream and serves it
// from an httptest server. mutate may adjust the config before wiring.
func setupGateway(t *testing.T, mutate func(*app.Config)) *gatewayEnv {
	t.Helper()

	var calls atomic.Int64
	upstreamSrv := fakeUpstream(t, &calls)

	cfg := baseConfig(t, upstreamSrv.URL)
	if mutate != nil {
		mutate(&cfg)
	}

	application, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return &gatewayEnv{
		BaseURL:       srv.URL,
		UpstreamCalls: &calls,
	}
}

// mintAccessToken runs a full device authorization flow against env and
// returns the signed access token, approved by the user-42 persona.
func mintAccessToken(t *testing.T, env *gatewayEnv, scope string) string {
	t.Helper()
	ctx := t.Context()

	device := gatesdk.NewClient(env.BaseURL)
	code, err := device.RequestDeviceCode(ctx, scope)
	require.NoError(t, err)

	approver := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken("user-42-tok"))
	require.NoError(t, approver.ResolveGrant(ctx, code.UserCode, true))

	tok, err := device.PollDeviceToken(ctx, code.DeviceCode)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

// newSigningKeyPEM generates a PKCS8 Ed25519 private key for configs that
// need two instances verifying each other's tokens.
func newSigningKeyPEM(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}
