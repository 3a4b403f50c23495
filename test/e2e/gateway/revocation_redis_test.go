package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/app"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container for the shared revocation tier
// and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForListeningPort("6379/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

// TestRevocationSharedAcrossInstances runs two gateway instances against one
// Redis and verifies a token revoked on the first stops working on the
// second. The instances share a signing key so both accept the same tokens.
func TestRevocationSharedAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	redisAddr := setupRedisContainer(t)
	keyPEM := newSigningKeyPEM(t)
	shared := func(cfg *app.Config) {
		cfg.SigningKeyPEM = keyPEM
		cfg.RedisAddr = redisAddr
	}

	first := setupGateway(t, shared)
	second := setupGateway(t, shared)
	ctx := t.Context()

	token := mintAccessToken(t, first, "llm:chat")
	t.Logf("minted token on first instance")

	req := gatesdk.ChatCompletionRequest{
		Model:    "test-model",
		Messages: []gatesdk.ChatMessage{{Role: "user", Content: "hello"}},
	}

	// The token verifies on the instance that never saw it minted.
	onSecond := gatesdk.NewClient(second.BaseURL, gatesdk.WithAccessToken(token))
	_, err := onSecond.ChatCompletion(ctx, req)
	require.NoError(t, err)

	onFirst := gatesdk.NewClient(first.BaseURL, gatesdk.WithAccessToken(token))
	require.NoError(t, onFirst.RevokeToken(ctx, token))
	t.Logf("revoked token on first instance")

	// Locally the revocation is immediate.
	_, err = onFirst.ChatCompletion(ctx, req)
	require.ErrorIs(t, err, gatesdk.ErrUnauthorized)

	// The write to the shared tier is asynchronous, so the second instance
	// converges rather than flips.
	require.Eventually(t, func() bool {
		_, err := onSecond.ChatCompletion(ctx, req)
		return errors.Is(err, gatesdk.ErrUnauthorized)
	}, 5*time.Second, 100*time.Millisecond, "second instance should reject the revoked token")
}
