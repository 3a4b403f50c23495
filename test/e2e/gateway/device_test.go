package gateway_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/stretchr/testify/require"
)

// userCodeAlphabet mirrors the confusable-free set user codes are drawn from.
const userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func TestDeviceAuthorizationFlow(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()

	device := gatesdk.NewClient(env.BaseURL)

	code, err := device.RequestDeviceCode(ctx, "llm:chat usage:read")
	require.NoError(t, err)
	require.NotEmpty(t, code.DeviceCode)
	require.Len(t, code.UserCode, 8)
	for _, r := range code.UserCode {
		require.True(t, strings.ContainsRune(userCodeAlphabet, r),
			"user code %q contains %q outside the expected alphabet", code.UserCode, r)
	}
	require.Equal(t, "http://gateway.test/activate", code.VerificationURI)
	require.Positive(t, code.ExpiresIn)
	require.Positive(t, code.Interval)
	t.Logf("issued user code %s", code.UserCode)

	// Nobody has decided yet, so polling reports pending.
	_, err = device.PollDeviceToken(ctx, code.DeviceCode)
	require.ErrorIs(t, err, gatesdk.ErrAuthorizationPending)

	// The signed-in approver reviews and approves the grant.
	approver := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken("user-42-tok"))
	summary, err := approver.LookupGrant(ctx, code.UserCode)
	require.NoError(t, err)
	require.Equal(t, "pending", summary.Status)
	require.Contains(t, summary.Scopes, "llm:chat")

	require.NoError(t, approver.ResolveGrant(ctx, code.UserCode, true))

	tok, err := device.PollDeviceToken(ctx, code.DeviceCode)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.EqualValues(t, 3600, tok.ExpiresIn)

	// A device code mints exactly one token; replaying the poll reads as an
	// expired grant.
	_, err = device.PollDeviceToken(ctx, code.DeviceCode)
	require.ErrorIs(t, err, gatesdk.ErrExpiredToken)

	// The minted token acts on behalf of the approver.
	minted := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken(tok.AccessToken))
	res, err := minted.ChatCompletion(ctx, gatesdk.ChatCompletionRequest{
		Model:    "test-model",
		Messages: []gatesdk.ChatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Choices)

	balance, err := minted.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-42", balance.SubjectID)
}

func TestDeviceAuthorizationDenied(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()

	device := gatesdk.NewClient(env.BaseURL)
	code, err := device.RequestDeviceCode(ctx, "llm:chat")
	require.NoError(t, err)

	approver := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken("user-42-tok"))
	require.NoError(t, approver.ResolveGrant(ctx, code.UserCode, false))

	_, err = device.PollDeviceToken(ctx, code.DeviceCode)
	require.ErrorIs(t, err, gatesdk.ErrAccessDenied)

	// The first decision is final; flipping it afterwards is refused.
	err = approver.ResolveGrant(ctx, code.UserCode, true)
	require.ErrorIs(t, err, gatesdk.ErrAlreadyResolved)
}

func TestDeviceVerifyUnknownCode(t *testing.T) {
	env := setupGateway(t, nil)

	approver := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken("user-42-tok"))
	_, err := approver.LookupGrant(t.Context(), "ZZZZ2222")
	require.Error(t, err)

	var apiErr *gatesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 404, apiErr.StatusCode)
}

func TestDeviceTokenUnknownCodeReadsAsExpired(t *testing.T) {
	env := setupGateway(t, nil)

	device := gatesdk.NewClient(env.BaseURL)
	_, err := device.PollDeviceToken(t.Context(), "no-such-device-code")
	require.ErrorIs(t, err, gatesdk.ErrExpiredToken)
}

func TestRevokedTokenIsRejected(t *testing.T) {
	env := setupGateway(t, nil)
	ctx := t.Context()

	token := mintAccessToken(t, env, "llm:chat")
	client := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken(token))

	req := gatesdk.ChatCompletionRequest{
		Model:    "test-model",
		Messages: []gatesdk.ChatMessage{{Role: "user", Content: "hello"}},
	}
	_, err := client.ChatCompletion(ctx, req)
	require.NoError(t, err)

	require.NoError(t, client.RevokeToken(ctx, token))

	// Revocation is synchronous on the instance that processed it.
	_, err = client.ChatCompletion(ctx, req)
	require.ErrorIs(t, err, gatesdk.ErrUnauthorized)

	// Revoking again still succeeds, through a credential that still works.
	ops := gatesdk.NewClient(env.BaseURL, gatesdk.WithAccessToken("ops-tok"))
	require.NoError(t, ops.RevokeToken(ctx, token))
}
