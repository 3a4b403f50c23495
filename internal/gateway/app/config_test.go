package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStaticSecrets(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		secrets, err := ParseStaticSecrets("")
		require.NoError(t, err)
		require.Empty(t, secrets)
	})

	t.Run("single plaintext entry", func(t *testing.T) {
		secrets, err := ParseStaticSecrets("ci=gw-tok=llm:chat")
		require.NoError(t, err)
		require.Len(t, secrets, 1)
		require.Equal(t, "ci", secrets[0].Name)
		require.Equal(t, "gw-tok", secrets[0].Value)
		require.False(t, secrets[0].Hashed)
		require.Equal(t, []string{"llm:chat"}, secrets[0].Scopes)
	})

	t.Run("multiple entries with multiple scopes", func(t *testing.T) {
		secrets, err := ParseStaticSecrets("ci=gw-tok=llm:chat;ops=ops-tok=llm:chat usage:read")
		require.NoError(t, err)
		require.Len(t, secrets, 2)
		require.Equal(t, []string{"llm:chat", "usage:read"}, secrets[1].Scopes)
	})

	t.Run("argon2 hash survives its own equals signs", func(t *testing.T) {
		hash := "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$aGFzaGhhc2hoYXNo"
		secrets, err := ParseStaticSecrets("ops=" + hash + "=llm:chat")
		require.NoError(t, err)
		require.Len(t, secrets, 1)
		require.Equal(t, hash, secrets[0].Value)
		require.True(t, secrets[0].Hashed)
	})

	t.Run("malformed entry", func(t *testing.T) {
		_, err := ParseStaticSecrets("just-a-name")
		require.Error(t, err)
	})

	t.Run("missing scopes", func(t *testing.T) {
		_, err := ParseStaticSecrets("ci=gw-tok=")
		require.Error(t, err)
	})
}
