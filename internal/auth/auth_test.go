package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{ msg string }

func (f failingProvider) GetToken() (string, error) { return "", errors.New(f.msg) }

func TestGhCliProvider_GetToken(t *testing.T) {
	provider := &GhCliProvider{}
	token, err := provider.GetToken()

	// Only succeeds where gh is installed and authenticated.
	if err != nil {
		assert.Contains(t, err.Error(), "gh")
	} else {
		assert.NotEmpty(t, token)
	}
}

func TestEnvProvider_GetToken_Success(t *testing.T) {
	t.Setenv("STEVENSON_TEST_TOKEN", "  tok_123 ")

	provider := &EnvProvider{Var: "STEVENSON_TEST_TOKEN"}
	token, err := provider.GetToken()

	require.NoError(t, err)
	assert.Equal(t, "tok_123", token)
}

func TestEnvProvider_GetToken_Missing(t *testing.T) {
	t.Setenv("STEVENSON_TEST_TOKEN", "")

	provider := &EnvProvider{Var: "STEVENSON_TEST_TOKEN"}
	token, err := provider.GetToken()

	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "STEVENSON_TEST_TOKEN")
}

func TestChain(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		token, err := Chain{failingProvider{"nope"}, StaticProvider("a"), StaticProvider("b")}.GetToken()
		require.NoError(t, err)
		assert.Equal(t, "a", token)
	})

	t.Run("all errors are reported", func(t *testing.T) {
		_, err := Chain{failingProvider{"first"}, failingProvider{"second"}}.GetToken()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first")
		assert.Contains(t, err.Error(), "second")
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := Chain{}.GetToken()
		assert.Error(t, err)
	})
}

func TestJiraToken(t *testing.T) {
	t.Run("flag wins over env", func(t *testing.T) {
		t.Setenv(EnvJiraToken, "from-env")
		token, err := JiraToken("from-flag")
		require.NoError(t, err)
		assert.Equal(t, "from-flag", token)
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv(EnvJiraToken, "from-env")
		token, err := JiraToken("")
		require.NoError(t, err)
		assert.Equal(t, "from-env", token)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv(EnvJiraToken, "")
		_, err := JiraToken("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvJiraToken)
	})
}

func TestGitHubToken_FallbackToEnv(t *testing.T) {
	t.Setenv(EnvGitHubToken, "ghp_fallback_token")

	token, err := GitHubToken()

	// gh CLI may win when it is installed and authenticated.
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}
