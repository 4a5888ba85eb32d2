package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SERVER_URL", "https://cpe.example.com/content-services-graphql/graphql")
	t.Setenv("OBJECT_STORE", "OS1")
}

func TestLoadBasicTopology(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("USERNAME", "ceadmin")
	t.Setenv("PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.TopologyBasic, cfg.Topology)
	require.NotNil(t, cfg.Basic)
	assert.Equal(t, "ceadmin", cfg.Basic.Username)
	assert.Equal(t, 1800*time.Second, cfg.TokenRefresh)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 100, cfg.PoolSize)
	assert.Equal(t, "true", cfg.SSL)
	assert.Equal(t, 100, cfg.MaxChunks)
	assert.Equal(t, 1.55, cfg.RelevanceScore)
}

func TestLoadVectorSearchOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("USERNAME", "ceadmin")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("MAX_CHUNKS", "25")
	t.Setenv("RELEVANCE_SCORE", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxChunks)
	assert.Equal(t, 0.8, cfg.RelevanceScore)
}

func TestLoadOAuthTopology(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN_URL", "https://idp.example.com/oidc/token")
	t.Setenv("GRANT_TYPE", "client_credentials")
	t.Setenv("CLIENT_ID", "cs-mcp")
	t.Setenv("CLIENT_SECRET", "shhh")
	t.Setenv("TOKEN_SSL_ENABLED", "false")
	t.Setenv("TOKEN_REFRESH", "600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.TopologyOAuth, cfg.Topology)
	require.NotNil(t, cfg.OAuth)
	assert.Equal(t, "client_credentials", cfg.OAuth.GrantType)
	assert.Equal(t, "false", cfg.OAuth.TokenSSL)
	assert.Equal(t, 600*time.Second, cfg.TokenRefresh)
}

func TestLoadZenIAMWinsOverOAuth(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN_URL", "https://idp.example.com/oidc/token")
	t.Setenv("ZENIAM_ZEN_URL", "https://zen.example.com/v1/preauth/validateAuth")
	t.Setenv("ZENIAM_IAM_URL", "https://iam.example.com/idprovider/v1/auth/identitytoken")
	t.Setenv("ZENIAM_IAM_GRANT_TYPE", "password")
	t.Setenv("ZENIAM_IAM_USER", "zenadmin")
	t.Setenv("ZENIAM_IAM_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.TopologyZenIAM, cfg.Topology)
	require.NotNil(t, cfg.ZenIAM)
	assert.Equal(t, "zenadmin", cfg.ZenIAM.Username)
	assert.Nil(t, cfg.OAuth)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("SERVER_URL", "")
	t.Setenv("OBJECT_STORE", "")

	_, err := Load()
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeConfiguration, code)
}

func TestLoadRejectsBadDurations(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("USERNAME", "ceadmin")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("REQUEST_TIMEOUT", "0")

	_, err := Load()
	require.Error(t, err)
}
