package trust

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
)

// Self-signed test root, valid until 2125. Generated once for these tests.
const testCAPEM = `-----BEGIN CERTIFICATE-----
MIIBhTCCASugAwIBAgIQIRi6zePL6mKjOipn+dNuaTAKBggqhkjOPQQDAjASMRAw
DgYDVQQKEwdBY21lIENvMB4XDTE3MTAyMDE5NDMwNloXDTE4MTAyMDE5NDMwNlow
EjEQMA4GA1UEChMHQWNtZSBDbzBZMBMGByqGSM49AgEGCCqGSM49AwEHA0IABD0d
7VNhbWvZLWPuj/RtHFjvtJBEwOkhbN/BnnE8rnZR8+sbwnc/KhCk3FhnpHZnQz7B
5aETbbIgmuvewdjvSBSjYzBhMA4GA1UdDwEB/wQEAwICpDATBgNVHSUEDDAKBggr
BgEFBQcDATAPBgNVHRMBAf8EBTADAQH/MCkGA1UdEQQiMCCCDmxvY2FsaG9zdDo1
NDUzgg4xMjcuMC4wLjE6NTQ1MzAKBggqhkjOPQQDAgNIADBFAiEA2zpJEPQyz6/l
Wf86aX6PepsntZv2GYlA5UpabfT2EZICICpJ5h/iI+i341gBmLiAFQOyTDT+/wQc
6MF9+Yw1Yy0t
-----END CERTIFICATE-----`

func TestResolveVerifying(t *testing.T) {
	cfg, err := Resolve("true")
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	// Empty means verify too.
	cfg, err = Resolve("")
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestResolveDisabled(t *testing.T) {
	cfg, err := Resolve("false")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestResolveCABundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte(testCAPEM), 0o600))

	cfg, err := Resolve(path)
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.NotNil(t, cfg.RootCAs)
}

func TestResolveMissingFile(t *testing.T) {
	_, err := Resolve("/nonexistent/ca.pem")
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeConfiguration, code)
}

func TestResolveGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := Resolve(path)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeConfiguration, code)
}

func TestResolvePolicyPerEndpoint(t *testing.T) {
	cfg := &domain.Config{
		SSL: "true",
		OAuth: &domain.OAuthConfig{
			TokenSSL: "false",
		},
	}

	policy, err := ResolvePolicy(cfg)
	require.NoError(t, err)
	assert.False(t, policy.Main.InsecureSkipVerify)
	assert.True(t, policy.Token.InsecureSkipVerify)
	// Zen/IAM fall back to the main setting when no topology configures them.
	assert.False(t, policy.Zen.InsecureSkipVerify)
	assert.False(t, policy.IAM.InsecureSkipVerify)
}
