package domain

import "time"

// AuthTopology selects how the process authenticates to the repository.
// Exactly one topology is active for the lifetime of the process.
type AuthTopology string

const (
	TopologyBasic  AuthTopology = "basic"
	TopologyOAuth  AuthTopology = "oauth"
	TopologyZenIAM AuthTopology = "zeniam"
)

// BasicConfig carries credentials for HTTP basic authentication against
// the main API endpoint. No token endpoint is involved.
type BasicConfig struct {
	Username string
	Password string
}

// OAuthConfig describes a single token-endpoint exchange. GrantType is
// "password" or "client_credentials".
type OAuthConfig struct {
	TokenURL     string
	TokenSSL     string
	GrantType    string
	Scope        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// ZenIAMConfig describes the two-hop exchange: an OAuth grant against the
// IAM endpoint followed by a Zen exchange of the IAM token for the bearer
// actually sent to the repository.
type ZenIAMConfig struct {
	ZenURL       string
	ZenSSL       string
	IAMURL       string
	IAMSSL       string
	GrantType    string
	Scope        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Config is the immutable startup configuration. Changing the topology or
// any endpoint requires a restart.
type Config struct {
	ServerURL   string
	ObjectStore string

	// SSL is the three-way trust setting for the main endpoint: "true",
	// "false", or a path to a PEM CA bundle. The token, Zen and IAM
	// endpoints carry their own settings inside the topology configs.
	SSL string

	Topology AuthTopology
	Basic    *BasicConfig
	OAuth    *OAuthConfig
	ZenIAM   *ZenIAMConfig

	TokenRefresh   time.Duration
	RequestTimeout time.Duration
	PoolSize       int
	MetricsPort    int
	LogLevel       string

	// Vector search tuning: the chunk budget passed to the GenAI vector
	// query and the minimum score a chunk must reach to be reported.
	MaxChunks      int
	RelevanceScore float64
}

func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.ServerURL == "" {
		return E(CodeConfiguration, op, "SERVER_URL is required", nil)
	}
	if c.ObjectStore == "" {
		return E(CodeConfiguration, op, "OBJECT_STORE is required", nil)
	}

	switch c.Topology {
	case TopologyBasic:
		if c.Basic == nil || c.Basic.Username == "" || c.Basic.Password == "" {
			return E(CodeConfiguration, op, "basic topology requires USERNAME and PASSWORD", nil)
		}
	case TopologyOAuth:
		if c.OAuth == nil || c.OAuth.TokenURL == "" {
			return E(CodeConfiguration, op, "oauth topology requires TOKEN_URL", nil)
		}
		if err := validateGrant(op, c.OAuth.GrantType, c.OAuth.Username, c.OAuth.Password, c.OAuth.ClientID, c.OAuth.ClientSecret); err != nil {
			return err
		}
	case TopologyZenIAM:
		if c.ZenIAM == nil || c.ZenIAM.ZenURL == "" || c.ZenIAM.IAMURL == "" {
			return E(CodeConfiguration, op, "zeniam topology requires ZENIAM_ZEN_URL and ZENIAM_IAM_URL", nil)
		}
		if c.ZenIAM.Username == "" {
			return E(CodeConfiguration, op, "zeniam topology requires ZENIAM_IAM_USER", nil)
		}
		if err := validateGrant(op, c.ZenIAM.GrantType, c.ZenIAM.Username, c.ZenIAM.Password, c.ZenIAM.ClientID, c.ZenIAM.ClientSecret); err != nil {
			return err
		}
	default:
		return E(CodeConfiguration, op, "no auth topology could be determined from the environment", nil)
	}

	if c.TokenRefresh <= 0 {
		return E(CodeConfiguration, op, "TOKEN_REFRESH must be positive", nil)
	}
	if c.RequestTimeout <= 0 {
		return E(CodeConfiguration, op, "REQUEST_TIMEOUT must be positive", nil)
	}
	if c.PoolSize <= 0 {
		return E(CodeConfiguration, op, "POOL_CONNECTIONS must be positive", nil)
	}
	if c.MaxChunks <= 0 {
		return E(CodeConfiguration, op, "MAX_CHUNKS must be positive", nil)
	}
	return nil
}

func validateGrant(op, grantType, username, password, clientID, clientSecret string) error {
	switch grantType {
	case "password":
		if username == "" || password == "" {
			return E(CodeConfiguration, op, "password grant requires a username and password", nil)
		}
	case "client_credentials":
		if clientID == "" || clientSecret == "" {
			return E(CodeConfiguration, op, "client_credentials grant requires a client id and secret", nil)
		}
	case "":
		return E(CodeConfiguration, op, "grant type is required", nil)
	default:
		return E(CodeConfiguration, op, "unsupported grant type "+grantType, nil)
	}
	return nil
}
