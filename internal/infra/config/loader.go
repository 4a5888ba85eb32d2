// Package config loads the process configuration from the environment.
// The variable names match the deployment contract of the content-services
// MCP server; topology is inferred from which endpoint variables are set.
package config

import (
	"time"

	"github.com/spf13/viper"

	"csmcp/internal/domain"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("SSL_ENABLED", "true")
	v.SetDefault("TOKEN_SSL_ENABLED", "true")
	v.SetDefault("ZENIAM_ZEN_SSL_ENABLED", "true")
	v.SetDefault("ZENIAM_IAM_SSL_ENABLED", "true")
	v.SetDefault("TOKEN_REFRESH", int(domain.DefaultTokenRefresh/time.Second))
	v.SetDefault("REQUEST_TIMEOUT", int(domain.DefaultRequestTimeout/time.Second))
	v.SetDefault("POOL_CONNECTIONS", domain.DefaultPoolSize)
	v.SetDefault("METRICS_PORT", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_CHUNKS", domain.DefaultMaxChunks)
	v.SetDefault("RELEVANCE_SCORE", domain.DefaultRelevanceScore)
}

// Load reads the environment and returns a validated configuration.
// It performs no network I/O.
func Load() (*domain.Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &domain.Config{
		ServerURL:      v.GetString("SERVER_URL"),
		ObjectStore:    v.GetString("OBJECT_STORE"),
		SSL:            v.GetString("SSL_ENABLED"),
		TokenRefresh:   time.Duration(v.GetInt("TOKEN_REFRESH")) * time.Second,
		RequestTimeout: time.Duration(v.GetInt("REQUEST_TIMEOUT")) * time.Second,
		PoolSize:       v.GetInt("POOL_CONNECTIONS"),
		MetricsPort:    v.GetInt("METRICS_PORT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		MaxChunks:      v.GetInt("MAX_CHUNKS"),
		RelevanceScore: v.GetFloat64("RELEVANCE_SCORE"),
	}

	// Topology selection mirrors deployment practice: the Zen exchange URL
	// wins over a plain token URL, and with neither set the process falls
	// back to basic auth against the main endpoint.
	switch {
	case v.GetString("ZENIAM_ZEN_URL") != "":
		cfg.Topology = domain.TopologyZenIAM
		cfg.ZenIAM = &domain.ZenIAMConfig{
			ZenURL:       v.GetString("ZENIAM_ZEN_URL"),
			ZenSSL:       v.GetString("ZENIAM_ZEN_SSL_ENABLED"),
			IAMURL:       v.GetString("ZENIAM_IAM_URL"),
			IAMSSL:       v.GetString("ZENIAM_IAM_SSL_ENABLED"),
			GrantType:    v.GetString("ZENIAM_IAM_GRANT_TYPE"),
			Scope:        v.GetString("ZENIAM_IAM_SCOPE"),
			ClientID:     v.GetString("ZENIAM_IAM_CLIENT_ID"),
			ClientSecret: v.GetString("ZENIAM_IAM_CLIENT_SECRET"),
			Username:     v.GetString("ZENIAM_IAM_USER"),
			Password:     v.GetString("ZENIAM_IAM_PASSWORD"),
		}
	case v.GetString("TOKEN_URL") != "":
		cfg.Topology = domain.TopologyOAuth
		cfg.OAuth = &domain.OAuthConfig{
			TokenURL:     v.GetString("TOKEN_URL"),
			TokenSSL:     v.GetString("TOKEN_SSL_ENABLED"),
			GrantType:    v.GetString("GRANT_TYPE"),
			Scope:        v.GetString("SCOPE"),
			ClientID:     v.GetString("CLIENT_ID"),
			ClientSecret: v.GetString("CLIENT_SECRET"),
			Username:     v.GetString("USERNAME"),
			Password:     v.GetString("PASSWORD"),
		}
	default:
		cfg.Topology = domain.TopologyBasic
		cfg.Basic = &domain.BasicConfig{
			Username: v.GetString("USERNAME"),
			Password: v.GetString("PASSWORD"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
