// Package trust resolves the three-way SSL settings into TLS
// configurations, one per endpoint the process talks to.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"csmcp/internal/domain"
)

// Resolve maps one endpoint trust setting to a TLS config:
//
//	"true" (or empty)  verify against the system roots
//	"false"            skip verification
//	anything else      path to a PEM CA bundle merged with the system roots
func Resolve(setting string) (*tls.Config, error) {
	const op = "trust.Resolve"

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch setting {
	case "", "true":
		return cfg, nil
	case "false":
		cfg.InsecureSkipVerify = true
		return cfg, nil
	}

	caData, err := os.ReadFile(setting)
	if err != nil {
		return nil, domain.E(domain.CodeConfiguration, op, "read ca file "+setting, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caData) {
		return nil, domain.E(domain.CodeConfiguration, op, "no certificates parsed from "+setting, nil)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Policy holds the resolved TLS configs for the four endpoints. Built once
// at startup; never mutated afterwards.
type Policy struct {
	Main  *tls.Config
	Token *tls.Config
	Zen   *tls.Config
	IAM   *tls.Config
}

func ResolvePolicy(cfg *domain.Config) (*Policy, error) {
	main, err := Resolve(cfg.SSL)
	if err != nil {
		return nil, err
	}
	p := &Policy{Main: main, Token: main, Zen: main, IAM: main}

	if cfg.OAuth != nil {
		if p.Token, err = Resolve(cfg.OAuth.TokenSSL); err != nil {
			return nil, err
		}
	}
	if cfg.ZenIAM != nil {
		if p.Zen, err = Resolve(cfg.ZenIAM.ZenSSL); err != nil {
			return nil, err
		}
		if p.IAM, err = Resolve(cfg.ZenIAM.IAMSSL); err != nil {
			return nil, err
		}
	}
	return p, nil
}
