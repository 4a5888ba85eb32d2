// Package broker acquires and refreshes the credential used against the
// content-services API. Exactly one auth topology is active per process;
// the current credential lives in an atomic cell so readers never block
// and never observe a bearer and XSRF token from different fetches.
package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"csmcp/internal/domain"
	"csmcp/internal/infra/trust"
)

// Health is the subset of the health tracker the broker reports into.
type Health interface {
	SetHealthy()
	SetDegraded(detail string)
}

type Broker struct {
	cfg     *domain.Config
	logger  *zap.Logger
	metrics domain.Metrics
	health  Health

	tokenClient *http.Client
	iamClient   *http.Client
	zenClient   *http.Client

	current atomic.Pointer[domain.Credential]
}

func New(cfg *domain.Config, policy *trust.Policy, metrics domain.Metrics, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		cfg:         cfg,
		logger:      logger.Named("broker"),
		metrics:     metrics,
		tokenClient: endpointClient(policy.Token, cfg.RequestTimeout),
		iamClient:   endpointClient(policy.IAM, cfg.RequestTimeout),
		zenClient:   endpointClient(policy.Zen, cfg.RequestTimeout),
	}
}

func endpointClient(tlsCfg *tls.Config, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// SetHealth wires an optional health tracker; nil is allowed.
func (b *Broker) SetHealth(h Health) {
	b.health = h
}

// Current returns the latest credential. It never performs I/O and is
// safe to call from any goroutine.
func (b *Broker) Current() *domain.Credential {
	return b.current.Load()
}

// Initialize performs the first credential fetch. A failure here is fatal
// to startup; there is no credential to fall back to.
func (b *Broker) Initialize(ctx context.Context) error {
	cred, err := b.fetch(ctx)
	b.observeRefresh(err)
	if err != nil {
		return domain.Wrap(domain.CodeAuth, "broker.Initialize", err)
	}
	b.current.Store(cred)
	b.logger.Info("credential initialized",
		zap.String("topology", string(b.cfg.Topology)),
		zap.Time("expires_at", cred.ExpiresAt),
	)
	return nil
}

// Refresh fetches a new credential and swaps it in. On failure the last
// good credential stays in place and the error is reported.
func (b *Broker) Refresh(ctx context.Context) error {
	cred, err := b.fetch(ctx)
	b.observeRefresh(err)
	if err != nil {
		b.logger.Warn("credential refresh failed, keeping last credential", zap.Error(err))
		if b.health != nil {
			b.health.SetDegraded("token refresh failed: " + err.Error())
		}
		return domain.Wrap(domain.CodeAuth, "broker.Refresh", err)
	}
	b.current.Store(cred)
	if b.health != nil {
		b.health.SetHealthy()
	}
	b.logger.Debug("credential refreshed", zap.Time("expires_at", cred.ExpiresAt))
	return nil
}

// Run refreshes the credential on a fixed interval until the context is
// cancelled. Refresh errors are absorbed; the loop keeps going.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.TokenRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.Refresh(ctx)
		}
	}
}

func (b *Broker) observeRefresh(err error) {
	if b.metrics != nil {
		b.metrics.ObserveTokenRefresh(b.cfg.Topology, err)
	}
}

func (b *Broker) fetch(ctx context.Context) (*domain.Credential, error) {
	switch b.cfg.Topology {
	case domain.TopologyBasic:
		return b.fetchBasic()
	case domain.TopologyOAuth:
		return b.fetchOAuth(ctx)
	case domain.TopologyZenIAM:
		return b.fetchZenIAM(ctx)
	default:
		return nil, domain.E(domain.CodeConfiguration, "broker.fetch", "unknown topology "+string(b.cfg.Topology), nil)
	}
}

// fetchBasic mints no bearer: the gateway attaches HTTP basic auth from
// the credential instead. Only the XSRF token rotates.
func (b *Broker) fetchBasic() (*domain.Credential, error) {
	return &domain.Credential{
		Topology:  domain.TopologyBasic,
		Username:  b.cfg.Basic.Username,
		Password:  b.cfg.Basic.Password,
		XSRFToken: uuid.NewString(),
		FetchedAt: time.Now(),
	}, nil
}

func (b *Broker) fetchOAuth(ctx context.Context) (*domain.Credential, error) {
	tok, err := b.grantToken(ctx, grantSpec{
		tokenURL:     b.cfg.OAuth.TokenURL,
		grantType:    b.cfg.OAuth.GrantType,
		scope:        b.cfg.OAuth.Scope,
		clientID:     b.cfg.OAuth.ClientID,
		clientSecret: b.cfg.OAuth.ClientSecret,
		username:     b.cfg.OAuth.Username,
		password:     b.cfg.OAuth.Password,
	}, b.tokenClient)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Topology:  domain.TopologyOAuth,
		Bearer:    tok.AccessToken,
		XSRFToken: uuid.NewString(),
		FetchedAt: time.Now(),
		ExpiresAt: tok.Expiry,
	}, nil
}

// fetchZenIAM runs the two-hop exchange: an OAuth grant against the IAM
// endpoint, then a Zen exchange of the IAM token for the repository bearer.
func (b *Broker) fetchZenIAM(ctx context.Context) (*domain.Credential, error) {
	iamTok, err := b.grantToken(ctx, grantSpec{
		tokenURL:     b.cfg.ZenIAM.IAMURL,
		grantType:    b.cfg.ZenIAM.GrantType,
		scope:        b.cfg.ZenIAM.Scope,
		clientID:     b.cfg.ZenIAM.ClientID,
		clientSecret: b.cfg.ZenIAM.ClientSecret,
		username:     b.cfg.ZenIAM.Username,
		password:     b.cfg.ZenIAM.Password,
	}, b.iamClient)
	if err != nil {
		return nil, err
	}

	bearer, err := b.zenExchange(ctx, iamTok.AccessToken)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Topology:  domain.TopologyZenIAM,
		Bearer:    bearer,
		XSRFToken: uuid.NewString(),
		FetchedAt: time.Now(),
		ExpiresAt: iamTok.Expiry,
	}, nil
}

type grantSpec struct {
	tokenURL     string
	grantType    string
	scope        string
	clientID     string
	clientSecret string
	username     string
	password     string
}

func (b *Broker) grantToken(ctx context.Context, g grantSpec, client *http.Client) (*oauth2.Token, error) {
	const op = "broker.grantToken"
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	switch g.grantType {
	case "password":
		conf := &oauth2.Config{
			ClientID:     g.clientID,
			ClientSecret: g.clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: g.tokenURL},
			Scopes:       splitScope(g.scope),
		}
		tok, err := conf.PasswordCredentialsToken(ctx, g.username, g.password)
		if err != nil {
			return nil, classifyTokenError(op, err)
		}
		return tok, nil
	case "client_credentials":
		conf := &clientcredentials.Config{
			ClientID:     g.clientID,
			ClientSecret: g.clientSecret,
			TokenURL:     g.tokenURL,
			Scopes:       splitScope(g.scope),
		}
		tok, err := conf.Token(ctx)
		if err != nil {
			return nil, classifyTokenError(op, err)
		}
		return tok, nil
	default:
		return nil, domain.E(domain.CodeConfiguration, op, "unsupported grant type "+g.grantType, nil)
	}
}

// zenExchange trades the IAM access token for the bearer accepted by the
// repository. The exchange is a GET carrying the user and IAM token as
// headers; the response body holds {"accessToken": "..."}.
func (b *Broker) zenExchange(ctx context.Context, iamToken string) (string, error) {
	const op = "broker.zenExchange"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.ZenIAM.ZenURL, nil)
	if err != nil {
		return "", domain.E(domain.CodeInternal, op, "", err)
	}
	req.Header.Set("username", b.cfg.ZenIAM.Username)
	req.Header.Set("iam-token", iamToken)

	resp, err := b.zenClient.Do(req)
	if err != nil {
		return "", domain.E(domain.CodeTransport, op, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.E(domain.CodeTransport, op, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.E(domain.CodeAuth, op,
			fmt.Sprintf("zen exchange returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", domain.E(domain.CodeAuth, op, "decode zen exchange response", err)
	}
	if payload.AccessToken == "" {
		return "", domain.E(domain.CodeAuth, op, "zen exchange response carried no accessToken", nil)
	}
	return payload.AccessToken, nil
}

func classifyTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return domain.E(domain.CodeAuth, op,
			fmt.Sprintf("token endpoint returned %d", retrieveErr.Response.StatusCode), err)
	}
	return domain.E(domain.CodeTransport, op, "", err)
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
