// Package gateway executes GraphQL operations against the content-services
// endpoint. All traffic, including content downloads and multipart uploads,
// flows through one pooled HTTP client so every path shares the same trust
// configuration. Credentials are attached at send time from the broker's
// current snapshot; the gateway never caches them.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"csmcp/internal/domain"
)

// CredentialSource hands out the current credential snapshot. Calls must
// be cheap and non-blocking.
type CredentialSource interface {
	Current() *domain.Credential
}

// Operation is one GraphQL request. Name is only used for logging and
// metrics labels.
type Operation struct {
	Name      string
	Query     string
	Variables map[string]any
}

// UploadFile is one content element attached to a multipart mutation.
// Field must match the variable name the mutation binds the content to.
type UploadFile struct {
	Field    string
	Name     string
	MIMEType string
	Content  io.Reader
}

type Gateway struct {
	endpoint    string
	baseURL     string
	objectStore string
	client      *http.Client
	source      CredentialSource
	timeout     time.Duration
	metrics     domain.Metrics
	logger      *zap.Logger
}

func New(cfg *domain.Config, tlsCfg *tls.Config, source CredentialSource, metrics domain.Metrics, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	transport.MaxConnsPerHost = cfg.PoolSize
	transport.MaxIdleConnsPerHost = cfg.PoolSize

	return &Gateway{
		endpoint:    cfg.ServerURL,
		baseURL:     strings.TrimSuffix(cfg.ServerURL, "/graphql"),
		objectStore: cfg.ObjectStore,
		client:      &http.Client{Transport: transport},
		source:      source,
		timeout:     cfg.RequestTimeout,
		metrics:     metrics,
		logger:      logger.Named("gateway"),
	}
}

// ObjectStore is the repository identifier every operation targets.
func (g *Gateway) ObjectStore() string {
	return g.objectStore
}

// Execute posts one GraphQL operation and returns the raw data payload.
// A non-empty errors list in the envelope surfaces as a GRAPHQL-coded
// error even when partial data is present.
func (g *Gateway) Execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	const errOp = "gateway.Execute"

	body, err := json.Marshal(domain.GraphQLRequest{Query: op.Query, Variables: op.Variables})
	if err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := g.do(req, op.Name)
	if err != nil {
		return nil, err
	}
	return g.decodeEnvelope(op.Name, respBody)
}

// Upload posts a mutation as multipart form data with attached content
// elements. The GraphQL document travels in the "graphql" form field and
// each file in a part named after its bound variable.
func (g *Gateway) Upload(ctx context.Context, op Operation, files []UploadFile) (json.RawMessage, error) {
	const errOp = "gateway.Upload"

	operations, err := json.Marshal(domain.GraphQLRequest{Query: op.Query, Variables: op.Variables})
	if err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "encode request", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("graphql", string(operations)); err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "write graphql field", err)
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		mimeType := f.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		header.Set("Content-Type", mimeType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, domain.E(domain.CodeInternal, errOp, "create part "+f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, domain.E(domain.CodeInternal, errOp, "copy content "+f.Field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "finalize form", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, &buf)
	if err != nil {
		return nil, domain.E(domain.CodeInternal, errOp, "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := g.do(req, op.Name)
	if err != nil {
		return nil, err
	}
	return g.decodeEnvelope(op.Name, respBody)
}

// DownloadText fetches a content element's download URL and returns the
// body as a string. Used for text-extract annotations.
func (g *Gateway) DownloadText(ctx context.Context, downloadURL string) (string, error) {
	data, _, err := g.download(ctx, downloadURL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Download fetches a content element and returns its bytes along with the
// filename advertised in the Content-Disposition header.
func (g *Gateway) Download(ctx context.Context, downloadURL string) ([]byte, string, error) {
	return g.download(ctx, downloadURL)
}

var filenamePattern = regexp.MustCompile(`filename="([^"]+)"`)

func (g *Gateway) download(ctx context.Context, downloadURL string) ([]byte, string, error) {
	const errOp = "gateway.Download"

	// Download URLs come back relative to the API root, one level above
	// the /graphql endpoint.
	target := downloadURL
	if !strings.Contains(downloadURL, "://") {
		target = g.baseURL + downloadURL
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", domain.E(domain.CodeInternal, errOp, "build request", err)
	}
	if err := g.authorize(req); err != nil {
		return nil, "", err
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.observe("download", start, err)
		return nil, "", classifyTransport(errOp, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := classifyStatus(errOp, resp.StatusCode)
		g.observe("download", start, err)
		return nil, "", err
	}

	data, err := io.ReadAll(resp.Body)
	g.observe("download", start, err)
	if err != nil {
		return nil, "", domain.E(domain.CodeTransport, errOp, "read content", err)
	}

	filename := ""
	if m := filenamePattern.FindStringSubmatch(resp.Header.Get("Content-Disposition")); m != nil {
		filename = m[1]
		if unescaped, err := url.PathUnescape(filename); err == nil {
			filename = unescaped
		}
	}
	return data, filename, nil
}

// do attaches auth, sends the request and returns the body of a 200
// response. Auth is read from the broker at send time so an in-flight
// refresh never splits a bearer from its XSRF token.
func (g *Gateway) do(req *http.Request, operation string) ([]byte, error) {
	const errOp = "gateway.Execute"

	if err := g.authorize(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.observe(operation, start, err)
		return nil, classifyTransport(errOp, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		err := classifyStatus(errOp, resp.StatusCode)
		g.observe(operation, start, err)
		g.logger.Warn("request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
		)
		return nil, err
	}
	g.observe(operation, start, readErr)
	if readErr != nil {
		return nil, domain.E(domain.CodeTransport, errOp, "read response", readErr)
	}
	return body, nil
}

func (g *Gateway) authorize(req *http.Request) error {
	cred := g.source.Current()
	if cred == nil {
		return domain.E(domain.CodeAuth, "gateway.authorize", "no credential available", nil)
	}
	if cred.UsesBasicAuth() {
		req.SetBasicAuth(cred.Username, cred.Password)
	} else {
		req.Header.Set("Authorization", "Bearer "+cred.Bearer)
	}
	req.Header.Set(domain.XSRFHeader, cred.XSRFToken)
	req.AddCookie(&http.Cookie{Name: domain.XSRFHeader, Value: cred.XSRFToken})
	return nil
}

func (g *Gateway) decodeEnvelope(operation string, body []byte) (json.RawMessage, error) {
	var envelope domain.GraphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.E(domain.CodeTransport, "gateway.Execute", "decode response", err)
	}
	if len(envelope.Errors) > 0 {
		g.logger.Warn("operation returned errors",
			zap.String("operation", operation),
			zap.String("errors", envelope.ErrorMessages()),
		)
		return nil, domain.E(domain.CodeGraphQL, "gateway.Execute", envelope.ErrorMessages(), nil)
	}
	return envelope.Data, nil
}

func (g *Gateway) observe(operation string, start time.Time, err error) {
	if g.metrics != nil {
		g.metrics.ObserveRequest(operation, time.Since(start), err)
	}
}

func classifyTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.CodeDeadlineExceeded, op, "request deadline exceeded", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return domain.E(domain.CodeDeadlineExceeded, op, "request deadline exceeded", err)
	}
	return domain.E(domain.CodeTransport, op, "", err)
}

func classifyStatus(op string, status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.E(domain.CodeAuth, op, fmt.Sprintf("endpoint returned %d", status), nil)
	default:
		return domain.E(domain.CodeTransport, op, fmt.Sprintf("endpoint returned %d", status), nil)
	}
}
