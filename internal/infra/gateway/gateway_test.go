package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
	"csmcp/internal/infra/trust"
)

type staticSource struct {
	cred *domain.Credential
}

func (s *staticSource) Current() *domain.Credential { return s.cred }

func bearerSource() *staticSource {
	return &staticSource{cred: &domain.Credential{
		Topology:  domain.TopologyOAuth,
		Bearer:    "test-bearer",
		XSRFToken: "xsrf-1",
		FetchedAt: time.Now(),
	}}
}

func testGateway(serverURL string, source CredentialSource) *Gateway {
	cfg := &domain.Config{
		ServerURL:      serverURL,
		ObjectStore:    "OS1",
		RequestTimeout: 2 * time.Second,
		PoolSize:       4,
	}
	return New(cfg, nil, source, nil, nil)
}

func TestExecuteAttachesBearerAndXSRF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
		assert.Equal(t, "xsrf-1", r.Header.Get(domain.XSRFHeader))
		cookie, err := r.Cookie(domain.XSRFHeader)
		require.NoError(t, err)
		assert.Equal(t, "xsrf-1", cookie.Value)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req domain.GraphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "document")
		assert.Equal(t, "OS1", req.Variables["object_store_name"])

		_, _ = w.Write([]byte(`{"data":{"document":{"id":"doc-1"}}}`))
	}))
	defer srv.Close()

	g := testGateway(srv.URL+"/graphql", bearerSource())
	data, err := g.Execute(context.Background(), Operation{
		Name:  "getDocument",
		Query: `query { document { id } }`,
		Variables: map[string]any{
			"object_store_name": g.ObjectStore(),
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"document":{"id":"doc-1"}}`, string(data))
}

func TestExecuteAppliesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ceadmin", user)
		assert.Equal(t, "secret", pass)
		assert.NotContains(t, r.Header.Get("Authorization"), "Bearer")

		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	source := &staticSource{cred: &domain.Credential{
		Topology:  domain.TopologyBasic,
		Username:  "ceadmin",
		Password:  "secret",
		XSRFToken: "xsrf-basic",
	}}
	g := testGateway(srv.URL+"/graphql", source)

	_, err := g.Execute(context.Background(), Operation{Name: "ping", Query: "query { ping }"})
	require.NoError(t, err)
}

func TestExecuteClassifiesGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"object not found"},{"message":"second"}]}`))
	}))
	defer srv.Close()

	g := testGateway(srv.URL+"/graphql", bearerSource())
	_, err := g.Execute(context.Background(), Operation{Name: "getDocument", Query: "query {}"})
	require.Error(t, err)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeGraphQL, code)
	assert.Contains(t, err.Error(), "object not found")
	assert.Contains(t, err.Error(), "second")
}

func TestExecuteClassifiesAuthStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := testGateway(srv.URL+"/graphql", bearerSource())
	_, err := g.Execute(context.Background(), Operation{Name: "getDocument", Query: "query {}"})
	require.Error(t, err)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeAuth, code)
}

func TestExecuteClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	cfg := &domain.Config{
		ServerURL:      srv.URL + "/graphql",
		ObjectStore:    "OS1",
		RequestTimeout: 50 * time.Millisecond,
		PoolSize:       4,
	}
	g := New(cfg, nil, bearerSource(), nil, nil)

	_, err := g.Execute(context.Background(), Operation{Name: "slow", Query: "query {}"})
	require.Error(t, err)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeDeadlineExceeded, code)
}

func TestExecuteWithoutCredential(t *testing.T) {
	g := testGateway("http://127.0.0.1:0/graphql", &staticSource{})
	_, err := g.Execute(context.Background(), Operation{Name: "x", Query: "query {}"})
	require.Error(t, err)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeAuth, code)
}

func TestDownloadSharesClientAndParsesFilename(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content-services-graphql/graphql", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("/content-services-graphql/download/doc-1", func(w http.ResponseWriter, r *http.Request) {
		// The download path must carry the same auth as the query path.
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
		assert.Equal(t, "xsrf-1", r.Header.Get(domain.XSRFHeader))

		w.Header().Set("Content-Disposition", `attachment; filename="Patient%20Report%20(1).pdf";filename*=utf-8''x`)
		_, _ = w.Write([]byte("pdf-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := testGateway(srv.URL+"/content-services-graphql/graphql", bearerSource())

	data, filename, err := g.Download(context.Background(), "/download/doc-1")
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))
	assert.Equal(t, "Patient Report (1).pdf", filename)

	text, err := g.DownloadText(context.Background(), "/download/doc-1")
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", text)
}

func TestTrustSettingAppliesToExecuteAndDownloadAlike(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("/download/doc-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pdf-bytes"))
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	cfg := &domain.Config{
		ServerURL:      srv.URL + "/graphql",
		ObjectStore:    "OS1",
		RequestTimeout: 2 * time.Second,
		PoolSize:       4,
	}

	// The server presents a certificate no system root signs. With the
	// main-endpoint trust setting "false" both the query path and the
	// download path must accept it.
	tlsCfg, err := trust.Resolve("false")
	require.NoError(t, err)
	g := New(cfg, tlsCfg, bearerSource(), nil, nil)

	_, err = g.Execute(context.Background(), Operation{Name: "ping", Query: "query { ping }"})
	require.NoError(t, err)

	data, _, err := g.Download(context.Background(), "/download/doc-1")
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))

	// Under system trust the same certificate is refused on both paths.
	strict := New(cfg, nil, bearerSource(), nil, nil)

	_, execErr := strict.Execute(context.Background(), Operation{Name: "ping", Query: "query { ping }"})
	require.Error(t, execErr)
	execCode, ok := domain.CodeFrom(execErr)
	require.True(t, ok)

	_, _, dlErr := strict.Download(context.Background(), "/download/doc-1")
	require.Error(t, dlErr)
	dlCode, ok := domain.CodeFrom(dlErr)
	require.True(t, ok)

	assert.Equal(t, execCode, dlCode)
}

func TestUploadSendsMultipartWithGraphQLField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var req domain.GraphQLRequest
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("graphql")), &req))
		assert.Contains(t, req.Query, "createDocument")

		file, header, err := r.FormFile("content0")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "report.txt", header.Filename)
		assert.Equal(t, "text/plain", header.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"data":{"createDocument":{"id":"doc-9"}}}`))
	}))
	defer srv.Close()

	g := testGateway(srv.URL+"/graphql", bearerSource())
	data, err := g.Upload(context.Background(), Operation{
		Name:  "createDocument",
		Query: "mutation { createDocument { id } }",
	}, []UploadFile{{
		Field:    "content0",
		Name:     "report.txt",
		MIMEType: "text/plain",
		Content:  strings.NewReader("hello"),
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"createDocument":{"id":"doc-9"}}`, string(data))
}
