package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
)

type recordedRequest struct {
	method      string
	path        string
	query       string
	contentType string
	body        string
}

func newTestServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"message":"denied"}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestUploadPostsMediaToBucket(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK)
	client := newWithHTTPClient(srv.Client(), srv.URL+"/", "docs", nil)

	ref, err := client.Upload(context.Background(), "/contracts/abc.pdf", "application/pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, "gs://docs/contracts/abc.pdf", ref)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/upload/storage/v1/b/docs/o", req.path)
	assert.Equal(t, "uploadType=media&name=contracts%2Fabc.pdf", req.query)
	assert.Equal(t, "application/pdf", req.contentType)
	assert.Equal(t, "%PDF-1.3", req.body)
}

func TestUploadSurfacesAPIErrors(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusForbidden)
	client := newWithHTTPClient(srv.Client(), srv.URL, "docs", nil)

	_, err := client.Upload(context.Background(), "contracts/abc.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "denied")
}

func TestUploadRequiresKey(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK)
	client := newWithHTTPClient(srv.Client(), srv.URL, "docs", nil)

	_, err := client.Upload(context.Background(), "  / ", "application/pdf", nil)
	require.Error(t, err)
	assert.Empty(t, *seen)
}

func TestPingListsBucket(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK)
	client := newWithHTTPClient(srv.Client(), srv.URL, "docs", nil)

	require.NoError(t, client.Ping(context.Background()))
	require.Len(t, *seen, 1)
	assert.Equal(t, "/storage/v1/b/docs/o", (*seen)[0].path)
	assert.Equal(t, "maxResults=1", (*seen)[0].query)

	down, _ := newTestServer(t, http.StatusNotFound)
	client = newWithHTTPClient(down.Client(), down.URL, "missing", nil)
	assert.Error(t, client.Ping(context.Background()))
}

func TestNilClientIsRejected(t *testing.T) {
	var client *Client
	assert.Error(t, client.Ping(context.Background()))
	_, err := client.Upload(context.Background(), "k", "text/plain", nil)
	assert.Error(t, err)
}

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.StorageConfig{}, nil)
	assert.Error(t, err)
}

func TestTokenSourceRejectsBadCredentials(t *testing.T) {
	_, err := tokenSource(context.Background(), config.GCPConfig{CredentialsJSON: "{not json"})
	assert.Error(t, err)

	_, err = tokenSource(context.Background(), config.GCPConfig{ApplicationCredentials: t.TempDir() + "/missing.json"})
	assert.Error(t, err)
}
