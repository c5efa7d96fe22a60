package tsodbc

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://ts.local:8080")
	require.NoError(t, err)
	defer c.Close()

	assert.Same(t, c, c.Session.client)
	assert.Equal(t, DefaultUser, c.Session.user.Username())

	_, err = NewClient("://ts.local")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server URL")
}

func TestClientResolve(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		https bool
		ref   string
		want  string
	}{
		{"relative", "http://ts.local:8080", false, "v1/query", "http://ts.local:8080/v1/query"},
		{"absolute path", "http://ts.local:8080/api/", false, "/v1/query", "http://ts.local:8080/v1/query"},
		{"forced https", "http://ts.local:8080", true, "v1/query/cancel", "https://ts.local:8080/v1/query/cancel"},
		{"https kept", "https://ts.local", true, "v1/query", "https://ts.local/v1/query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.base)
			require.NoError(t, err)
			defer c.Close()

			u, err := c.ForceHTTPS(tt.https).resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestClientTransportSettings(t *testing.T) {
	c, err := NewClient("http://ts.local")
	require.NoError(t, err)
	defer c.Close()

	cfg := &tls.Config{ServerName: "ts.local"}
	c.TLSConfig(cfg)
	tr, ok := c.hc.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Same(t, cfg, tr.TLSClientConfig)

	hc := &http.Client{Timeout: 5}
	assert.Same(t, hc, c.HTTPClient(hc).hc)
}

func TestEncodeBody(t *testing.T) {
	r, ct, err := encodeBody(nil)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, ct)

	r, ct, err = encodeBody("SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
	raw, _ := io.ReadAll(r)
	assert.Equal(t, "SELECT 1", string(raw))

	r, ct, err = encodeBody(NewQueryRequest("SELECT 1", 50))
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	raw, _ = io.ReadAll(r)
	assert.Contains(t, string(raw), `"queryString":"SELECT 1"`)
	assert.Contains(t, string(raw), `"maxRows":50`)

	_, _, err = encodeBody(make(chan int))
	assert.Error(t, err)
}

func gzipped(t *testing.T, s string) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func TestDecodeBody(t *testing.T) {
	reply := func(body io.Reader, encoding string) *http.Response {
		resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(body)}
		if encoding != "" {
			resp.Header.Set("Content-Encoding", encoding)
		}
		return resp
	}

	t.Run("discard", func(t *testing.T) {
		assert.NoError(t, decodeBody(reply(strings.NewReader("ignored"), ""), nil))
	})

	t.Run("writer target", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, decodeBody(reply(strings.NewReader("page-1"), ""), &out))
		assert.Equal(t, "page-1", out.String())
	})

	t.Run("empty body", func(t *testing.T) {
		var out QueryOutcome
		assert.NoError(t, decodeBody(reply(strings.NewReader(""), ""), &out))
	})

	t.Run("gzip json", func(t *testing.T) {
		var out struct {
			QueryId string `json:"queryId"`
		}
		require.NoError(t, decodeBody(reply(gzipped(t, `{"queryId":"q-1"}`), "gzip"), &out))
		assert.Equal(t, "q-1", out.QueryId)
	})

	t.Run("bad gzip", func(t *testing.T) {
		err := decodeBody(reply(strings.NewReader("plain"), "gzip"), &map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gzip")
	})

	t.Run("bad json", func(t *testing.T) {
		err := decodeBody(reply(strings.NewReader("{"), ""), &map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode JSON")
	})
}
