package tsodbc

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSessionHeaders(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Session)
		want  map[string]string
	}{
		{
			name:  "defaults",
			setup: func(*Session) {},
			want:  map[string]string{UserHeader: DefaultUser, DatabaseHeader: "", ClientTagHeader: "", "Authorization": ""},
		},
		{
			name:  "database and info",
			setup: func(s *Session) { s.Database("metrics").ClientInfo("grafana") },
			want:  map[string]string{DatabaseHeader: "metrics", ClientInfoHeader: "grafana"},
		},
		{
			name:  "tags",
			setup: func(s *Session) { s.ClientTags("etl", "nightly").AppendClientTag("retry") },
			want:  map[string]string{ClientTagHeader: "etl,nightly,retry"},
		},
		{
			name:  "plain user",
			setup: func(s *Session) { s.User("reader") },
			want:  map[string]string{UserHeader: "reader", "Authorization": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestClient(t, "http://ts.local").NewSession()
			tt.setup(s)
			req, err := s.NewRequest("GET", "v1/query", nil)
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, req.Header.Get(k), k)
			}
			assert.Equal(t, "gzip", req.Header.Get("Accept-Encoding"))
		})
	}
}

func TestSessionBasicAuth(t *testing.T) {
	s := newTestClient(t, "http://ts.local").NewSession().UserPassword("ops", "hunter2")
	req, err := s.NewRequest("POST", "v1/query", NewQueryRequest("SELECT 1", 0))
	require.NoError(t, err)

	user, pw, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "ops", user)
	assert.Equal(t, "hunter2", pw)
	assert.Equal(t, "ops", req.Header.Get(UserHeader))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestSessionCloneIsolation(t *testing.T) {
	c := newTestClient(t, "http://ts.local")
	c.Database("metrics").MaxRows(100).ClientTags("base")

	s := c.NewSession()
	s.Database("logs").MaxRows(5).AppendClientTag("child")

	assert.Equal(t, "metrics", c.currentDatabase())
	assert.Equal(t, int32(100), c.pageSize())
	assert.Equal(t, []string{"base"}, c.clientTags)

	assert.Equal(t, "logs", s.currentDatabase())
	assert.Equal(t, int32(5), s.pageSize())
	assert.Equal(t, []string{"base", "child"}, s.clientTags)
	assert.Same(t, c, s.client)
}

func TestSessionRequestOptions(t *testing.T) {
	header := func(k, v string) RequestOption {
		return func(r *http.Request) { r.Header.Set(k, v) }
	}

	s := newTestClient(t, "http://ts.local").NewSession()
	s.RequestOptions(header("Authorization", "Bearer abc"), header("X-Trace", "session"))

	req, err := s.NewRequest("GET", "/", nil, header("X-Trace", "call"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Equal(t, "call", req.Header.Get("X-Trace"), "per-call options run last")

	clone := s.Clone()
	clone.RequestOptions(header("Authorization", "Bearer xyz"))

	req, _ = clone.NewRequest("GET", "/", nil)
	assert.Equal(t, "Bearer xyz", req.Header.Get("Authorization"))
	req, _ = s.NewRequest("GET", "/", nil)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestSessionConcurrentRequests(t *testing.T) {
	c := newTestClient(t, "http://ts.local")
	shared := c.NewSession()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db := fmt.Sprintf("db-%d", i)
			own := c.NewSession().Database(db)
			req, err := own.NewRequest("GET", "/", nil)
			assert.NoError(t, err)
			assert.Equal(t, db, req.Header.Get(DatabaseHeader))

			shared.AppendClientTag(db)
			_, err = shared.NewRequest("GET", "/", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, shared.clientTags, 32)
}
