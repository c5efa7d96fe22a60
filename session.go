package tsodbc

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// RequestOption adjusts an outgoing request after the session headers are set.
type RequestOption func(*http.Request)

// Session is the per-connection request state: identity, default database,
// page size and client tags. Setters return the session for chaining and
// are safe to call concurrently with request building.
type Session struct {
	client *Client

	mu         sync.RWMutex
	user       *url.Userinfo
	database   string
	clientInfo string
	clientTags []string
	maxRows    int32
	options    []RequestOption
}

// Clone returns an independent copy bound to the same client.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		client:     s.client,
		user:       s.user,
		database:   s.database,
		clientInfo: s.clientInfo,
		clientTags: slices.Clone(s.clientTags),
		maxRows:    s.maxRows,
		options:    slices.Clone(s.options),
	}
}

func (s *Session) set(fn func()) *Session {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	return s
}

// Database sets the database that qualifies unqualified table names.
func (s *Session) Database(name string) *Session {
	return s.set(func() { s.database = name })
}

func (s *Session) User(name string) *Session {
	return s.set(func() { s.user = url.User(name) })
}

// UserPassword also enables HTTP basic auth.
func (s *Session) UserPassword(name, password string) *Session {
	return s.set(func() { s.user = url.UserPassword(name, password) })
}

func (s *Session) ClientInfo(info string) *Session {
	return s.set(func() { s.clientInfo = info })
}

func (s *Session) ClientTags(tags ...string) *Session {
	return s.set(func() { s.clientTags = tags })
}

func (s *Session) AppendClientTag(tag string) *Session {
	return s.set(func() { s.clientTags = append(s.clientTags, tag) })
}

// MaxRows sets the page size asked of the service; 0 lets it choose.
func (s *Session) MaxRows(n int32) *Session {
	return s.set(func() { s.maxRows = n })
}

// RequestOptions appends options run on every request of the session,
// ahead of per-call options. Auth providers attach credentials this way.
func (s *Session) RequestOptions(opts ...RequestOption) *Session {
	return s.set(func() { s.options = append(s.options, opts...) })
}

// NewRequest builds a request against the client's base URL carrying the
// session headers. body is sent as text when it is a string and as JSON
// otherwise.
func (s *Session) NewRequest(method, ref string, body any, opts ...RequestOption) (*http.Request, error) {
	u, err := s.client.resolve(ref)
	if err != nil {
		return nil, err
	}
	r, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, u.String(), r)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	for _, opt := range append(s.writeHeaders(req), opts...) {
		opt(req)
	}
	return req, nil
}

// writeHeaders stamps the session state onto req and returns a snapshot of
// the session options.
func (s *Session) writeHeaders(req *http.Request) []RequestOption {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := req.Header
	if s.user != nil {
		h.Set(UserHeader, s.user.Username())
		if pw, ok := s.user.Password(); ok {
			req.SetBasicAuth(s.user.Username(), pw)
		}
	}
	if s.database != "" {
		h.Set(DatabaseHeader, s.database)
	}
	if s.clientInfo != "" {
		h.Set(ClientInfoHeader, s.clientInfo)
	}
	if len(s.clientTags) > 0 {
		h.Set(ClientTagHeader, strings.Join(s.clientTags, ","))
	}
	return slices.Clone(s.options)
}
