package tsodbc

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Header names understood by the query service.
const (
	UserHeader       = "X-Ts-User"
	DatabaseHeader   = "X-Ts-Database"
	ClientInfoHeader = "X-Ts-Client-Info"
	ClientTagHeader  = "X-Ts-Client-Tags"

	DefaultUser = "tsodbc-go-client"
)

// Client owns the HTTP transport shared by all of its sessions. The
// embedded Session is the default one; NewSession hands out copies.
type Client struct {
	Session

	base       *url.URL
	hc         *http.Client
	limiter    *rate.Limiter
	runtime    *RuntimeHandle
	forceHTTPS bool
}

// NewClient returns a client for the service at serverURL. It holds a
// reference on the shared async runtime until Close.
func NewClient(serverURL string) (*Client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	rt, err := AcquireRuntime()
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:    base,
		hc:      &http.Client{},
		limiter: rate.NewLimiter(rate.Inf, 0),
		runtime: rt,
	}
	c.Session.client = c
	c.Session.user = url.User(DefaultUser)
	return c, nil
}

// Close drops the runtime reference. Later requests fall back to plain
// goroutines.
func (c *Client) Close() error {
	c.runtime.Release()
	return nil
}

// NewSession copies the default session.
func (c *Client) NewSession() *Session {
	return c.Session.Clone()
}

// ForceHTTPS rewrites http request URLs to https.
func (c *Client) ForceHTTPS(force bool) *Client {
	c.forceHTTPS = force
	return c
}

// HTTPClient swaps the underlying http.Client.
func (c *Client) HTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

// TLSConfig installs a clone of the default transport carrying cfg.
func (c *Client) TLSConfig(cfg *tls.Config) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = cfg
	c.hc.Transport = tr
	return c
}

// RateLimit caps outgoing requests at r per second with the given burst.
// rate.Inf turns limiting off. The new limiter starts full.
func (c *Client) RateLimit(r rate.Limit, burst int) *Client {
	c.limiter = rate.NewLimiter(r, burst)
	return c
}

func (c *Client) resolve(ref string) (*url.URL, error) {
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, err
	}
	if c.forceHTTPS && u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u, nil
}

// encodeBody turns a request payload into a reader and its content type.
// Strings go out verbatim, anything else as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain", nil
	}
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, "", err
	}
	return buf, "application/json", nil
}

// decodeBody consumes and closes resp.Body. v may be nil (discard), an
// io.Writer (raw copy) or a JSON target. An empty body decodes to nothing.
func decodeBody(resp *http.Response, v any) (err error) {
	defer func() {
		if cerr := resp.Body.Close(); err == nil {
			err = cerr
		}
	}()
	if v == nil {
		return nil
	}

	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, gerr := gzip.NewReader(resp.Body)
		if gerr != nil {
			return fmt.Errorf("failed to create gzip reader: %w", gerr)
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("failed to close gzip reader")
			}
		}()
		r = gz
	}

	if w, ok := v.(io.Writer); ok {
		_, err = io.Copy(w, r)
		return err
	}
	switch derr := json.NewDecoder(r).Decode(v); {
	case derr == nil, errors.Is(derr, io.EOF):
		return nil
	default:
		return fmt.Errorf("failed to decode JSON: %w", derr)
	}
}
