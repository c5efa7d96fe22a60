// Package oauth2 attaches bearer tokens to tsodbc requests, either a fixed
// access token or one obtained through the client credentials flow.
package oauth2

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ethanyzhang/tsodbc"
)

// Config describes a client credentials grant.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Audience is sent as the "audience" token request parameter when set.
	Audience string
}

var (
	ErrMissingClientID     = errors.New("oauth2: client id is required")
	ErrMissingClientSecret = errors.New("oauth2: client secret is required")
	ErrMissingTokenURL     = errors.New("oauth2: token url is required")
)

func (c *Config) validate() error {
	switch {
	case c.ClientID == "":
		return ErrMissingClientID
	case c.ClientSecret == "":
		return ErrMissingClientSecret
	case c.TokenURL == "":
		return ErrMissingTokenURL
	}
	return nil
}

// BearerToken sets a fixed access token on every request.
func BearerToken(token string) tsodbc.RequestOption {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// FromTokenSource sets the current token of ts on every request. A request
// whose token cannot be obtained goes out unauthenticated and the service
// rejects it.
func FromTokenSource(ts oauth2.TokenSource) tsodbc.RequestOption {
	return func(req *http.Request) {
		token, err := ts.Token()
		if err != nil {
			log.Debug().Err(err).Str("url", req.URL.String()).Msg("failed to obtain oauth2 token")
			return
		}
		token.SetAuthHeader(req)
	}
}

// ClientCredentials returns an option that fetches tokens from cfg.TokenURL
// and reuses them until they expire.
func ClientCredentials(cfg Config) (tsodbc.RequestOption, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}
	return FromTokenSource(cc.TokenSource(context.Background())), nil
}

// DSN parameters consumed by SplitDSN.
const (
	dsnToken        = "access_token"
	dsnClientID     = "oauth_client_id"
	dsnClientSecret = "oauth_client_secret"
	dsnTokenURL     = "oauth_token_url"
	dsnScopes       = "oauth_scopes"
	dsnAudience     = "oauth_audience"
)

// SplitDSN removes the OAuth parameters from dsn and returns the option they
// describe together with the remaining DSN. The option is nil when dsn
// carries no OAuth parameters.
func SplitDSN(dsn string) (tsodbc.RequestOption, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, "", &url.Error{Op: "oauth2: parse DSN", URL: dsn, Err: err}
	}

	q := u.Query()
	token := q.Get(dsnToken)
	cfg := Config{
		TokenURL:     q.Get(dsnTokenURL),
		ClientID:     q.Get(dsnClientID),
		ClientSecret: q.Get(dsnClientSecret),
		Audience:     q.Get(dsnAudience),
	}
	for _, s := range strings.Split(q.Get(dsnScopes), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Scopes = append(cfg.Scopes, s)
		}
	}
	for _, key := range []string{dsnToken, dsnClientID, dsnClientSecret, dsnTokenURL, dsnScopes, dsnAudience} {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	rest := u.String()

	switch {
	case token != "":
		return BearerToken(token), rest, nil
	case cfg.ClientID != "" || cfg.TokenURL != "":
		opt, err := ClientCredentials(cfg)
		if err != nil {
			return nil, "", err
		}
		return opt, rest, nil
	}
	return nil, rest, nil
}

// NewConnector opens a tsodbc connector whose sessions authenticate with
// the OAuth parameters found in dsn.
func NewConnector(dsn string, opts ...tsodbc.ConnectorOption) (driver.Connector, error) {
	opt, rest, err := SplitDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opt != nil {
		setup := tsodbc.WithSessionSetup(func(s *tsodbc.Session) {
			s.RequestOptions(opt)
		})
		opts = append([]tsodbc.ConnectorOption{setup}, opts...)
	}
	return tsodbc.NewConnector(rest, opts...)
}
