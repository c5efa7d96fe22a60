// Package kerberos authenticates tsodbc requests with SPNEGO Negotiate
// headers backed by a keytab login.
package kerberos

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/rs/zerolog/log"

	"github.com/ethanyzhang/tsodbc"
)

// Config holds the keytab login parameters.
type Config struct {
	Keytab    string // path to the .keytab file
	Principal string // "user" or "user@REALM"
	Realm     string // required unless Principal names one
	Krb5Conf  string // path to krb5.conf
	SPN       string // service principal, "HTTP/<request host>" when empty
}

var (
	ErrMissingKeytab    = errors.New("kerberos: keytab is required")
	ErrMissingPrincipal = errors.New("kerberos: principal is required")
	ErrMissingRealm     = errors.New("kerberos: realm is required")
	ErrMissingKrb5Conf  = errors.New("kerberos: krb5.conf path is required")
)

func (c *Config) validate() error {
	switch {
	case c.Keytab == "":
		return ErrMissingKeytab
	case c.Principal == "":
		return ErrMissingPrincipal
	case c.Krb5Conf == "":
		return ErrMissingKrb5Conf
	}
	if _, realm := c.splitPrincipal(); realm == "" {
		return ErrMissingRealm
	}
	return nil
}

// splitPrincipal returns the user and realm to log in as. A realm inside
// Principal takes precedence over Realm.
func (c *Config) splitPrincipal() (user, realm string) {
	if i := strings.LastIndex(c.Principal, "@"); i >= 0 {
		return c.Principal[:i], c.Principal[i+1:]
	}
	return c.Principal, c.Realm
}

// spnFor returns the service principal for requests to host.
func (c *Config) spnFor(host string) string {
	if c.SPN != "" {
		return c.SPN
	}
	return "HTTP/" + host
}

// Authenticator holds a logged-in Kerberos client. Close destroys it.
type Authenticator struct {
	cfg Config
	cl  *client.Client
}

var _ io.Closer = (*Authenticator)(nil)

// Login loads the keytab and krb5.conf named by cfg and obtains a TGT.
func Login(cfg Config) (*Authenticator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	kt, err := keytab.Load(cfg.Keytab)
	if err != nil {
		return nil, fmt.Errorf("kerberos: failed to load keytab %q: %w", cfg.Keytab, err)
	}
	krb5Conf, err := config.Load(cfg.Krb5Conf)
	if err != nil {
		return nil, fmt.Errorf("kerberos: failed to load config %q: %w", cfg.Krb5Conf, err)
	}

	user, realm := cfg.splitPrincipal()
	cl := client.NewWithKeytab(user, realm, kt, krb5Conf)
	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("kerberos: login as %s@%s failed: %w", user, realm, err)
	}
	return &Authenticator{cfg: cfg, cl: cl}, nil
}

// RequestOption sets the Negotiate header on every request.
func (a *Authenticator) RequestOption() tsodbc.RequestOption {
	return func(req *http.Request) {
		spn := a.cfg.spnFor(req.URL.Hostname())
		if err := spnego.SetSPNEGOHeader(a.cl, req, spn); err != nil {
			log.Debug().Err(err).Str("spn", spn).Msg("failed to set SPNEGO header")
		}
	}
}

// Close implements io.Closer.
func (a *Authenticator) Close() error {
	a.cl.Destroy()
	return nil
}

// DSN parameters consumed by SplitDSN.
const (
	dsnKeytab    = "krb_keytab"
	dsnPrincipal = "krb_principal"
	dsnRealm     = "krb_realm"
	dsnKrb5Conf  = "krb_config"
	dsnSPN       = "krb_spn"
)

// SplitDSN removes the Kerberos parameters from dsn and returns them with
// the remaining DSN.
func SplitDSN(dsn string) (Config, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, "", fmt.Errorf("kerberos: invalid DSN: %w", err)
	}

	q := u.Query()
	cfg := Config{
		Keytab:    q.Get(dsnKeytab),
		Principal: q.Get(dsnPrincipal),
		Realm:     q.Get(dsnRealm),
		Krb5Conf:  q.Get(dsnKrb5Conf),
		SPN:       q.Get(dsnSPN),
	}
	for _, key := range []string{dsnKeytab, dsnPrincipal, dsnRealm, dsnKrb5Conf, dsnSPN} {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	return cfg, u.String(), nil
}

// NewConnector logs in with the Kerberos parameters of dsn and opens a
// connector whose sessions send Negotiate headers. The returned closer
// destroys the Kerberos client and must outlive the connector's use.
func NewConnector(dsn string, opts ...tsodbc.ConnectorOption) (driver.Connector, io.Closer, error) {
	cfg, rest, err := SplitDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	auth, err := Login(cfg)
	if err != nil {
		return nil, nil, err
	}

	setup := tsodbc.WithSessionSetup(func(s *tsodbc.Session) {
		s.RequestOptions(auth.RequestOption())
	})
	connector, err := tsodbc.NewConnector(rest, append([]tsodbc.ConnectorOption{setup}, opts...)...)
	if err != nil {
		auth.Close()
		return nil, nil, err
	}
	return connector, auth, nil
}
