package tsodbc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const defaultPort = "8080"

// dsnConfig is a parsed connection string:
//
//	tsodbc://[user[:password]@]host[:port][/database][?param=value&...]
type dsnConfig struct {
	host, port     string
	user, password string
	database       string

	https      bool
	clientInfo string
	clientTags []string
	maxRows    int32
	rateLimit  rate.Limit

	sslCert, sslKey, sslCA string
	sslSkipVerify          bool
}

// dsnParams maps each query parameter to the setter that validates it.
var dsnParams = map[string]func(cfg *dsnConfig, val string) error{
	"client_info": func(cfg *dsnConfig, val string) error {
		cfg.clientInfo = val
		return nil
	},
	"client_tags": func(cfg *dsnConfig, val string) error {
		cfg.clientTags = strings.Split(val, ",")
		return nil
	},
	"max_rows": func(cfg *dsnConfig, val string) error {
		n, err := strconv.ParseInt(val, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid max_rows %q", val)
		}
		cfg.maxRows = int32(n)
		return nil
	},
	"rate_limit": func(cfg *dsnConfig, val string) error {
		r, err := strconv.ParseFloat(val, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("invalid rate_limit %q", val)
		}
		cfg.rateLimit = rate.Limit(r)
		return nil
	},
	"https":           boolParam("https", func(cfg *dsnConfig) *bool { return &cfg.https }),
	"ssl_skip_verify": boolParam("ssl_skip_verify", func(cfg *dsnConfig) *bool { return &cfg.sslSkipVerify }),
	"ssl_cert":        stringParam(func(cfg *dsnConfig) *string { return &cfg.sslCert }),
	"ssl_key":         stringParam(func(cfg *dsnConfig) *string { return &cfg.sslKey }),
	"ssl_ca":          stringParam(func(cfg *dsnConfig) *string { return &cfg.sslCA }),
}

func boolParam(name string, field func(*dsnConfig) *bool) func(*dsnConfig, string) error {
	return func(cfg *dsnConfig, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q", name, val)
		}
		*field(cfg) = b
		return nil
	}
}

func stringParam(field func(*dsnConfig) *string) func(*dsnConfig, string) error {
	return func(cfg *dsnConfig, val string) error {
		*field(cfg) = val
		return nil
	}
}

func parseDSN(dsn string) (*dsnConfig, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}
	if u.Scheme != "tsodbc" {
		return nil, fmt.Errorf("unsupported scheme %q: must be tsodbc", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in DSN")
	}

	cfg := &dsnConfig{
		host:      u.Hostname(),
		port:      orDefault(u.Port(), defaultPort),
		database:  strings.Trim(u.Path, "/"),
		rateLimit: rate.Inf,
	}
	if strings.Contains(cfg.database, "/") {
		return nil, fmt.Errorf("invalid database %q in DSN", cfg.database)
	}
	if u.User != nil {
		cfg.user = u.User.Username()
		cfg.password, _ = u.User.Password()
	}

	for key, vals := range u.Query() {
		set, ok := dsnParams[key]
		if !ok {
			return nil, fmt.Errorf("unsupported DSN parameter %q", key)
		}
		if err := set(cfg, vals[0]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// serverURL is the service base URL. TLS settings imply https.
func (cfg *dsnConfig) serverURL() string {
	scheme := "http"
	if cfg.https || cfg.hasTLS() {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(cfg.host, cfg.port)
}

func (cfg *dsnConfig) hasTLS() bool {
	return cfg.sslSkipVerify || cfg.sslCA != "" || cfg.sslCert != "" || cfg.sslKey != ""
}

// tlsConfig is nil when the DSN carries no TLS settings.
func (cfg *dsnConfig) tlsConfig() (*tls.Config, error) {
	if !cfg.hasTLS() {
		return nil, nil
	}
	out := &tls.Config{InsecureSkipVerify: cfg.sslSkipVerify}

	if cfg.sslCA != "" {
		pem, err := os.ReadFile(cfg.sslCA)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		out.RootCAs = x509.NewCertPool()
		if !out.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", cfg.sslCA)
		}
	}
	if cfg.sslCert != "" || cfg.sslKey != "" {
		pair, err := tls.LoadX509KeyPair(cfg.sslCert, cfg.sslKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		out.Certificates = append(out.Certificates, pair)
	}
	return out, nil
}
