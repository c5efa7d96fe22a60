// Command tsquery runs queries and catalog lookups against a time-series
// query service through the tsodbc statement API.
package main

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/auth/kerberos"
	"github.com/ethanyzhang/tsodbc/auth/oauth2"
	"github.com/ethanyzhang/tsodbc/config"
)

const envPrefix = "TSODBC_"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfg        config.Config
	configFile string

	connector driver.Connector
	closers   []io.Closer
	metrics   *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	root := &cobra.Command{
		Use:           "tsquery",
		Short:         "Query a time-series service through tsodbc",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "settings file (yaml, json or toml)")
	flags.String("dsn", "", "tsodbc DSN, overrides "+envPrefix+"DSN")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		a.queryCmd(),
		a.tablesCmd(),
		a.columnsCmd(),
	)
	return root
}

// setup resolves settings in order file, environment, flags and then opens
// the connector.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.Load(envPrefix, a.configFile, &a.cfg); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("dsn") {
		a.cfg.DSN, _ = flags.GetString("dsn")
	}
	if flags.Changed("log-level") {
		a.cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		a.cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if err := setupLogging(a.cfg.Log, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if a.cfg.Metrics.Addr != "" {
		a.serveMetrics(a.cfg.Metrics.Addr)
	}
	return a.openConnector()
}

func setupLogging(cfg config.LogConfig, w io.Writer) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Debug().Str("addr", addr).Msg("serving metrics")
}

// openConnector builds the connector, attaching credentials from the
// settings. Credentials given in the DSN itself are handled by the auth
// packages' DSN splitting.
func (a *app) openConnector() error {
	var opts []tsodbc.ConnectorOption

	if cfg := a.cfg.OAuth; cfg.Token != "" || cfg.ClientID != "" {
		opt := oauth2.BearerToken(cfg.Token)
		if cfg.Token == "" {
			var err error
			opt, err = oauth2.ClientCredentials(oauth2.Config{
				TokenURL:     cfg.TokenURL,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scopes:       cfg.Scopes,
			})
			if err != nil {
				return err
			}
		}
		opts = append(opts, sessionOption(opt))
	}

	if cfg := a.cfg.Kerberos; cfg.Keytab != "" {
		auth, err := kerberos.Login(kerberos.Config{
			Keytab:    cfg.Keytab,
			Principal: cfg.Principal,
			Realm:     cfg.Realm,
			Krb5Conf:  cfg.Krb5Conf,
			SPN:       cfg.SPN,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, auth)
		opts = append(opts, sessionOption(auth.RequestOption()))
	}

	connector, err := oauth2.NewConnector(a.cfg.DSN, opts...)
	if err != nil {
		return err
	}
	a.connector = connector
	if c, ok := connector.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return nil
}

func sessionOption(opt tsodbc.RequestOption) tsodbc.ConnectorOption {
	return tsodbc.WithSessionSetup(func(s *tsodbc.Session) {
		s.RequestOptions(opt)
	})
}

func (a *app) teardown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// withStatement runs fn on a fresh statement of a new connection.
func (a *app) withStatement(ctx context.Context, fn func(*tsodbc.Statement) error) error {
	conn, err := tsodbc.Connect(ctx, a.connector)
	if err != nil {
		return err
	}
	defer conn.Close()

	st := conn.NewStatement()
	defer st.Close()
	return fn(st)
}
