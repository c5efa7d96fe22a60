// Package config loads tsodbc tool settings from an optional file and from
// prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the settings tree shared by the command line tools.
//
// Environment variables map onto it by stripping the prefix and turning
// underscores into nesting: TSODBC_LOG_LEVEL sets log.level.
type Config struct {
	DSN      string         `mapstructure:"dsn"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Kerberos KerberosConfig `mapstructure:"kerberos"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

type OAuthConfig struct {
	Token        string   `mapstructure:"token"`
	TokenURL     string   `mapstructure:"tokenurl"`
	ClientID     string   `mapstructure:"clientid"`
	ClientSecret string   `mapstructure:"clientsecret"`
	Scopes       []string `mapstructure:"scopes"`
}

type KerberosConfig struct {
	Keytab    string `mapstructure:"keytab"`
	Principal string `mapstructure:"principal"`
	Realm     string `mapstructure:"realm"`
	Krb5Conf  string `mapstructure:"krb5conf"`
	SPN       string `mapstructure:"spn"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DSN: "tsodbc://localhost:8080",
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// Load fills target from file, when non-empty, and then from environment
// variables starting with prefix (e.g. "TSODBC_"). Environment values win.
// Fields absent from both keep the value target already holds.
func Load(prefix, file string, target any) error {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return fmt.Errorf("config file %s not found: %w", file, err)
			}
			return fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	// AutomaticEnv only resolves keys viper already knows, so the variables
	// are copied in explicitly.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, val, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		propKey = strings.TrimPrefix(propKey, ".")
		if propKey != "" {
			v.Set(propKey, val)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}
