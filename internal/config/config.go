package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "POLLY"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultPublicBaseURL   = "http://localhost:8080"
	defaultDatabaseDriver  = database.DriverSQLite
	defaultDatabaseDSN     = "polly.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "polly_session"
	defaultTokenTTLMinutes = 7 * 24 * 60
	defaultShareTTLHours   = 7 * 24
)

// AppConfig captures runtime configuration for the web server.
type AppConfig struct {
	HTTPAddress    string
	PublicBaseURL  string
	DatabaseDriver string
	DatabaseDSN    string
	SigningSecret  string
	CookieName     string
	CookieSecure   bool
	TokenTTL       time.Duration
	FlashSecret    string
	ShareTTL       time.Duration
	LogLevel       string
	LogFile        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("public.base_url", defaultPublicBaseURL)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("share.ttl_hours", defaultShareTTLHours)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		PublicBaseURL:  strings.TrimRight(strings.TrimSpace(configViper.GetString("public.base_url")), "/"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString("database.dsn")),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		CookieName:     strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		CookieSecure:   configViper.GetBool("auth.cookie_secure"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		FlashSecret:    configViper.GetString("flash.secret"),
		ShareTTL:       time.Duration(configViper.GetInt("share.ttl_hours")) * time.Hour,
		LogLevel:       configViper.GetString("log.level"),
		LogFile:        strings.TrimSpace(configViper.GetString("log.file")),
	}
	if strings.TrimSpace(cfg.FlashSecret) == "" {
		cfg.FlashSecret = cfg.SigningSecret
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", database.DriverSQLite, database.DriverPostgres, c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.ShareTTL < 0 {
		return fmt.Errorf("share.ttl_hours must not be negative")
	}
	parsed, err := url.Parse(c.PublicBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("public.base_url must be an absolute url")
	}
	return nil
}
