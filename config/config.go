// Package config loads the authd configuration from defaults, a YAML file,
// an optional .env file and the process environment.
package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	auth "github.com/goliatone/go-auth-bridge"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	redacted = "********"
)

// Config is the full daemon configuration. It implements auth.Config.
type Config struct {
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

type AuthConfig struct {
	SigningKey      string        `yaml:"signing_key" json:"signing_key"`
	Issuer          string        `yaml:"issuer" json:"issuer"`
	Audience        []string      `yaml:"audience" json:"audience"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" json:"refresh_token_ttl"`
	SessionTTL      time.Duration `yaml:"session_ttl" json:"session_ttl"`
	TokenLookup     string        `yaml:"token_lookup" json:"token_lookup"`
	AuthScheme      string        `yaml:"auth_scheme" json:"auth_scheme"`
	CookieSecure    bool          `yaml:"cookie_secure" json:"cookie_secure"`
	SessionBridge   bool          `yaml:"session_bridge" json:"session_bridge"`
	BcryptCost      int           `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	PhoneRegion     string        `yaml:"phone_region" json:"phone_region"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	APIPrefix    string        `yaml:"api_prefix" json:"api_prefix"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	Pages        bool          `yaml:"pages" json:"pages"`
	MetricsPath  string        `yaml:"metrics_path" json:"metrics_path"`
}

// DatabaseConfig selects the SQL backend. DSN is a file path or
// "file:" URI for sqlite and a postgres URL for postgres.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" json:"driver"`
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate" json:"auto_migrate"`
	Debug        bool   `yaml:"debug" json:"debug"`
}

// RedisConfig enables Redis backed blacklist and session storage.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	// Audit logs every activity event as a normalized record
	Audit bool `yaml:"audit" json:"audit"`
}

// Default returns a Config usable for local development. The signing key
// must still be provided.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Issuer:          "go-auth-bridge",
			Audience:        []string{"go-auth-bridge"},
			AccessTokenTTL:  auth.DefaultAccessTokenTTL,
			RefreshTokenTTL: auth.DefaultRefreshTokenTTL,
			SessionTTL:      auth.DefaultSessionTTL,
			TokenLookup:     auth.DefaultTokenLookup,
			AuthScheme:      "Bearer",
			CookieSecure:    true,
			SessionBridge:   true,
			BcryptCost:      12,
			PhoneRegion:     auth.DefaultPhoneRegion,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			APIPrefix:    auth.DefaultAPIPrefix,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Pages:        true,
			MetricsPath:  "/metrics",
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "file:authd.db?cache=shared",
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "auth:blacklist:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Audit:  true,
		},
	}
}

// Validate checks every section and reports errors keyed by section.
func (c *Config) Validate() error {
	return validation.Errors{
		"auth":     c.Auth.Validate(),
		"http":     c.HTTP.Validate(),
		"database": c.Database.Validate(),
		"redis":    c.Redis.Validate(),
		"log":      c.Log.Validate(),
	}.Filter()
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.Issuer, validation.Required),
		validation.Field(&a.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&a.RefreshTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&a.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&a.BcryptCost, validation.Min(4), validation.Max(31)),
	)
}

func (h HTTPConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
		validation.Field(&h.APIPrefix, validation.Required),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("json", "console")),
	)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.Audience = append([]string(nil), c.Auth.Audience...)
	if out.Auth.SigningKey != "" {
		out.Auth.SigningKey = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	return out
}

func (c *Config) GetSigningKey() string { return c.Auth.SigningKey }
func (c *Config) GetIssuer() string { return c.Auth.Issuer }
func (c *Config) GetAudience() []string { return c.Auth.Audience }
func (c *Config) GetAccessTokenTTL() time.Duration { return c.Auth.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration { return c.Auth.RefreshTokenTTL }
func (c *Config) GetSessionTTL() time.Duration { return c.Auth.SessionTTL }
func (c *Config) GetTokenLookup() string { return c.Auth.TokenLookup }
func (c *Config) GetAuthScheme() string { return c.Auth.AuthScheme }
func (c *Config) GetCookieSecure() bool { return c.Auth.CookieSecure }
func (c *Config) GetSessionBridge() bool { return c.Auth.SessionBridge }
func (c *Config) GetBcryptCost() int { return c.Auth.BcryptCost }
func (c *Config) GetPhoneRegion() string { return c.Auth.PhoneRegion }

var _ auth.Config = (*Config)(nil)
