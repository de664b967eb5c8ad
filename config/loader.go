package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadOptions controls where Load reads from. Empty paths are skipped.
type LoadOptions struct {
	Path    string
	EnvFile string
	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from defaults, the YAML file, the .env file and the
// environment, in that order, then validates it. Process environment wins
// over values from the .env file.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := cfg.loadFile(opts.Path); err != nil {
			return nil, err
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		lookup = chainLookup(lookup, values)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func chainLookup(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

type envBinding struct {
	key   string
	apply func(string) error
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	bindings := []envBinding{
		{"AUTH_SIGNING_KEY", setString(&c.Auth.SigningKey)},
		{"AUTH_ISSUER", setString(&c.Auth.Issuer)},
		{"AUTH_AUDIENCE", setList(&c.Auth.Audience)},
		{"AUTH_ACCESS_TOKEN_TTL", setDuration(&c.Auth.AccessTokenTTL)},
		{"AUTH_REFRESH_TOKEN_TTL", setDuration(&c.Auth.RefreshTokenTTL)},
		{"AUTH_SESSION_TTL", setDuration(&c.Auth.SessionTTL)},
		{"AUTH_TOKEN_LOOKUP", setString(&c.Auth.TokenLookup)},
		{"AUTH_COOKIE_SECURE", setBool(&c.Auth.CookieSecure)},
		{"AUTH_SESSION_BRIDGE", setBool(&c.Auth.SessionBridge)},
		{"AUTH_BCRYPT_COST", setInt(&c.Auth.BcryptCost)},
		{"AUTH_PHONE_REGION", setString(&c.Auth.PhoneRegion)},
		{"HTTP_ADDR", setString(&c.HTTP.Addr)},
		{"HTTP_API_PREFIX", setString(&c.HTTP.APIPrefix)},
		{"HTTP_PAGES", setBool(&c.HTTP.Pages)},
		{"DATABASE_DRIVER", setString(&c.Database.Driver)},
		{"DATABASE_DSN", setString(&c.Database.DSN)},
		{"DATABASE_AUTO_MIGRATE", setBool(&c.Database.AutoMigrate)},
		{"REDIS_ENABLED", setBool(&c.Redis.Enabled)},
		{"REDIS_ADDR", setString(&c.Redis.Addr)},
		{"REDIS_PASSWORD", setString(&c.Redis.Password)},
		{"REDIS_DB", setInt(&c.Redis.DB)},
		{"LOG_LEVEL", setString(&c.Log.Level)},
		{"LOG_FORMAT", setString(&c.Log.Format)},
		{"LOG_AUDIT", setBool(&c.Log.Audit)},
	}

	for _, b := range bindings {
		raw, ok := lookup(b.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := b.apply(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid value for %s: %w", b.key, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
