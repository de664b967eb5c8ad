// Command authd serves the auth API and manages users from the shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	auth "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/config"
	"github.com/goliatone/go-auth-bridge/persistence"
)

const (
	Version = "0.1.0"
	appName = "authd"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	envFile    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Authentication service with JWT and session bridging",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", "", "Optional .env file")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.blacklistCmd(),
		c.usersCmd(),
		c.configCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    c.configPath,
		EnvFile: c.envFile,
	})
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = strings.ToLower(c.logLevel)
		if err := cfg.Log.Validate(); err != nil {
			return nil, fmt.Errorf("log-level: %w", err)
		}
	}
	return cfg, nil
}

func newZapLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// env is what most subcommands need: config, logger and database.
type env struct {
	cfg    *config.Config
	zap    *zap.Logger
	logger auth.Logger
	db     *bun.DB
}

func (r *env) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
	_ = r.zap.Sync()
}

func (c *cli) open(ctx context.Context) (*env, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}

	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger := auth.NewZapLogger(zl)

	db, err := persistence.Open(ctx, cfg.Database, logger)
	if err != nil {
		_ = zl.Sync()
		return nil, err
	}

	rt := &env{cfg: cfg, zap: zl, logger: logger, db: db}

	if cfg.Database.AutoMigrate {
		if err := persistence.Migrate(ctx, db.DB, cfg.Database.Driver); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// users builds the repository and authenticator used by the admin commands.
// Options override the repository manager defaults, e.g. a Redis blacklist.
func (r *env) users(opts ...auth.RepositoryManagerOption) (*auth.UserRepository, *auth.Auther) {
	opts = append(opts, auth.WithRepositoryUsersOptions(
		auth.WithUsersStateMachineOptions(auth.WithStateMachineLogger(r.logger)),
	))
	repos := auth.NewRepositoryManager(r.db, opts...)
	repos.MustValidate()

	repo := repos.Users()
	tokens := auth.NewTokenService(r.cfg, repo, repos.Blacklist(),
		auth.WithTokenLogger(r.logger),
	)
	auther := auth.NewAuthenticator(repo, tokens, auth.NewBcryptHasher(r.cfg.GetBcryptCost()), r.cfg).
		WithLogger(r.logger)
	return repo, auther
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
