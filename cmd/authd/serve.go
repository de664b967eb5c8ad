package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-auth-bridge/persistence"
	"github.com/goliatone/go-auth-bridge/server"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr != "" {
				rt.cfg.HTTP.Addr = addr
			}

			deps := server.Deps{
				Config: rt.cfg,
				DB:     rt.db,
				Logger: rt.logger,
			}

			if rt.cfg.Redis.Enabled {
				client, err := persistence.NewRedisClient(ctx, rt.cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				deps.Redis = client
				rt.logger.Info("redis enabled", "addr", rt.cfg.Redis.Addr)
			}

			srv, err := server.New(deps)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.addr")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := c.load()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = false

			db, err := persistence.Open(ctx, cfg.Database, nil)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := persistence.Migrate(ctx, db.DB, cfg.Database.Driver); err != nil {
				return err
			}

			version, err := persistence.MigrationVersion(ctx, db.DB, cfg.Database.Driver)
			if err != nil {
				return err
			}
			writef(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}
