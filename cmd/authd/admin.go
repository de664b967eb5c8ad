package main

import (
	"fmt"

	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/persistence"
)

func (c *cli) blacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Maintain the refresh token blacklist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete entries for tokens that already expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			var opts []auth.RepositoryManagerOption
			if rt.cfg.Redis.Enabled {
				client, err := persistence.NewRedisClient(ctx, rt.cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				opts = append(opts, auth.WithRepositoryBlacklist(
					auth.NewRedisBlacklist(client, auth.WithRedisBlacklistPrefix(rt.cfg.Redis.Prefix)),
				))
			}

			_, auther := rt.users(opts...)
			n, err := auther.TokenService().PurgeExpired(ctx)
			if err != nil {
				return err
			}
			writef(cmd.OutOrStdout(), "purged %d blacklist entries\n", n)
			return nil
		},
	})
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(cfg.Redacted()))
			return nil
		},
	}
}
