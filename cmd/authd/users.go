package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-auth-bridge"
)

var cliActor = auth.ActorRef{Type: "cli", ID: appName}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(
		c.usersCreateCmd(),
		c.usersListCmd(),
		c.usersTransitionCmd("delete", "Soft delete a user", (*auth.UserRepository).SoftDelete),
		c.usersTransitionCmd("restore", "Restore a soft deleted user", (*auth.UserRepository).Restore),
		c.usersTransitionCmd("disable", "Disable a user", (*auth.UserRepository).Disable),
		c.usersTransitionCmd("enable", "Enable a disabled user", (*auth.UserRepository).Enable),
	)
	return cmd
}

func (c *cli) usersCreateCmd() *cobra.Command {
	var (
		req       auth.RegisterRequest
		superuser bool
		staff     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			_, auther := rt.users()
			req.PasswordConfirm = req.Password

			user, err := auther.CreateUser(cmd.Context(), req, auth.UserOptions{
				IsStaff:     staff || superuser,
				IsSuperuser: superuser,
			})
			if err != nil {
				return describe(err)
			}

			writef(cmd.OutOrStdout(), "created user %s <%s>\n", user.ID, user.Email)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Email, "email", "", "Email address")
	f.StringVar(&req.FirstName, "first-name", "", "First name")
	f.StringVar(&req.LastName, "last-name", "", "Last name")
	f.StringVar(&req.Phone, "phone", "", "Phone number")
	f.StringVar(&req.Password, "password", "", "Password")
	f.BoolVar(&staff, "staff", false, "Mark as staff")
	f.BoolVar(&superuser, "superuser", false, "Create a superuser")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) usersListCmd() *cobra.Command {
	var filter auth.UserFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			repo, _ := rt.users()
			users, err := repo.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writef(w, "ID\tEMAIL\tNAME\tSTATUS\tCREATED\n")
			for _, u := range users {
				writef(w, "%s\t%s\t%s\t%s\t%s\n",
					u.ID, u.Email, u.FullName(), u.Status, u.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Search, "search", "", "Match email, name or phone")
	f.BoolVar(&filter.IncludeDeleted, "include-deleted", false, "Include soft deleted users")
	f.BoolVar(&filter.OnlyDeleted, "only-deleted", false, "Only soft deleted users")
	f.IntVar(&filter.Limit, "limit", 0, "Maximum rows")
	return cmd
}

type transitionFunc func(*auth.UserRepository, context.Context, auth.ActorRef, *auth.User, ...auth.TransitionOption) (*auth.User, error)

func (c *cli) usersTransitionCmd(use, short string, transition transitionFunc) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			repo, _ := rt.users()
			user, err := repo.GetByEmail(ctx, args[0])
			if err != nil {
				return describe(err)
			}

			var opts []auth.TransitionOption
			if reason != "" {
				opts = append(opts, auth.WithTransitionReason(reason))
			}

			updated, err := transition(repo, ctx, cliActor, user, opts...)
			if err != nil {
				return describe(err)
			}

			writef(cmd.OutOrStdout(), "%s is now %s\n", updated.Email, updated.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the transition")
	return cmd
}

// describe renders rich errors as their message followed by any field
// messages, one per line.
func describe(err error) error {
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		return err
	}

	fields := auth.FieldErrors(rich)
	msg := rich.Message
	for _, field := range slices.Sorted(maps.Keys(fields)) {
		msg += fmt.Sprintf("\n  %s: %s", field, fields[field])
	}
	return errors.New(msg)
}
