package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/output"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List workspace users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			users, err := c.Users.List().Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.write(cmd, output.Users(users))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "me",
		Short: "Show the user behind the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			me, err := c.Users.Me(cmd.Context())
			if err != nil {
				return err
			}
			return a.write(cmd, output.Users([]core.User{*me}))
		},
	})
	return cmd
}
