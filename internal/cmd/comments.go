package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/output"
)

func newCommentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Read discussion comments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <block-id>",
		Short: "List the comments on a page or block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := c.Comments.List(args[0])
			if err != nil {
				return err
			}
			comments, err := list.Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.write(cmd, output.Comments(comments))
		},
	})
	return cmd
}
