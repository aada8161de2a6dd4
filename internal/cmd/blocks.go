package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/output"
)

func newBlocksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Work with blocks",
	}
	cmd.AddCommand(newBlocksChildrenCmd(a))
	return cmd
}

func newBlocksChildrenCmd(a *app) *cobra.Command {
	var byPage bool

	cmd := &cobra.Command{
		Use:   "children <id>",
		Short: "List the child blocks of a page or block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := c.Blocks.Children(args[0])
			if err != nil {
				return err
			}

			if !byPage {
				blocks, err := list.Collect(cmd.Context())
				if err != nil {
					return err
				}
				return a.write(cmd, output.Blocks(blocks))
			}

			n := 0
			for page, err := range list.IteratePages(cmd.Context()) {
				if err != nil {
					return err
				}
				n++
				doc := output.Blocks(page.Results)
				doc.Title = fmt.Sprintf("Page %d", n)
				if err := a.write(cmd, doc); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byPage, "pages", false, "print each fetched page separately")
	return cmd
}

