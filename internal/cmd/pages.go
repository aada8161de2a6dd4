package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/output"
)

func newPagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Work with pages",
	}
	cmd.AddCommand(newPagesGetCmd(a))
	return cmd
}

func newPagesGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: "Retrieve pages concurrently",
		Long: `Retrieve one or more pages. Up to --workers requests run at once and each
retries on its own; a failed page does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			results := c.RetrieveMany(cmd.Context(), args, a.cfg.Workers)
			if err := a.write(cmd, output.PageResults(results)); err != nil {
				return err
			}

			var failures []error
			for _, r := range results {
				if r.Err != nil {
					failures = append(failures, fmt.Errorf("page %s: %w", r.ID, r.Err))
				}
			}
			return errors.Join(failures...)
		},
	}
	cmd.Flags().Int("workers", 0, "concurrent retrievals (default from config)")
	bindConfigKey(cmd.Flags(), "workers", "workers")
	return cmd
}
