package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/core/store"
	"github.com/pagewire/pagewire/internal/output"
)

func newRateLimitListCmd(a *app) *cobra.Command {
	var (
		all    bool
		prefix string
		box    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored rate limit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := store.RateLimitQuery{All: all, Prefix: strings.TrimSpace(prefix)}
			if !query.All && query.Prefix == "" {
				query.All = true
			}

			db, err := a.openRateLimitStore(cmd.Context(), a.adminBackend(cmd))
			if err != nil {
				return err
			}
			defer db.Close() // nolint:errcheck // best-effort cleanup

			entries, err := db.ListRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}

			if box {
				_, err := fmt.Fprint(cmd.OutOrStdout(), output.RateLimitsBox(entries))
				return err
			}
			return a.write(cmd, output.RateLimits(entries))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list all endpoints")
	cmd.Flags().StringVar(&prefix, "prefix", "", "list endpoints with matching prefix")
	cmd.Flags().BoolVar(&box, "box", false, "draw a compact summary box")
	return cmd
}
