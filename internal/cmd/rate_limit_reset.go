package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/core/store"
	"github.com/pagewire/pagewire/internal/output"
)

type resetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

func newRateLimitResetCmd(a *app) *cobra.Command {
	var (
		all      bool
		endpoint string
		prefix   string
		yes      bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset stored rate limit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := store.RateLimitQuery{
				All:      all,
				Endpoint: strings.TrimSpace(endpoint),
				Prefix:   strings.TrimSpace(prefix),
			}
			if err := query.Validate(); err != nil {
				return err
			}
			if query.All && !yes && !dryRun {
				return errors.New("--all requires --yes (or use --dry-run)")
			}

			db, err := a.openRateLimitStore(cmd.Context(), a.adminBackend(cmd))
			if err != nil {
				return err
			}
			defer db.Close() // nolint:errcheck // best-effort cleanup

			matched, err := db.CountRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}

			result := resetResult{Matched: matched, DryRun: dryRun}
			if !dryRun {
				result.Deleted, err = db.ResetRateLimits(cmd.Context(), query)
				if err != nil {
					return err
				}
			}
			return a.write(cmd, resetDocument(result))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset all endpoints")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "reset a single endpoint (exact match)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "reset endpoints with matching prefix")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm destructive reset")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted")
	return cmd
}

func resetDocument(r resetResult) output.Document {
	doc := output.Document{
		Title:  "Rate Limit Reset",
		Header: []string{"Matched", "Deleted", "Dry Run"},
		Rows:   [][]string{{fmt.Sprint(r.Matched), fmt.Sprint(r.Deleted), fmt.Sprint(r.DryRun)}},
		Data:   r,
	}
	if r.DryRun {
		doc.Footer = fmt.Sprintf("would delete %d entr(ies)", r.Matched)
	} else {
		doc.Footer = fmt.Sprintf("deleted %d/%d entr(ies)", r.Deleted, r.Matched)
	}
	return doc
}
