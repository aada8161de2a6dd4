package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/output"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		filter string
		limit  int
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search page and data source titles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.SearchRequest{}
			if len(args) == 1 {
				req.Query = strings.TrimSpace(args[0])
			}
			switch filter {
			case "":
			case string(core.ObjectPage), string(core.ObjectDataSource):
				req.Filter = &client.SearchFilter{Property: "object", Value: filter}
			default:
				return fmt.Errorf("--filter must be page or data_source, got %q", filter)
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			results := make([]core.SearchResult, 0)
			for result, err := range c.Search(req).Iterate(cmd.Context()) {
				if err != nil {
					return err
				}
				if stream {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", result.ID(), result.Object(), result.Title())
				} else {
					results = append(results, result)
				}
				if limit > 0 {
					limit--
					if limit == 0 {
						break
					}
				}
			}
			if stream {
				return nil
			}
			return a.write(cmd, output.SearchResults(results))
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only return page or data_source results")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many results (0 = all)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print results as tab-separated lines while pages arrive")
	return cmd
}
