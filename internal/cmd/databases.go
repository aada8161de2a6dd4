package cmd

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/output"
)

func newDatabasesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "databases",
		Short: "Query databases and data sources",
	}
	cmd.AddCommand(newDatabasesQueryCmd(a))
	return cmd
}

func newDatabasesQueryCmd(a *app) *cobra.Command {
	var (
		filterJSON string
		sortsJSON  string
		dataSource bool
	)

	cmd := &cobra.Command{
		Use:   "query <id>",
		Short: "List every page of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.QueryRequest{}
			if raw := strings.TrimSpace(filterJSON); raw != "" {
				if !json.Valid([]byte(raw)) {
					return errors.New("--filter-json is not valid JSON")
				}
				req.Filter = json.RawMessage(raw)
			}
			if raw := strings.TrimSpace(sortsJSON); raw != "" {
				if !json.Valid([]byte(raw)) {
					return errors.New("--sorts-json is not valid JSON")
				}
				req.Sorts = json.RawMessage(raw)
			}

			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var list client.List[core.Page]
			if dataSource {
				list, err = c.DataSources.Query(args[0], req)
			} else {
				list, err = c.Databases.Query(args[0], req)
			}
			if err != nil {
				return err
			}

			pages, err := list.Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.write(cmd, output.Pages(pages))
		},
	}
	cmd.Flags().StringVar(&filterJSON, "filter-json", "", "query filter as JSON")
	cmd.Flags().StringVar(&sortsJSON, "sorts-json", "", "query sorts as JSON")
	cmd.Flags().BoolVar(&dataSource, "data-source", false, "treat the id as a data source id")
	return cmd
}
