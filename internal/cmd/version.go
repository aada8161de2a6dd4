package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/core/client"
)

func newVersionCmd() *cobra.Command {
	var extended bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information. Use --extended for the API version and dependency details.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", config.AppName, versionInfo.Version)
			if !extended {
				return nil
			}
			fmt.Fprintf(w, "Commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(w, "Built: %s\n", versionInfo.BuildDate)
			fmt.Fprintf(w, "Go: %s\n", runtime.Version())
			fmt.Fprintf(w, "API version: %s\n\n", client.DefaultVersion)

			deps := crucible.GetVersion()
			fmt.Fprintf(w, "Gofulmen: %s\n", deps.Gofulmen)
			fmt.Fprintf(w, "Crucible: %s\n", deps.Crucible)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	return cmd
}
