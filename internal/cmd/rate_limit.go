package cmd

import "github.com/spf13/cobra"

func newRateLimitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate-limit",
		Short: "Manage persisted rate limit state",
		Long: `Inspect or clear the shared tracker state written by clients running with
--shared-tracking. The libsql store is used unless the tracker backend is redis.`,
	}
	cmd.PersistentFlags().String("backend", "", "store to inspect: libsql|redis (default from tracker_backend)")
	cmd.AddCommand(newRateLimitListCmd(a), newRateLimitResetCmd(a))
	return cmd
}

func (a *app) adminBackend(cmd *cobra.Command) string {
	if flag := cmd.Flags().Lookup("backend"); flag != nil && flag.Changed {
		return persistentBackend(flag.Value.String())
	}
	return persistentBackend(a.cfg.RateLimit.TrackerBackend)
}
