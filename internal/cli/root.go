package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	a := &app{}
	defer a.close()
	if err := newRootCommand(a, version).Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCommand(a *app, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "jobcost",
		Short:   "Job costing dashboard over materials, labor and overhead",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags().Changed("env-file"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		newServeCommand(a),
		newSummaryCommand(a),
		newInitCommand(a),
		newRefreshCommand(a),
	)
	return rootCmd
}
