package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// persistent flags
var (
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the installer command line with ctx canceled on interrupt.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "installer",
		Short: "Module installer - reconciles provided resources into a module runtime",
		Long: `The module installer watches directories for module artifacts and
configurations, keeps a persistent registry of everything it was given and
installs and starts the winning version of every entity in the host runtime.

Features:
  - Entity-keyed resource registry with durable snapshots (file, SQLite, S3)
  - Ordered install and start tasks with event-gated start retries
  - Starlark transformers for custom resource types
  - Rego admission policies`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newSnapshotCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
