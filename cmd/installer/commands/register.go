package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/watch"
)

func newRegisterCommand() *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "register <file>...",
		Short: "Register files as raw resources",
		Long: `Store files in the data directory and register them as raw resources.

The registry is saved but nothing is installed; the next "installer run"
transforms and installs the registered resources. Registering a file whose
content is already known is a no-op.`,
		Example: `  # Register two modules with a high priority
  installer register --priority 200 app.yaml lib.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			added := 0
			for _, arg := range args {
				ok, err := a.register(arg, priority)
				if err != nil {
					return err
				}
				if ok {
					added++
				}
			}

			if added > 0 && !a.registry.Save(ctx) {
				return fmt.Errorf("failed to save registry")
			}
			log.Info().Int("registered", added).Int("files", len(args)).Msg("Registration complete")
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %d of %d files\n", added, len(args))
			return nil
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "priority of the registered resources")

	return cmd
}

func (a *app) register(path string, priority int) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}

	url := watch.URL(abs)
	dataFile, digest, err := a.data.Put(url, f)
	if err != nil {
		return false, err
	}

	return a.registry.AddOrUpdate(resource.InstallableResource{
		URL:      url,
		Digest:   digest,
		Type:     resource.TypeFile,
		Priority: priority,
		DataFile: dataFile,
		Dictionary: map[string]any{
			"file.name": info.Name(),
			"file.size": info.Size(),
		},
	})
}
