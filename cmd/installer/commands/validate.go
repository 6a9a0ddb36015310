package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/transform"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the installer configuration.

This command checks:
  - YAML syntax and unknown keys
  - Value constraints (backends, durations, required fields)
  - Starlark transformer scripts load
  - Rego policies compile`,
		Example: `  # Validate the default configuration
  installer validate

  # Validate a specific file
  installer validate --config ./installer.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("config", configPath).Msg("Validating configuration")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			for _, s := range cfg.Transform.Scripts {
				t, err := transform.LoadStarlarkTransformer(s.Path, s.Timeout)
				if err != nil {
					return err
				}
				if err := t.Check(); err != nil {
					return err
				}
			}

			policies := 0
			if cfg.Policy.Enabled {
				engine, err := newPolicyEngine(cmd.Context(), cfg, log.Logger)
				if err != nil {
					return err
				}
				policies = len(engine.ListPolicies())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d transformer scripts, %d policies)\n",
				len(cfg.Transform.Scripts), policies)
			return nil
		},
	}

	return cmd
}
