package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Admission policy management",
		Long: `Inspect the admission policies.

Before a typed resource is installed it is evaluated against every enabled
Rego policy. A violation with severity "error" or "critical" sets the
resource to ignored; lower severities are logged as warnings.`,
	}

	cmd.AddCommand(newPolicyListCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and configured policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine, err := newPolicyEngine(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			policies := engine.ListPolicies()

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), policies)
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"Name", "Enabled", "Severity", "Tags", "Description"})
			for _, p := range policies {
				t.AppendRow(table.Row{p.Name, p.Enabled, p.Severity, strings.Join(p.Tags, ","), p.Description})
			}
			t.Render()
			return nil
		},
	}
}
