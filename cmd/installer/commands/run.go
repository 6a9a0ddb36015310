package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/installer"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/tasks"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/transports/ssh"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/watch"
)

func newRunCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the configured directories and reconcile the runtime",
		Long: `Run the installer.

The configured directories are scanned once and then watched. Every file is
stored in the data directory and registered as a raw resource; transformers
turn it into a typed resource and the installer installs and starts the
active resource of every entity in the host runtime.

Cycles run whenever a file changes, the runtime reports a lifecycle event or
the configured interval elapses. Remote SFTP sources are polled on their own
interval.`,
		Example: `  # Run with a configuration file
  installer run --config /etc/module-installer/installer.yaml

  # Scan the directories, run a single cycle and exit
  installer run --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			inst, err := a.newInstaller(ctx)
			if err != nil {
				return err
			}

			provider := watch.NewDirectoryProvider(a.cfg.Watch, a.data, inst.Submit, a.logger)
			if err := provider.Scan(); err != nil {
				return err
			}
			remotes, err := a.remoteProviders(inst.Submit)
			if err != nil {
				return err
			}

			if once {
				for _, rp := range remotes {
					if err := rp.Poll(ctx); err != nil {
						a.logger.Warn().Err(err).Msg("Remote poll failed")
					}
				}
				report := inst.RunCycle(ctx)
				return printCycle(cmd.OutOrStdout(), report)
			}

			if err := a.tel.StartMetricsServer(); err != nil {
				return err
			}

			go func() {
				if err := provider.Watch(ctx); err != nil {
					a.logger.Error().Err(err).Msg("Directory watch stopped")
				}
			}()
			for _, rp := range remotes {
				go rp.Run(ctx)
			}

			return inst.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")

	return cmd
}

// remoteProviders creates a poller for every configured SFTP source.
func (a *app) remoteProviders(submit func(resource.Change)) ([]*watch.RemoteProvider, error) {
	providers := make([]*watch.RemoteProvider, 0, len(a.cfg.Remote))
	for i := range a.cfg.Remote {
		r := &a.cfg.Remote[i]
		client, err := ssh.NewClient(&r.SSH, a.logger)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", r.SSH.Host, err)
		}
		providers = append(providers, watch.NewRemoteProvider(r.RemoteConfig, client, a.data, submit, a.logger))
	}
	return providers, nil
}

// newInstaller wires the installer to an in-process host runtime.
func (a *app) newInstaller(ctx context.Context) (*installer.Installer, error) {
	transformer, err := a.transformer()
	if err != nil {
		return nil, err
	}

	runtime := hostrt.NewMemory(a.logger)
	opts := installer.Options{
		Registry:    a.registry,
		Transformer: transformer,
		Creator: tasks.NewCreator(tasks.Env{
			Runtime:     runtime,
			StartLevels: runtime,
			Logger:      a.logger,
			Metrics:     a.tel.Metrics,
		}),
		Runner: engine.NewRunner(a.logger,
			engine.WithTracer(a.tel.Tracer),
			engine.WithMetrics(a.tel.Metrics),
		),
		Cache:    a.data,
		Metrics:  a.tel.Metrics,
		Logger:   a.logger,
		Interval: a.cfg.Interval,
	}

	pe, err := a.policies(ctx)
	if err != nil {
		return nil, err
	}
	if pe != nil {
		opts.Admitter = pe
	}

	inst := installer.New(opts)
	runtime.Subscribe(inst.OnEvent)

	a.logger.Info().
		Strs("dirs", a.cfg.Watch.Dirs).
		Str("snapshot_backend", a.cfg.Snapshot.Backend).
		Dur("interval", a.cfg.Interval).
		Bool("policies", pe != nil).
		Msg("Installer configured")

	return inst, nil
}
