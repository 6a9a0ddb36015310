package commands

import (
	"context"
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/config"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/datastore"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/policy"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/registry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/stores"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/transform"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	data     *datastore.FileDataStore
	store    stores.SnapshotStore
	registry *registry.PersistentResourceList
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// openApp loads the configuration, opens the snapshot backend and restores
// the registry.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger

	data, err := datastore.New(cfg.ContentDir())
	if err != nil {
		return nil, err
	}

	store, err := stores.New(ctx, cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot backend: %w", err)
	}

	return &app{
		cfg:      cfg,
		tel:      tel,
		logger:   logger,
		data:     data,
		store:    store,
		registry: registry.New(ctx, store, data, logger),
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close snapshot backend")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// transformer builds the chain of configured Starlark scripts followed by
// the extension mapping.
func (a *app) transformer() (transform.Transformer, error) {
	var chain []transform.Transformer
	for _, s := range a.cfg.Transform.Scripts {
		t, err := transform.LoadStarlarkTransformer(s.Path, s.Timeout)
		if err != nil {
			return nil, err
		}
		if err := t.Check(); err != nil {
			return nil, err
		}
		chain = append(chain, t)
	}

	extensions := maps.Clone(transform.DefaultExtensions)
	maps.Copy(extensions, a.cfg.Transform.Extensions)
	chain = append(chain, transform.NewExtensionTransformer(extensions))

	return transform.NewChain(a.logger, chain...), nil
}

// policies returns the admission engine, or nil when admission is disabled.
func (a *app) policies(ctx context.Context) (*policy.Engine, error) {
	if !a.cfg.Policy.Enabled {
		return nil, nil
	}
	return newPolicyEngine(ctx, a.cfg, a.logger)
}

func newPolicyEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*policy.Engine, error) {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.Policy.Disabled {
		if err := engine.DisablePolicy(name); err != nil {
			return nil, err
		}
	}
	return engine, nil
}
