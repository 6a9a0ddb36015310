// Package telemetry wires the observability stack of the installer.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus):
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.With().Str("component", "installer").Logger()
//	logger.Info().Str("cycle_id", id).Msg("Cycle started")
//
// Components receive a zerolog.Logger and tag it with their component name.
//
// # Tracing
//
// Each task cycle gets a "cycle.run" span and each executed task a
// "task.execute" child span carrying its kind and sort key. Exporters: otlp
// (gRPC), stdout and none.
//
// # Metrics
//
// Counters and gauges cover cycles, tasks by kind and outcome, start retries,
// registry size, transformations, admissions and snapshot saves. All Metrics
// methods are safe on a disabled or nil collector.
package telemetry
