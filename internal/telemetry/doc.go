// Package telemetry provides OpenTelemetry tracing and metrics for designgov.
//
// Telemetry is disabled by default. When enabled it exports spans and
// metrics over OTLP gRPC. Exporter failures never stop a governance run:
// the instance marks itself degraded and falls back to the global no-op
// providers.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("github.com/fyrsmithlabs/designgov/internal/orchestrator")
//
// Tests use NewTestTelemetry, which records spans in memory and collects
// metrics through a manual reader.
package telemetry
