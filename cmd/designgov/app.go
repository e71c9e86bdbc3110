package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/config"
	"github.com/fyrsmithlabs/designgov/internal/grants"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/telemetry"
)

// app holds the shared dependencies of the long-running commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     *audit.Store
}

type appOptions struct {
	// withSinks attaches the JSONL and NATS sinks; read-only commands
	// replay the JSONL file instead.
	withSinks bool
	// quiet keeps stdout free for a stdio transport.
	quiet bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg, opts.quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	if opts.withSinks {
		a.store, err = a.sinkedStore(ctx)
	} else {
		a.store, err = a.replayedStore(ctx)
	}
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func initLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	lc, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if quiet {
		if !lc.Output.OTEL {
			return logging.NewNop(), nil
		}
		lc.Output.Stdout = false
	}
	return logging.NewLogger(lc, global.GetLoggerProvider())
}

func (a *app) sinkedStore(ctx context.Context) (*audit.Store, error) {
	store := audit.NewStore(a.logger)
	if path := a.cfg.Audit.JSONLPath; path != "" {
		sink, err := audit.NewJSONLSink(path)
		if err != nil {
			return nil, err
		}
		store.AddSink(sink)
		a.logger.Info(ctx, "audit jsonl sink enabled", zap.String("path", path))
	}
	if url := a.cfg.Audit.NATSURL; url != "" {
		sink, err := audit.DialNATSSink(url, a.cfg.Audit.NATSToken.Value(), a.cfg.Audit.NATSSubjectPrefix)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store.AddSink(sink)
		a.logger.Info(ctx, "audit nats sink enabled", zap.String("prefix", a.cfg.Audit.NATSSubjectPrefix))
	}
	return store, nil
}

func (a *app) replayedStore(ctx context.Context) (*audit.Store, error) {
	store := audit.NewStore(a.logger)
	if path := a.cfg.Audit.JSONLPath; path != "" {
		entries, err := audit.ReadJSONL(path)
		if err != nil {
			return nil, err
		}
		store.Restore(entries)
		a.logger.Info(ctx, "audit log replayed", zap.String("path", path), zap.Int("entries", len(entries)))
	}
	return store, nil
}

// loadGrants loads the grants file named by override or the config.
func (a *app) loadGrants(override string) (*grants.Registry, error) {
	path := override
	if path == "" {
		path = a.cfg.GrantsFile
	}
	if path == "" {
		return nil, errors.New("no grants file configured (set grants_file or pass --grants)")
	}
	return grants.Load(path,
		grants.WithLogger(a.logger),
		grants.WithDefaults(grants.Defaults{
			MaxElementsPerOperation: a.cfg.Governance.MaxElementsPerOperation,
			MaxOperationsPerSession: a.cfg.Governance.MaxOperationsPerSession,
		}))
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
