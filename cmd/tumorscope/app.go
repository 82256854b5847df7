package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/tumorscope/audit"
	"github.com/YuminosukeSato/tumorscope/config"
	"github.com/YuminosukeSato/tumorscope/explain"
	"github.com/YuminosukeSato/tumorscope/inference"
	"github.com/YuminosukeSato/tumorscope/pipeline"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
	"github.com/YuminosukeSato/tumorscope/registry"
)

// app carries the state shared by all subcommands after PersistentPreRunE.
type app struct {
	cfg       *config.Config
	logger    log.Logger
	logCloser io.Closer
	promReg   *prometheus.Registry
	metrics   *telemetry.Metrics
}

func (a *app) init(opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath, opts.envFiles...)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, closer, err := log.Setup(cfg.LogOptions())
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	a.promReg = prometheus.NewRegistry()
	a.metrics = telemetry.NewWithRegistry(a.promReg)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func (a *app) registry() (*registry.Registry, error) {
	s, err := a.cfg.FeatureSchema()
	if err != nil {
		return nil, err
	}
	entries := make([]registry.Entry, 0, len(a.cfg.Models))
	for _, m := range a.cfg.Models {
		entries = append(entries, registry.Entry{ID: m.ID, Path: a.cfg.ModelPath(m)})
	}
	return registry.New(registry.Options{
		Schema:      s,
		Models:      entries,
		LoadTimeout: a.cfg.Registry.LoadTimeout,
		CacheSize:   a.cfg.Registry.CacheSize,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
}

// openStore connects to the configured audit store and creates its schema.
func (a *app) openStore(ctx context.Context) (audit.Store, error) {
	store, err := audit.Open(ctx, a.cfg.Audit.DSN, audit.Options{
		WriteTimeout: a.cfg.Audit.WriteTimeout,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// pipeline builds a pipeline over reg. A nil store runs without auditing.
func (a *app) pipeline(reg *registry.Registry, store audit.Store) *pipeline.Pipeline {
	s := reg.Schema()
	return pipeline.New(reg,
		inference.New(s,
			inference.WithExtraKeyPolicy(a.cfg.ExtraKeyPolicy()),
			inference.WithLogger(a.logger),
			inference.WithMetrics(a.metrics),
		),
		explain.New(s,
			explain.WithTolerance(a.cfg.Explain.Tolerance),
			explain.WithLogger(a.logger),
			explain.WithMetrics(a.metrics),
		),
		store,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
	)
}
