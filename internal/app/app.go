// Package app ties configuration, the feature pipeline, the status server and
// tabular output together.
package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/guidoenr/beatchaos/internal/config"
	"github.com/guidoenr/beatchaos/internal/pipeline"
	"github.com/guidoenr/beatchaos/internal/web"
)

// Options carries runtime inputs that do not belong in the config file.
type Options struct {
	Loader      pipeline.Loader
	ProfilePath string
	Log         *zap.Logger
}

// App runs batches of records through the pipeline.
type App struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	pipeline *pipeline.Pipeline
	runner   *pipeline.Runner
	server   *web.Server
	profiler *profiler
}

// Summary counts the outcome of one batch.
type Summary struct {
	Records int
	Failed  int
	Rows    int
	Elapsed time.Duration
}

// New validates cfg and builds every component.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("app: no record loader")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := pipeline.NewMetrics(registry)

	p, err := pipeline.New(cfg.Pipeline, log.Named("pipeline"), metrics)
	if err != nil {
		return nil, err
	}

	prof, err := newProfiler(opts.ProfilePath)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		registry: registry,
		pipeline: p,
		runner:   pipeline.NewRunner(p, opts.Loader, log.Named("runner")),
		server:   web.NewServer(registry, log),
		profiler: prof,
	}, nil
}

// Registry exposes the metrics registry shared by the pipeline and server.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Addr is the configured status server address, empty when disabled.
func (a *App) Addr() string {
	return a.cfg.Server.Addr
}

// Server returns the status server. It is only listening while Serve runs.
func (a *App) Server() *web.Server {
	return a.server
}

// Serve blocks serving status, events and metrics on the configured address
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Server.Addr == "" {
		return fmt.Errorf("app: server address not configured")
	}
	return a.server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Extract processes ids and writes one CSV header followed by every row, in
// id order, to out. Failed records are skipped; a cancelled ctx still writes
// the rows of records that completed.
func (a *App) Extract(ctx context.Context, ids []string, out io.Writer) (Summary, error) {
	start := time.Now()
	a.server.Begin(len(ids), a.cfg.Pipeline.Track)
	defer a.server.Finish()

	results, runErr := a.runner.Run(ctx, ids, func(res pipeline.Result) {
		a.server.Publish(res)
		a.profiler.record(res)
	})

	sum := Summary{Records: len(results)}
	for _, res := range results {
		sum.Rows += len(res.Rows)
		if !res.OK() {
			sum.Failed++
		}
	}

	if err := a.writeCSV(out, pipeline.Flatten(results)); err != nil {
		return sum, err
	}
	sum.Elapsed = time.Since(start)
	a.log.Info("extraction finished",
		zap.Int("records", sum.Records),
		zap.Int("failed", sum.Failed),
		zap.Int("rows", sum.Rows),
		zap.String("track", string(a.cfg.Pipeline.Track)),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, runErr
}

func (a *App) writeCSV(out io.Writer, rows []pipeline.Row) error {
	cfg := a.pipeline.Config()
	w := csv.NewWriter(out)
	if err := w.Write(cfg.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.Strings(cfg.Track, cfg.IncludeRecordID)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close releases held resources.
func (a *App) Close() error {
	return a.profiler.Close()
}
