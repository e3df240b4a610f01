// Package main implements the beatchaos CLI: per-beat ECG feature extraction
// over a batch of records.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guidoenr/beatchaos/internal/app"
	"github.com/guidoenr/beatchaos/internal/config"
	"github.com/guidoenr/beatchaos/internal/logging"
	"github.com/guidoenr/beatchaos/internal/pipeline"
	"github.com/guidoenr/beatchaos/internal/synth"
)

var version = "dev"

var (
	configPath  string
	track       string
	workers     int
	includeID   bool
	records     int
	seconds     float64
	seed        int64
	addr        string
	outputPath  string
	profilePath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beatchaos",
	Short: "Per-beat ECG feature extraction",
	Long: `beatchaos denoises single-lead ECG records, segments annotated beats and
emits one feature row per usable beat: chaos descriptors of the beat window,
RR interval statistics and a binary normal/anomalous label.

Configuration is read from --config (YAML) and BEATCHAOS_ environment
variables, e.g. BEATCHAOS_PIPELINE__SEGMENT__WINDOW_SIZE=720.`,
	Version:      version,
	SilenceUsage: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract features from a batch of synthetic records",
	Long: `Generate a batch of synthetic annotated records and write their feature
rows as CSV.

Examples:
  # Fused chaos and RR features to stdout
  beatchaos extract --records 4 --seconds 120

  # RR-only track with record ids, written to a file
  beatchaos extract --track rr --include-record-id -o rr.csv

  # Watch progress on http://localhost:8080/ws while extracting
  beatchaos extract --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Extract a batch and keep serving status and metrics",
	Long: `Run one extraction batch and keep /api/status, /ws and /metrics available
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&track, "track", "", "feature track (fused|rr|windows)")
	pf.IntVar(&workers, "workers", 0, "records processed concurrently (default: config)")
	pf.BoolVar(&includeID, "include-record-id", false, "append the record id column")
	pf.IntVar(&records, "records", 0, "synthetic records to generate (default: config)")
	pf.Float64Var(&seconds, "seconds", 0, "duration of each synthetic record (default: config)")
	pf.Int64Var(&seed, "seed", 0, "synthetic record seed (default: config)")
	pf.StringVar(&addr, "addr", "", "status server address, e.g. :8080")
	pf.StringVarP(&outputPath, "output", "o", "-", "CSV output file, - for stdout")
	pf.StringVar(&profilePath, "profile", "", "append per-record timings to this CSV file")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("track") {
		t, err := pipeline.ParseTrack(track)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline.Track = t
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = workers
	}
	if flags.Changed("include-record-id") {
		cfg.Pipeline.IncludeRecordID = includeID
	}
	if flags.Changed("records") {
		cfg.Synth.Records = records
	}
	if flags.Changed("seconds") {
		cfg.Synth.Seconds = seconds
	}
	if flags.Changed("seed") {
		cfg.Synth.Seed = seed
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cmd *cobra.Command, defaultAddr string) (*app.App, *synth.Loader, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	loader := synth.NewLoader(synth.Demo(cfg.Synth.Records, cfg.Synth.Seconds, cfg.Synth.SamplingRate, cfg.Synth.Seed)...)
	a, err := app.New(*cfg, app.Options{Loader: loader, ProfilePath: profilePath, Log: log})
	if err != nil {
		return nil, nil, nil, err
	}
	return a, loader, log, nil
}

func openOutput() (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output %s: %w", outputPath, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func runExtract(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, loader, log, err := setup(cmd, "")
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if a.Addr() != "" {
		serveCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := a.Serve(serveCtx); err != nil {
				log.Error("status server", zap.Error(err))
			}
		}()
	}

	out, err := openOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = a.Extract(ctx, loader.IDs(), out)
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, loader, log, err := setup(cmd, ":8080")
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	errc := make(chan error, 1)
	go func() { errc <- a.Serve(ctx) }()

	out, err := openOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := a.Extract(ctx, loader.IDs(), out); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("batch done, serving until interrupted")
	return <-errc
}
