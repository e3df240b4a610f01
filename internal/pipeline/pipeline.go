// Package pipeline fuses denoising, beat segmentation, RR statistics and
// chaos features into one feature row per usable beat, and runs records
// through a bounded worker pool.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guidoenr/beatchaos/internal/beat"
	"github.com/guidoenr/beatchaos/internal/chaos"
	"github.com/guidoenr/beatchaos/internal/denoise"
	"github.com/guidoenr/beatchaos/internal/rr"
)

var (
	ErrInvalidConfig = errors.New("pipeline: invalid config")
	ErrNilRecord     = errors.New("pipeline: nil record")
)

// Config carries every tunable of the feature extraction. Nothing is
// defaulted here; see internal/config for the canonical values.
type Config struct {
	Denoise         denoise.Config `koanf:"denoise"`
	Segment         beat.Config    `koanf:"segment"`
	RR              rr.Config      `koanf:"rr"`
	Chaos           chaos.Config   `koanf:"chaos"`
	Track           Track          `koanf:"track"`
	IncludeRecordID bool           `koanf:"include_record_id"`
	Workers         int            `koanf:"workers"`
}

// Validate checks every component config.
func (c Config) Validate() error {
	if _, err := ParseTrack(string(c.Track)); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be > 0 (got %d)", ErrInvalidConfig, c.Workers)
	}
	for _, check := range []func() error{
		c.Denoise.Validate,
		c.Segment.Validate,
		c.RR.Validate,
		c.Chaos.Validate,
	} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Columns returns the output header for this configuration.
func (c Config) Columns() []string {
	return Columns(c.Track, c.IncludeRecordID, c.Segment.WindowSize)
}

// FailureKind tags why a record produced no rows.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureLoad     FailureKind = "load"
	FailureInvalid  FailureKind = "invalid_record"
	FailureDenoise  FailureKind = "denoise"
	FailureSegment  FailureKind = "segment"
	FailureFeatures FailureKind = "featurize"
	FailurePanic    FailureKind = "panic"
)

// Result is the outcome of one record. A failed record has no rows.
type Result struct {
	RecordID string
	Rows     []Row
	Rejected map[beat.Reason]int
	Failure  FailureKind
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the record was processed without failure.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

// Pipeline turns records into feature rows. It holds no per-record state and
// is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	log     *zap.Logger
	metrics *Metrics
}

// New validates cfg. log and metrics may be nil.
func New(cfg Config, log *zap.Logger, metrics *Metrics) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, log: log, metrics: metrics}, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process runs one record end to end. It never panics: any failure yields
// an empty row set and a failure tag, leaving other records unaffected.
func (p *Pipeline) Process(rec *Record) (res Result) {
	start := time.Now()
	res = Result{Rejected: make(map[beat.Reason]int)}
	if rec != nil {
		res.RecordID = rec.ID
	}

	defer func() {
		if r := recover(); r != nil {
			res = p.fail(res, FailurePanic, fmt.Errorf("panic: %v", r))
		}
		res.Elapsed = time.Since(start)
		p.metrics.observe(res, res.Elapsed)
		p.logResult(res)
	}()

	if rec == nil {
		return p.fail(res, FailureInvalid, ErrNilRecord)
	}

	denoised, err := denoise.Denoise(rec.Samples, rec.SamplingRate, p.cfg.Denoise)
	if err != nil {
		return p.fail(res, FailureDenoise, err)
	}
	if ratio, err := denoise.OutOfBandRatio(rec.Samples, rec.SamplingRate, p.cfg.Denoise); err == nil {
		p.metrics.observeOutOfBand(ratio)
		p.log.Debug("record spectrum", zap.String("record", rec.ID), zap.Float64("out_of_band", ratio))
	}

	verdicts, err := beat.Classify(denoised, rec.Annotations, p.cfg.Segment)
	if err != nil {
		return p.fail(res, FailureSegment, err)
	}

	rows, err := p.fuse(rec.ID, denoised, verdicts, res.Rejected)
	if err != nil {
		return p.fail(res, FailureFeatures, err)
	}
	res.Rows = rows
	return res
}

func (p *Pipeline) fuse(id string, denoised []float64, verdicts []beat.Verdict, rejected map[beat.Reason]int) ([]Row, error) {
	rIndices := beat.RIndices(verdicts)
	var rows []Row

	for _, v := range verdicts {
		if !v.Retained() {
			rejected[beat.RejectExcluded]++
			continue
		}
		pos := v.Beat.Position
		needsWindow := p.cfg.Track != TrackRR
		needsMargin := p.cfg.Track != TrackWindows

		if needsMargin && !rr.Usable(len(rIndices), pos, p.cfg.RR) {
			rejected[beat.RejectMargin]++
			continue
		}
		if needsWindow && v.Reason != beat.Accepted {
			rejected[v.Reason]++
			continue
		}

		row := Row{
			RecordID: id,
			RIndex:   v.Beat.RIndex,
			Symbol:   v.Beat.Symbol,
			Label:    v.Beat.Label,
		}
		if needsMargin {
			feats, err := rr.Compute(rIndices, denoised, pos, p.cfg.RR)
			if err != nil {
				return nil, fmt.Errorf("beat at sample %d: %w", v.Beat.RIndex, err)
			}
			row.RR = feats
		}
		switch p.cfg.Track {
		case TrackFused:
			row.Chaos = chaos.Extract(v.Window, p.cfg.Chaos)
		case TrackWindows:
			row.Window = append([]float64(nil), v.Window...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *Pipeline) fail(res Result, kind FailureKind, err error) Result {
	res.Rows = nil
	clear(res.Rejected)
	res.Failure = kind
	res.Err = err
	return res
}

func (p *Pipeline) logResult(res Result) {
	if !res.OK() {
		p.log.Warn("record skipped",
			zap.String("record", res.RecordID),
			zap.String("failure", string(res.Failure)),
			zap.Error(res.Err),
		)
		return
	}
	p.log.Debug("record processed",
		zap.String("record", res.RecordID),
		zap.Int("rows", len(res.Rows)),
		zap.Any("rejected", res.Rejected),
		zap.Duration("elapsed", res.Elapsed),
	)
}
