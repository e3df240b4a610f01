// Package config provides configuration loading for beatchaos.
package config

import (
	"fmt"
	"runtime"

	"github.com/guidoenr/beatchaos/internal/beat"
	"github.com/guidoenr/beatchaos/internal/chaos"
	"github.com/guidoenr/beatchaos/internal/denoise"
	"github.com/guidoenr/beatchaos/internal/logging"
	"github.com/guidoenr/beatchaos/internal/pipeline"
	"github.com/guidoenr/beatchaos/internal/rr"
)

// Config is the root configuration.
type Config struct {
	Pipeline pipeline.Config `koanf:"pipeline"`
	Log      logging.Config  `koanf:"log"`
	Server   ServerConfig    `koanf:"server"`
	Synth    SynthConfig     `koanf:"synth"`
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// SynthConfig describes the synthetic record set used when no waveform
// source is available.
type SynthConfig struct {
	Records      int     `koanf:"records"`
	Seconds      float64 `koanf:"seconds"`
	SamplingRate float64 `koanf:"sampling_rate"`
	Seed         int64   `koanf:"seed"`
}

// Defaults returns the canonical parameter set.
func Defaults() Config {
	return Config{
		Pipeline: pipeline.Config{
			Denoise: denoise.Config{LowCutoff: 0.5, HighCutoff: 50},
			Segment: beat.Config{WindowSize: 2000, ArtifactThreshold: 5.0},
			RR:      rr.Config{Margin: 5, Lookback: 10},
			Chaos: chaos.Config{
				Lyapunov: chaos.LyapunovConfig{Dim: 3, Lag: 1, TrajectoryLen: 20, MaxTsepFactor: 0.25},
				Higuchi:  chaos.HiguchiConfig{KMax: 10},
				SampEn:   chaos.SampEnConfig{Order: 2, RFactor: 0.2},
				RQA:      chaos.RQAConfig{Dim: 3, Lag: 2, ThresholdFactor: 0.1, MinLine: 2},
			},
			Track:   pipeline.TrackFused,
			Workers: runtime.NumCPU(),
		},
		Log: logging.Config{
			Level:  "info",
			Format: logging.FormatAuto,
		},
		Synth: SynthConfig{
			Records:      8,
			Seconds:      60,
			SamplingRate: 360,
			Seed:         1,
		},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Synth.Records < 0 {
		return fmt.Errorf("synth records must be >= 0, got %d", c.Synth.Records)
	}
	if c.Synth.Seconds <= 0 || c.Synth.SamplingRate <= 0 {
		return fmt.Errorf("synth seconds and sampling_rate must be > 0")
	}
	return nil
}
