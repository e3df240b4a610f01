package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/beatchaos/internal/pipeline"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Pipeline.Denoise.LowCutoff)
	assert.Equal(t, 50.0, cfg.Pipeline.Denoise.HighCutoff)
	assert.Equal(t, 2000, cfg.Pipeline.Segment.WindowSize)
	assert.Equal(t, 5.0, cfg.Pipeline.Segment.ArtifactThreshold)
	assert.Equal(t, 5, cfg.Pipeline.RR.Margin)
	assert.Equal(t, 10, cfg.Pipeline.RR.Lookback)
	assert.Equal(t, 2, cfg.Pipeline.Chaos.RQA.Lag)
	assert.Equal(t, 0.1, cfg.Pipeline.Chaos.RQA.ThresholdFactor)
	assert.Equal(t, 20, cfg.Pipeline.Chaos.Lyapunov.TrajectoryLen)
	assert.Equal(t, pipeline.TrackFused, cfg.Pipeline.Track)
	assert.Equal(t, runtime.NumCPU(), cfg.Pipeline.Workers)
	assert.False(t, cfg.Pipeline.IncludeRecordID)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  track: rr
  include_record_id: true
  workers: 3
  segment:
    window_size: 360
  chaos:
    rqa:
      min_line: 3
log:
  level: debug
server:
  addr: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pipeline.TrackRR, cfg.Pipeline.Track)
	assert.True(t, cfg.Pipeline.IncludeRecordID)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, 360, cfg.Pipeline.Segment.WindowSize)
	assert.Equal(t, 3, cfg.Pipeline.Chaos.RQA.MinLine)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	// untouched keys keep their defaults
	assert.Equal(t, 5.0, cfg.Pipeline.Segment.ArtifactThreshold)
	assert.Equal(t, 2, cfg.Pipeline.Chaos.RQA.Lag)
	assert.Equal(t, 0.5, cfg.Pipeline.Denoise.LowCutoff)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  workers: 3\n"), 0o600))

	t.Setenv("BEATCHAOS_PIPELINE__WORKERS", "7")
	t.Setenv("BEATCHAOS_PIPELINE__SEGMENT__ARTIFACT_THRESHOLD", "4.5")
	t.Setenv("BEATCHAOS_LOG__FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, 4.5, cfg.Pipeline.Segment.ArtifactThreshold)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("BEATCHAOS_PIPELINE__SEGMENT__WINDOW_SIZE", "201")
	_, err := Load("")
	assert.ErrorIs(t, err, pipeline.ErrInvalidConfig)
}

func TestLoadRejectsUnknownTrack(t *testing.T) {
	t.Setenv("BEATCHAOS_PIPELINE__TRACK", "spectral")
	_, err := Load("")
	assert.ErrorIs(t, err, pipeline.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "pipeline.segment.window_size", envKey("BEATCHAOS_PIPELINE__SEGMENT__WINDOW_SIZE"))
	assert.Equal(t, "log.level", envKey("BEATCHAOS_LOG__LEVEL"))
}
