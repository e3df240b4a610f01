package pipeline_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidoenr/beatchaos/internal/pipeline"
	"github.com/guidoenr/beatchaos/internal/synth"
)

func newRunner(t *testing.T, cfg pipeline.Config, metrics *pipeline.Metrics, records ...*pipeline.Record) *pipeline.Runner {
	t.Helper()
	p, err := pipeline.New(cfg, zap.NewNop(), metrics)
	require.NoError(t, err)
	return pipeline.NewRunner(p, synth.NewLoader(records...), zap.NewNop())
}

func TestRunPreservesOrder(t *testing.T) {
	records := synth.Demo(6, 8, 360, 11)
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	// reverse so completion order cannot match by accident
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	cfg := testConfig(pipeline.TrackRR)
	cfg.Workers = 3
	results, err := newRunner(t, cfg, nil, records...).Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, results, len(ids))
	for i, res := range results {
		assert.Equal(t, ids[i], res.RecordID)
		assert.True(t, res.OK(), "record %s: %v", res.RecordID, res.Err)
	}
}

func TestRunMatchesSequentialProcessing(t *testing.T) {
	records := synth.Demo(4, 10, 360, 5)
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	cfg := testConfig(pipeline.TrackFused)
	cfg.Workers = 4
	results, err := newRunner(t, cfg, nil, records...).Run(context.Background(), ids, nil)
	require.NoError(t, err)

	p := newPipeline(t, cfg)
	var want []pipeline.Row
	for _, rec := range records {
		want = append(want, p.Process(rec).Rows...)
	}
	assert.Equal(t, want, pipeline.Flatten(results))
}

func TestRunIsolatesFailures(t *testing.T) {
	good := regularRecord("good", 11, 3000)
	bad := regularRecord("bad", 11, 3000)
	bad.SamplingRate = -1

	var seen []string
	results, err := newRunner(t, testConfig(pipeline.TrackFused), nil, good, bad).
		Run(context.Background(), []string{"good", "missing", "bad"}, func(res pipeline.Result) {
			seen = append(seen, res.RecordID)
		})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Len(t, results[0].Rows, 1)
	assert.Equal(t, pipeline.FailureLoad, results[1].Failure)
	assert.ErrorIs(t, results[1].Err, synth.ErrUnknownRecord)
	assert.Equal(t, "missing", results[1].RecordID)
	assert.Equal(t, pipeline.FailureDenoise, results[2].Failure)
	assert.Empty(t, results[2].Rows)

	assert.ElementsMatch(t, []string{"good", "missing", "bad"}, seen)
	assert.Len(t, pipeline.Flatten(results), 1)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newRunner(t, testConfig(pipeline.TrackRR), nil, regularRecord("a", 11, 3000)).
		Run(ctx, []string{"a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunEmpty(t *testing.T) {
	results, err := newRunner(t, testConfig(pipeline.TrackRR), nil).Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	good := regularRecord("good", 11, 3000)
	_, err := newRunner(t, testConfig(pipeline.TrackFused), metrics, good).
		Run(context.Background(), []string{"good", "missing"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Records.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Records.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Rows))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.Beats.WithLabelValues("margin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Beats.WithLabelValues("emitted")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Records))
}
