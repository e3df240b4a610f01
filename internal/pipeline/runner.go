package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner feeds record ids through a fixed-size worker pool.
type Runner struct {
	pipeline *Pipeline
	loader   Loader
	workers  int
	log      *zap.Logger
}

// NewRunner uses the pipeline's configured worker count.
func NewRunner(p *Pipeline, loader Loader, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		pipeline: p,
		loader:   loader,
		workers:  p.cfg.Workers,
		log:      log,
	}
}

// Run processes ids concurrently. onResult, if set, is called once per
// finished record, never concurrently. Cancelling ctx stops scheduling new
// records; records already started run to completion. The returned slice
// follows the order of ids and omits records that were never scheduled, in
// which case the context error is returned alongside.
func (r *Runner) Run(ctx context.Context, ids []string, onResult func(Result)) ([]Result, error) {
	results := make([]Result, len(ids))
	scheduled := make([]bool, len(ids))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(r.workers)

	start := time.Now()
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		scheduled[i] = true
		g.Go(func() error {
			res := r.processID(ctx, id)
			results[i] = res
			if onResult != nil {
				mu.Lock()
				onResult(res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Result, 0, len(ids))
	rows, failed := 0, 0
	for i, ok := range scheduled {
		if !ok {
			continue
		}
		out = append(out, results[i])
		rows += len(results[i].Rows)
		if !results[i].OK() {
			failed++
		}
	}

	r.log.Info("batch finished",
		zap.Int("records", len(out)),
		zap.Int("failed", failed),
		zap.Int("rows", rows),
		zap.Duration("elapsed", time.Since(start)),
	)

	if len(out) < len(ids) {
		return out, fmt.Errorf("batch stopped after %d of %d records: %w", len(out), len(ids), ctx.Err())
	}
	return out, nil
}

func (r *Runner) processID(ctx context.Context, id string) Result {
	rec, err := r.loader.Load(ctx, id)
	if err != nil {
		res := Result{RecordID: id, Failure: FailureLoad, Err: err}
		r.pipeline.metrics.observe(res, 0)
		r.pipeline.logResult(res)
		return res
	}
	if rec != nil && rec.ID == "" {
		rec.ID = id
	}
	res := r.pipeline.Process(rec)
	if res.RecordID == "" {
		res.RecordID = id
	}
	return res
}

// Flatten concatenates the rows of all results in order.
func Flatten(results []Result) []Row {
	n := 0
	for _, res := range results {
		n += len(res.Rows)
	}
	out := make([]Row, 0, n)
	for _, res := range results {
		out = append(out, res.Rows...)
	}
	return out
}
