package app

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/guidoenr/beatchaos/internal/pipeline"
)

// profiler appends one timing line per record to a CSV file. A nil profiler
// is disabled.
type profiler struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

func newProfiler(path string) (*profiler, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	p := &profiler{file: f, w: csv.NewWriter(f)}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		p.writeLine("timestamp", "record", "status", "rows", "elapsed_ms")
	}
	return p, nil
}

func (p *profiler) record(res pipeline.Result) {
	if p == nil {
		return
	}
	status := "ok"
	if !res.OK() {
		status = string(res.Failure)
	}
	p.writeLine(
		time.Now().Format(time.RFC3339Nano),
		res.RecordID,
		status,
		strconv.Itoa(len(res.Rows)),
		strconv.FormatFloat(res.Elapsed.Seconds()*1000, 'f', 3, 64),
	)
}

func (p *profiler) writeLine(fields ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.w.Write(fields)
	p.w.Flush()
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.w.Flush()
	return p.file.Close()
}
