package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/guidoenr/beatchaos/internal/beat"
	"github.com/guidoenr/beatchaos/internal/chaos"
	"github.com/guidoenr/beatchaos/internal/rr"
)

// Record is one raw single-lead recording with its beat annotations.
type Record struct {
	ID           string
	Samples      []float64
	SamplingRate float64
	Annotations  []beat.Annotation
}

// Loader supplies records by id. Implementations own all I/O.
type Loader interface {
	Load(ctx context.Context, id string) (*Record, error)
}

// Row is the fused feature record of one beat. Only the blocks relevant to
// the producing track are populated.
type Row struct {
	RecordID string
	RIndex   int
	Symbol   string
	Label    int
	Chaos    chaos.Features
	RR       rr.Features
	Window   []float64
}

// Columns returns the header matching Row.Values for track.
func Columns(track Track, withID bool, windowSize int) []string {
	var cols []string
	switch track {
	case TrackFused:
		cols = append(cols, chaos.Names()...)
		cols = append(cols, rrNames...)
	case TrackRR:
		cols = append(cols, rrNames...)
	case TrackWindows:
		for i := 0; i < windowSize; i++ {
			cols = append(cols, "S"+strconv.Itoa(i))
		}
	}
	cols = append(cols, "Label")
	if withID {
		cols = append(cols, "RecordID")
	}
	return cols
}

var rrNames = []string{"Pre_RR", "Post_RR", "Local_RR", "Amplitude"}

// Values flattens the numeric part of the row for track, label last.
func (r Row) Values(track Track) []float64 {
	var out []float64
	switch track {
	case TrackFused:
		out = append(out, r.Chaos.Values()...)
		out = append(out, r.rrValues()...)
	case TrackRR:
		out = append(out, r.rrValues()...)
	case TrackWindows:
		out = append(out, r.Window...)
	}
	return append(out, float64(r.Label))
}

// Strings formats the row for tabular output, appending the record id when asked.
func (r Row) Strings(track Track, withID bool) []string {
	vals := r.Values(track)
	out := make([]string, 0, len(vals)+1)
	for _, v := range vals {
		out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if withID {
		out = append(out, r.RecordID)
	}
	return out
}

func (r Row) rrValues() []float64 {
	return []float64{r.RR.PreRR, r.RR.PostRR, r.RR.LocalRR, r.RR.Amplitude}
}

// Track selects which feature blocks and filters a pipeline applies.
type Track string

const (
	// TrackFused emits chaos and RR features for windowed beats inside the margin.
	TrackFused Track = "fused"
	// TrackRR emits RR features for every retained beat inside the margin.
	TrackRR Track = "rr"
	// TrackWindows emits the raw denoised window of every windowed beat.
	TrackWindows Track = "windows"
)

// ParseTrack validates a track name.
func ParseTrack(s string) (Track, error) {
	switch t := Track(s); t {
	case TrackFused, TrackRR, TrackWindows:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown track %q", ErrInvalidConfig, s)
}
