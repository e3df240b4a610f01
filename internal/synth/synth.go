// Package synth generates ECG-like records with known beat annotations so the
// pipeline can run without a waveform database.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/guidoenr/beatchaos/internal/beat"
	"github.com/guidoenr/beatchaos/internal/pipeline"
)

var ErrUnknownRecord = errors.New("synth: unknown record")

// Spec describes one synthetic record. Symbols defaults to "N" for every
// peak; a shorter slice is padded with "N".
type Spec struct {
	ID           string
	Length       int
	SamplingRate float64
	Peaks        []int
	Symbols      []string
	Amplitude    float64
	Noise        float64
	Wander       float64
	Seed         int64
	Bursts       []Burst
}

// Burst overwrites Len samples from Start with Level, like a saturated lead
// or electrode motion.
type Burst struct {
	Start int
	Len   int
	Level float64
}

type wave struct {
	offset float64 // seconds relative to R
	width  float64 // seconds
	gain   float64 // relative to R amplitude
}

var normalBeat = []wave{
	{offset: -0.20, width: 0.025, gain: 0.10},
	{offset: -0.03, width: 0.010, gain: -0.12},
	{offset: 0, width: 0.010, gain: 1},
	{offset: 0.03, width: 0.012, gain: -0.25},
	{offset: 0.25, width: 0.050, gain: 0.30},
}

// ectopic beats have no P wave, a wide QRS and a discordant T wave
var ectopicBeat = []wave{
	{offset: -0.04, width: 0.025, gain: -0.20},
	{offset: 0, width: 0.030, gain: 1.3},
	{offset: 0.06, width: 0.030, gain: -0.40},
	{offset: 0.28, width: 0.070, gain: -0.35},
}

// Generate renders the record described by s.
func Generate(s Spec) *pipeline.Record {
	samples := make([]float64, s.Length)
	rng := rand.New(rand.NewSource(s.Seed))
	amp := s.Amplitude
	if amp == 0 {
		amp = 1
	}

	for i := range samples {
		t := float64(i) / s.SamplingRate
		v := s.Wander * math.Sin(2*math.Pi*0.3*t)
		if s.Noise > 0 {
			v += s.Noise * rng.NormFloat64()
		}
		samples[i] = v
	}

	annotations := make([]beat.Annotation, len(s.Peaks))
	for k, peak := range s.Peaks {
		symbol := "N"
		if k < len(s.Symbols) && s.Symbols[k] != "" {
			symbol = s.Symbols[k]
		}
		annotations[k] = beat.Annotation{Sample: peak, Symbol: symbol}
		if beat.Excluded(symbol) {
			continue
		}
		shape := normalBeat
		if beat.Label(symbol) == beat.LabelAnomalous {
			shape = ectopicBeat
		}
		addBeat(samples, peak, s.SamplingRate, amp, shape)
	}

	for _, b := range s.Bursts {
		for i := max(b.Start, 0); i < min(b.Start+b.Len, len(samples)); i++ {
			samples[i] = b.Level
		}
	}

	return &pipeline.Record{
		ID:           s.ID,
		Samples:      samples,
		SamplingRate: s.SamplingRate,
		Annotations:  annotations,
	}
}

func addBeat(samples []float64, peak int, fs, amp float64, shape []wave) {
	// covers every component out to four widths
	reach := int(0.6 * fs)
	lo := max(peak-reach, 0)
	hi := min(peak+reach, len(samples)-1)
	for i := lo; i <= hi; i++ {
		t := float64(i-peak) / fs
		for _, w := range shape {
			z := (t - w.offset) / w.width
			samples[i] += amp * w.gain * math.Exp(-0.5*z*z)
		}
	}
}

// RegularPeaks returns count peak positions spaced evenly from first.
func RegularPeaks(first, spacing, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = first + i*spacing
	}
	return out
}

// Demo builds n records of the given duration with varying heart rate,
// occasional ectopic beats, rhythm markers and saturation bursts.
func Demo(n int, seconds, fs float64, seed int64) []*pipeline.Record {
	rng := rand.New(rand.NewSource(seed))
	length := int(seconds * fs)
	records := make([]*pipeline.Record, 0, n)
	for r := 0; r < n; r++ {
		bpm := 55 + rng.Float64()*45
		base := 60 / bpm * fs

		var peaks []int
		var symbols []string
		pos := 0.5 * fs
		for int(pos) < length {
			symbol := "N"
			spacing := base * (0.95 + 0.1*rng.Float64())
			switch p := rng.Float64(); {
			case p < 0.08:
				symbol = "V"
				spacing *= 0.7
			case p < 0.10:
				symbol = "A"
				spacing *= 0.8
			case p < 0.11:
				symbol = "+"
			}
			peaks = append(peaks, int(pos))
			symbols = append(symbols, symbol)
			pos += spacing
		}

		var bursts []Burst
		if rng.Float64() < 0.3 {
			bursts = append(bursts, Burst{
				Start: rng.Intn(length),
				Len:   int(0.2 * fs),
				Level: 8 + 4*rng.Float64(),
			})
		}

		records = append(records, Generate(Spec{
			ID:           fmt.Sprintf("synth-%03d", r),
			Length:       length,
			SamplingRate: fs,
			Peaks:        peaks,
			Symbols:      symbols,
			Amplitude:    0.8 + 0.6*rng.Float64(),
			Noise:        0.02,
			Wander:       0.15,
			Seed:         rng.Int63(),
			Bursts:       bursts,
		}))
	}
	return records
}

// Loader serves generated records from memory.
type Loader struct {
	records map[string]*pipeline.Record
}

// NewLoader indexes records by id.
func NewLoader(records ...*pipeline.Record) *Loader {
	l := &Loader{records: make(map[string]*pipeline.Record, len(records))}
	for _, rec := range records {
		l.records[rec.ID] = rec
	}
	return l
}

// Load implements pipeline.Loader.
func (l *Loader) Load(ctx context.Context, id string) (*pipeline.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	return rec, nil
}

// IDs returns the known record ids in sorted order.
func (l *Loader) IDs() []string {
	ids := make([]string, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
