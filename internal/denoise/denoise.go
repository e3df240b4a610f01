// Package denoise removes baseline wander and high-frequency noise from raw
// single-lead recordings with a zero-phase Butterworth band-pass filter.
package denoise

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidSamplingRate = errors.New("denoise: sampling rate must be positive")
	ErrEmptySignal         = errors.New("denoise: empty signal")
	ErrSignalTooShort      = errors.New("denoise: signal shorter than filter padding")
	ErrInvalidCutoff       = errors.New("denoise: cutoffs must satisfy 0 < low < high < nyquist")
)

// Config holds the pass band edges in Hz.
type Config struct {
	LowCutoff  float64 `koanf:"low_cutoff"`
	HighCutoff float64 `koanf:"high_cutoff"`
}

// Validate checks the cutoffs independently of any sampling rate.
func (c Config) Validate() error {
	if c.LowCutoff <= 0 || c.HighCutoff <= c.LowCutoff {
		return fmt.Errorf("%w (low=%g high=%g)", ErrInvalidCutoff, c.LowCutoff, c.HighCutoff)
	}
	return nil
}

// Filter is a normalised IIR filter in transfer-function form (a[0] == 1).
type Filter struct {
	B []float64
	A []float64
}

// Bandpass designs a first-order Butterworth band-pass filter for the given
// sampling rate. Band edges are pre-warped before the bilinear transform.
func Bandpass(cfg Config, samplingRate float64) (Filter, error) {
	if samplingRate <= 0 || math.IsNaN(samplingRate) || math.IsInf(samplingRate, 0) {
		return Filter{}, fmt.Errorf("%w (got %g)", ErrInvalidSamplingRate, samplingRate)
	}
	if err := cfg.Validate(); err != nil {
		return Filter{}, err
	}
	nyq := samplingRate / 2
	lo := cfg.LowCutoff / nyq
	hi := cfg.HighCutoff / nyq
	if hi >= 1 {
		return Filter{}, fmt.Errorf("%w (high=%g nyquist=%g)", ErrInvalidCutoff, cfg.HighCutoff, nyq)
	}

	// Digital design on a normalised rate of 2, so k = 2*fs = 4.
	const k = 4.0
	w1 := k * math.Tan(math.Pi*lo/2)
	w2 := k * math.Tan(math.Pi*hi/2)
	bw := w2 - w1
	w0sq := w1 * w2

	a0 := k*k + bw*k + w0sq
	a1 := 2*w0sq - 2*k*k
	a2 := k*k - bw*k + w0sq
	b0 := bw * k

	return Filter{
		B: []float64{b0 / a0, 0, -b0 / a0},
		A: []float64{1, a1 / a0, a2 / a0},
	}, nil
}

// PadLen is the number of samples reflected at each edge before filtering.
func (f Filter) PadLen() int {
	return 3 * max(len(f.A), len(f.B))
}

// Denoise band-passes raw and returns a new slice of the same length with
// no phase shift relative to the input.
func Denoise(raw []float64, samplingRate float64, cfg Config) ([]float64, error) {
	if len(raw) == 0 {
		return nil, ErrEmptySignal
	}
	filter, err := Bandpass(cfg, samplingRate)
	if err != nil {
		return nil, err
	}
	return filter.FiltFilt(raw)
}

// FiltFilt applies the filter forward and backward over an odd extension of x.
func (f Filter) FiltFilt(x []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptySignal
	}
	pad := f.PadLen()
	if len(x) <= pad {
		return nil, fmt.Errorf("%w (len=%d pad=%d)", ErrSignalTooShort, len(x), pad)
	}

	ext := oddExtend(x, pad)
	zi := f.steadyState()

	forward := f.apply(ext, scaled(zi, ext[0]))
	floats.Reverse(forward)
	backward := f.apply(forward, scaled(zi, forward[0]))
	floats.Reverse(backward)

	out := make([]float64, len(x))
	copy(out, backward[pad:pad+len(x)])
	return out, nil
}

// apply runs the filter in transposed direct form II starting from state z.
func (f Filter) apply(x, z []float64) []float64 {
	n := max(len(f.A), len(f.B))
	b := padTo(f.B, n)
	a := padTo(f.A, n)
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = b[j]*xi - a[j]*yi + z[j]
		}
		z[n-2] = b[n-1]*xi - a[n-1]*yi
		y[i] = yi
	}
	return y
}

// steadyState returns the filter state for a unit step input at rest.
func (f Filter) steadyState() []float64 {
	n := max(len(f.A), len(f.B))
	b := padTo(f.B, n)
	a := padTo(f.A, n)
	yss := floats.Sum(b) / floats.Sum(a)

	zi := make([]float64, n-1)
	for k := range zi {
		acc := 0.0
		for j := k + 1; j < n; j++ {
			acc += b[j] - a[j]*yss
		}
		zi[k] = acc
	}
	return zi
}

func oddExtend(x []float64, pad int) []float64 {
	n := len(x)
	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= pad; i++ {
		ext = append(ext, 2*x[n-1]-x[n-1-i])
	}
	return ext
}

func scaled(v []float64, s float64) []float64 {
	return floats.ScaleTo(make([]float64, len(v)), s, v)
}

func padTo(v []float64, n int) []float64 {
	if len(v) == n {
		return v
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}
