// Package rr computes beat timing and amplitude statistics from R-peak positions.
package rr

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrIndexOutOfRange = errors.New("rr: beat index outside the usable range")
	ErrInvalidConfig   = errors.New("rr: invalid config")
)

// Config sets the edge margin K and the local average lookback.
type Config struct {
	Margin   int `koanf:"margin"`
	Lookback int `koanf:"lookback"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Margin < 0 {
		return fmt.Errorf("%w: margin must be >= 0 (got %d)", ErrInvalidConfig, c.Margin)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be > 0 (got %d)", ErrInvalidConfig, c.Lookback)
	}
	return nil
}

// Features are expressed in samples, amplitude in signal units.
type Features struct {
	PreRR     float64 `json:"pre_rr"`
	PostRR    float64 `json:"post_rr"`
	LocalRR   float64 `json:"local_rr"`
	Amplitude float64 `json:"amplitude"`
}

// Usable reports whether beat i has the margin required by cfg. At least one
// neighbour on each side is always required.
func Usable(n, i int, cfg Config) bool {
	k := max(cfg.Margin, 1)
	return i >= k && i < n-k
}

// Compute returns the RR features of beat i. rIndices must be strictly
// increasing; i outside the usable range is a caller error.
func Compute(rIndices []int, denoised []float64, i int, cfg Config) (Features, error) {
	if err := cfg.Validate(); err != nil {
		return Features{}, err
	}
	if !Usable(len(rIndices), i, cfg) {
		return Features{}, fmt.Errorf("%w: i=%d beats=%d margin=%d", ErrIndexOutOfRange, i, len(rIndices), cfg.Margin)
	}
	r := rIndices[i]
	if r < 0 || r >= len(denoised) {
		return Features{}, fmt.Errorf("%w: sample %d outside signal of %d", ErrIndexOutOfRange, r, len(denoised))
	}

	return Features{
		PreRR:     float64(r - rIndices[i-1]),
		PostRR:    float64(rIndices[i+1] - r),
		LocalRR:   LocalMean(rIndices, i, cfg.Lookback),
		Amplitude: denoised[r],
	}, nil
}

// LocalMean averages the intervals ending at beats max(1, i-lookback+1)..i,
// i.e. up to lookback intervals immediately preceding beat i. Near the start
// of a record fewer intervals are available and only those are averaged.
func LocalMean(rIndices []int, i, lookback int) float64 {
	start := max(i-lookback, 0)
	intervals := make([]float64, 0, i-start)
	for j := start; j < i; j++ {
		intervals = append(intervals, float64(rIndices[j+1]-rIndices[j]))
	}
	return stat.Mean(intervals, nil)
}
