package chaos

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LyapunovConfig parameterises the Rosenstein estimator.
type LyapunovConfig struct {
	Dim           int     `koanf:"dim"`
	Lag           int     `koanf:"lag"`
	TrajectoryLen int     `koanf:"trajectory_len"`
	MaxTsepFactor float64 `koanf:"max_tsep_factor"`
}

// Validate reports configuration errors.
func (c LyapunovConfig) Validate() error {
	if c.Dim < 1 || c.Lag < 1 || c.TrajectoryLen < 1 {
		return fmt.Errorf("%w: lyapunov dim, lag and trajectory_len must be >= 1", ErrInvalidConfig)
	}
	if !(c.MaxTsepFactor > 0 && c.MaxTsepFactor <= 1) {
		return fmt.Errorf("%w: lyapunov max_tsep_factor must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Lyapunov estimates the largest Lyapunov exponent with Rosenstein's method:
// every delay vector is paired with its nearest neighbour at least minTsep
// samples away, both are followed for TrajectoryLen steps, and the slope of
// the mean log distance over time is returned (per sample). The result is
// -Inf when every pair stays at distance zero.
func Lyapunov(x []float64, cfg LyapunovConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("%w: lyapunov needs at least 2 samples, got %d", ErrTooShort, len(x))
	}

	tsep, err := minTemporalSeparation(x, cfg.MaxTsepFactor)
	if err != nil {
		return 0, err
	}

	orbit := embed(x, cfg.Dim, cfg.Lag)
	ntraj := len(orbit) - cfg.TrajectoryLen + 1
	if ntraj <= 0 {
		return 0, fmt.Errorf("%w: %d more samples needed to follow one trajectory", ErrTooShort, 1-ntraj)
	}
	if minTraj := 2*tsep + 2; ntraj < minTraj {
		return 0, fmt.Errorf("%w: %d trajectories required for min_tsep=%d, have %d", ErrTooShort, minTraj, tsep, ntraj)
	}

	neighbours := make([]int, ntraj)
	for i := 0; i < ntraj; i++ {
		best, idx := math.Inf(1), -1
		for j := 0; j < ntraj; j++ {
			if abs(i-j) <= tsep {
				continue
			}
			if d := floats.Distance(orbit[i], orbit[j], 2); d < best {
				best, idx = d, j
			}
		}
		if idx < 0 {
			return 0, fmt.Errorf("%w: no neighbour for orbit vector %d", ErrDegenerate, i)
		}
		neighbours[i] = idx
	}

	steps := make([]float64, 0, cfg.TrajectoryLen)
	divergence := make([]float64, 0, cfg.TrajectoryLen)
	for k := 0; k < cfg.TrajectoryLen; k++ {
		sum, count := 0.0, 0
		for i, nb := range neighbours {
			d := floats.Distance(orbit[i+k], orbit[nb+k], 2)
			if d != 0 {
				sum += math.Log(d)
				count++
			}
		}
		if count == 0 {
			continue
		}
		mean := sum / float64(count)
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			continue
		}
		steps = append(steps, float64(k))
		divergence = append(divergence, mean)
	}
	if len(steps) == 0 {
		return math.Inf(-1), nil
	}

	_, slope := stat.LinearRegression(steps, divergence, nil, false)
	return slope, nil
}

// minTemporalSeparation derives the neighbour exclusion band from the mean
// frequency of the zero-padded power spectrum, capped at factor*len(x).
func minTemporalSeparation(x []float64, factor float64) (int, error) {
	n := len(x)
	size := 2*n - 1
	padded := make([]float64, size)
	copy(padded, x)
	spectrum := fft.FFTReal(padded)

	bins := size/2 + 1
	weighted, total := 0.0, 0.0
	for k := 1; k < bins; k++ {
		mag := cmplx.Abs(spectrum[k])
		weighted += float64(k) / float64(size) * mag
		total += mag
	}
	meanFreq := weighted / float64(bins-1) / total
	sep := math.Ceil(1 / meanFreq)
	if math.IsNaN(sep) || math.IsInf(sep, 0) {
		return 0, fmt.Errorf("%w: spectrum has no mean frequency", ErrDegenerate)
	}

	limit := factor * float64(n)
	if sep > limit {
		return int(limit), nil
	}
	return int(sep), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
