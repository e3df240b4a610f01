package denoise

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// OutOfBandRatio returns the fraction of the raw signal's spectral energy
// (DC excluded) that lies outside the configured pass band. Records with a
// high ratio are dominated by wander or interference the filter discards.
func OutOfBandRatio(raw []float64, samplingRate float64, cfg Config) (float64, error) {
	if len(raw) == 0 {
		return 0, ErrEmptySignal
	}
	if samplingRate <= 0 {
		return 0, ErrInvalidSamplingRate
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	spectrum := fft.FFTReal(raw)
	n := len(spectrum)
	resolution := samplingRate / float64(n)

	total, outside := 0.0, 0.0
	for k := 1; k <= n/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		power := mag * mag
		total += power
		freq := float64(k) * resolution
		if freq < cfg.LowCutoff || freq > cfg.HighCutoff {
			outside += power
		}
	}
	if total == 0 {
		return 0, nil
	}
	return outside / total, nil
}
