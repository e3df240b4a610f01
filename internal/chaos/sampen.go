package chaos

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SampEnConfig sets the template length and the tolerance as a fraction of
// the population standard deviation.
type SampEnConfig struct {
	Order   int     `koanf:"order"`
	RFactor float64 `koanf:"r_factor"`
}

// Validate reports configuration errors.
func (c SampEnConfig) Validate() error {
	if c.Order < 1 {
		return fmt.Errorf("%w: sampen order must be >= 1", ErrInvalidConfig)
	}
	if !(c.RFactor > 0) {
		return fmt.Errorf("%w: sampen r_factor must be > 0", ErrInvalidConfig)
	}
	return nil
}

// SampleEntropy returns -ln(A/B), where B counts pairs of length-Order
// templates within Chebyshev distance r (strictly) and A counts the pairs
// that still match when extended by one sample. It is 0 when B is 0 and +Inf
// when A is 0.
func SampleEntropy(x []float64, cfg SampEnConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	m := cfg.Order
	if len(x) <= m+1 {
		return 0, fmt.Errorf("%w: sample entropy of order %d needs more than %d samples", ErrTooShort, m, m+1)
	}
	_, std := stat.PopMeanStdDev(x, nil)
	r := cfg.RFactor * std

	templates := len(x) - m
	matches, extended := 0, 0
	for i := 0; i < templates; i++ {
		for j := i + 1; j < templates; j++ {
			if !within(x, i, j, m, r) {
				continue
			}
			matches++
			if math.Abs(x[i+m]-x[j+m]) < r {
				extended++
			}
		}
	}

	switch {
	case matches == 0:
		return 0, nil
	case extended == 0:
		return math.Inf(1), nil
	}
	return -math.Log(float64(extended) / float64(matches)), nil
}

func within(x []float64, i, j, m int, r float64) bool {
	for d := 0; d < m; d++ {
		if math.Abs(x[i+d]-x[j+d]) >= r {
			return false
		}
	}
	return true
}
