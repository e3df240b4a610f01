package chaos

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// HiguchiConfig sets the largest interval k used by Higuchi's method.
type HiguchiConfig struct {
	KMax int `koanf:"kmax"`
}

// Validate reports configuration errors.
func (c HiguchiConfig) Validate() error {
	if c.KMax < 2 {
		return fmt.Errorf("%w: higuchi kmax must be >= 2", ErrInvalidConfig)
	}
	return nil
}

// Higuchi returns the fractal dimension of x: the slope of log L(k) against
// log(1/k), where L(k) is the mean normalised curve length at interval k.
func Higuchi(x []float64, cfg HiguchiConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	n := len(x)
	logInv := make([]float64, cfg.KMax)
	logLen := make([]float64, cfg.KMax)

	for k := 1; k <= cfg.KMax; k++ {
		total := 0.0
		for m := 0; m < k; m++ {
			steps := (n - m - 1) / k
			if steps <= 0 {
				return 0, fmt.Errorf("%w: higuchi k=%d needs more than %d samples", ErrTooShort, k, n)
			}
			length := 0.0
			// the final increment is not summed; the normalisation still uses steps
			for j := 1; j < steps; j++ {
				length += math.Abs(x[m+j*k] - x[m+(j-1)*k])
			}
			length /= float64(k)
			length *= float64(n-1) / float64(k*steps)
			total += length
		}
		logInv[k-1] = math.Log(1 / float64(k))
		logLen[k-1] = math.Log(total / float64(k))
	}

	_, slope := stat.LinearRegression(logInv, logLen, nil, false)
	return slope, nil
}
