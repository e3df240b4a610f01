package chaos

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RQAConfig parameterises the recurrence plot. MinLine is the exclusive lower
// bound on diagonal and column sums counted towards DET and LAM.
type RQAConfig struct {
	Dim             int     `koanf:"dim"`
	Lag             int     `koanf:"lag"`
	ThresholdFactor float64 `koanf:"threshold_factor"`
	MinLine         int     `koanf:"min_line"`
}

// Validate reports configuration errors.
func (c RQAConfig) Validate() error {
	if c.Dim < 1 || c.Lag < 1 {
		return fmt.Errorf("%w: rqa dim and lag must be >= 1", ErrInvalidConfig)
	}
	if c.ThresholdFactor < 0 {
		return fmt.Errorf("%w: rqa threshold_factor must be >= 0", ErrInvalidConfig)
	}
	if c.MinLine < 0 {
		return fmt.Errorf("%w: rqa min_line must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// RQA holds recurrence rate, determinism and laminarity.
type RQA struct {
	RR  float64
	DET float64
	LAM float64
}

// Quantify builds the recurrence matrix of the delay embedding of x, with
// points recurrent when their Euclidean distance is at most
// ThresholdFactor*popstd(x), and summarises it:
//
//   - RR: fraction of recurrent entries in the full M x M matrix
//   - DET: mean of the super-diagonal sums (offsets 1..M-1) above MinLine
//   - LAM: mean of the column sums above MinLine
//
// Windows shorter than Dim*Lag yield zeros.
func Quantify(x []float64, cfg RQAConfig) RQA {
	if len(x) < cfg.Dim*cfg.Lag {
		return RQA{}
	}
	points := embed(x, cfg.Dim, cfg.Lag)
	m := len(points)
	if m == 0 {
		return RQA{}
	}
	_, std := stat.PopMeanStdDev(x, nil)
	threshold := cfg.ThresholdFactor * std

	// the matrix is symmetric with a recurrent main diagonal, so only the
	// upper triangle is evaluated
	diagonals := make([]int, m)
	columns := make([]int, m)
	for i := range columns {
		columns[i] = 1
	}
	upper := 0
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			if floats.Distance(points[i], points[j], 2) <= threshold {
				upper++
				diagonals[j-i]++
				columns[i]++
				columns[j]++
			}
		}
	}

	return RQA{
		RR:  float64(m+2*upper) / float64(m*m),
		DET: meanAbove(diagonals[1:], cfg.MinLine),
		LAM: meanAbove(columns, cfg.MinLine),
	}
}

func meanAbove(sums []int, bound int) float64 {
	total, count := 0, 0
	for _, s := range sums {
		if s > bound {
			total += s
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}
