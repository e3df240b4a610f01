// Package chaos computes nonlinear-dynamics descriptors of a waveform window:
// the largest Lyapunov exponent, Higuchi fractal dimension, sample entropy and
// three recurrence quantification metrics.
//
// The individual estimators return raw values and errors. Extract is the only
// place where failures and non-finite values are replaced by the 0 sentinel,
// so a Features value is either fully computed or all zeros.
package chaos

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidConfig = errors.New("chaos: invalid config")
	ErrTooShort      = errors.New("chaos: not enough samples")
	ErrDegenerate    = errors.New("chaos: degenerate signal")
)

// Config groups the estimator parameters.
type Config struct {
	Lyapunov LyapunovConfig `koanf:"lyapunov"`
	Higuchi  HiguchiConfig  `koanf:"higuchi"`
	SampEn   SampEnConfig   `koanf:"sampen"`
	RQA      RQAConfig      `koanf:"rqa"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if err := c.Lyapunov.Validate(); err != nil {
		return err
	}
	if err := c.Higuchi.Validate(); err != nil {
		return err
	}
	if err := c.SampEn.Validate(); err != nil {
		return err
	}
	return c.RQA.Validate()
}

// Features holds the six descriptors in their canonical column order.
type Features struct {
	LLE    float64 `json:"lle"`
	FD     float64 `json:"fd"`
	SampEn float64 `json:"sampen"`
	RR     float64 `json:"rr"`
	DET    float64 `json:"det"`
	LAM    float64 `json:"lam"`
}

// Names lists the column names matching Values.
func Names() []string {
	return []string{"LLE", "FD", "SampEn", "RR", "DET", "LAM"}
}

// Values flattens f in column order.
func (f Features) Values() []float64 {
	return []float64{f.LLE, f.FD, f.SampEn, f.RR, f.DET, f.LAM}
}

// Sanitize replaces every NaN or infinite descriptor with 0.
func (f Features) Sanitize() Features {
	return Features{
		LLE:    finite(f.LLE),
		FD:     finite(f.FD),
		SampEn: finite(f.SampEn),
		RR:     finite(f.RR),
		DET:    finite(f.DET),
		LAM:    finite(f.LAM),
	}
}

// Compute runs every estimator on window and returns the raw results. The
// first estimator error aborts the computation.
func Compute(window []float64, cfg Config) (Features, error) {
	if err := cfg.Validate(); err != nil {
		return Features{}, err
	}

	lle, err := Lyapunov(window, cfg.Lyapunov)
	if err != nil {
		return Features{}, fmt.Errorf("lyapunov: %w", err)
	}
	fd, err := Higuchi(window, cfg.Higuchi)
	if err != nil {
		return Features{}, fmt.Errorf("higuchi: %w", err)
	}
	sampen, err := SampleEntropy(window, cfg.SampEn)
	if err != nil {
		return Features{}, fmt.Errorf("sample entropy: %w", err)
	}
	rqa := Quantify(window, cfg.RQA)

	return Features{
		LLE:    lle,
		FD:     fd,
		SampEn: sampen,
		RR:     rqa.RR,
		DET:    rqa.DET,
		LAM:    rqa.LAM,
	}, nil
}

// Extract never fails: any error or panic yields six zeros, and non-finite
// descriptors are zeroed individually.
func Extract(window []float64, cfg Config) (f Features) {
	defer func() {
		if recover() != nil {
			f = Features{}
		}
	}()

	raw, err := Compute(window, cfg)
	if err != nil {
		return Features{}
	}
	return raw.Sanitize()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// embed builds delay vectors (x[i], x[i+lag], ..., x[i+(dim-1)*lag]).
func embed(x []float64, dim, lag int) [][]float64 {
	span := (dim - 1) * lag
	m := len(x) - span
	if m <= 0 {
		return nil
	}
	out := make([][]float64, m)
	for i := range out {
		v := make([]float64, dim)
		for d := 0; d < dim; d++ {
			v[d] = x[i+d*lag]
		}
		out[i] = v
	}
	return out
}
