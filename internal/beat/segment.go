// Package beat turns annotated R-peak positions into labelled, fixed-length
// windows of the denoised waveform.
package beat

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrUnorderedAnnotations = errors.New("beat: annotation samples must be non-negative and strictly increasing")
	ErrInvalidWindow        = errors.New("beat: window size must be positive and even")
	ErrInvalidThreshold     = errors.New("beat: artifact threshold must be positive")
)

// Reason explains why an annotation did or did not produce a window.
type Reason string

const (
	Accepted       Reason = "accepted"
	RejectExcluded Reason = "excluded_symbol"
	RejectBoundary Reason = "boundary"
	RejectArtifact Reason = "artifact"
	// RejectMargin is assigned by callers that drop beats near record edges.
	RejectMargin Reason = "margin"
)

// Annotation is one (sample index, symbol) entry of a record's beat annotations.
type Annotation struct {
	Sample int
	Symbol string
}

// Beat is a retained heartbeat annotation.
type Beat struct {
	RIndex int
	Symbol string
	Label  int
	// Position is the ordinal of the beat among retained beats of its record.
	Position int
}

// Config controls window extraction.
type Config struct {
	WindowSize        int     `koanf:"window_size"`
	ArtifactThreshold float64 `koanf:"artifact_threshold"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.WindowSize <= 0 || c.WindowSize%2 != 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWindow, c.WindowSize)
	}
	if !(c.ArtifactThreshold > 0) {
		return fmt.Errorf("%w (got %g)", ErrInvalidThreshold, c.ArtifactThreshold)
	}
	return nil
}

// Verdict is the outcome of one annotation. Beat is zero for excluded symbols;
// Window is nil unless Reason is Accepted.
type Verdict struct {
	Annotation int
	Beat       Beat
	Window     []float64
	Reason     Reason
}

// Retained reports whether the annotation is a heartbeat, regardless of
// whether its window survived.
func (v Verdict) Retained() bool {
	return v.Reason != RejectExcluded
}

// Windowed pairs an accepted beat with its window.
type Windowed struct {
	Beat   Beat
	Window []float64
}

// Classify evaluates every annotation against the symbol, boundary and
// artifact policies, in annotation order. Windows alias denoised.
func Classify(denoised []float64, annotations []Annotation, cfg Config) ([]Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkOrder(annotations); err != nil {
		return nil, err
	}

	half := cfg.WindowSize / 2
	verdicts := make([]Verdict, 0, len(annotations))
	position := 0
	for i, ann := range annotations {
		v := Verdict{Annotation: i}
		if Excluded(ann.Symbol) {
			v.Reason = RejectExcluded
			verdicts = append(verdicts, v)
			continue
		}

		v.Beat = Beat{
			RIndex:   ann.Sample,
			Symbol:   ann.Symbol,
			Label:    Label(ann.Symbol),
			Position: position,
		}
		position++

		lo, hi := ann.Sample-half, ann.Sample+half
		switch {
		case lo < 0 || hi >= len(denoised):
			v.Reason = RejectBoundary
		case floats.Norm(denoised[lo:hi], math.Inf(1)) > cfg.ArtifactThreshold:
			v.Reason = RejectArtifact
		default:
			v.Reason = Accepted
			v.Window = denoised[lo:hi:hi]
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// Segment returns the accepted beats and their windows in annotation order.
func Segment(denoised []float64, annotations []Annotation, cfg Config) ([]Windowed, error) {
	verdicts, err := Classify(denoised, annotations, cfg)
	if err != nil {
		return nil, err
	}
	var out []Windowed
	for _, v := range verdicts {
		if v.Reason == Accepted {
			out = append(out, Windowed{Beat: v.Beat, Window: v.Window})
		}
	}
	return out, nil
}

// RIndices lists the sample positions of retained beats, indexed by Beat.Position.
func RIndices(verdicts []Verdict) []int {
	out := make([]int, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Retained() {
			out = append(out, v.Beat.RIndex)
		}
	}
	return out
}

func checkOrder(annotations []Annotation) error {
	prev := -1
	for i, ann := range annotations {
		if ann.Sample <= prev {
			return fmt.Errorf("%w: entry %d at sample %d follows %d", ErrUnorderedAnnotations, i, ann.Sample, prev)
		}
		prev = ann.Sample
	}
	return nil
}
