package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAnnotations(t *testing.T) {
	rec := Generate(Spec{
		ID:           "r1",
		Length:       1500,
		SamplingRate: 360,
		Peaks:        []int{200, 500, 800, 1100},
		Symbols:      []string{"N", "V", "+"},
	})

	require.Len(t, rec.Annotations, 4)
	assert.Equal(t, "N", rec.Annotations[0].Symbol)
	assert.Equal(t, "V", rec.Annotations[1].Symbol)
	assert.Equal(t, "+", rec.Annotations[2].Symbol)
	assert.Equal(t, "N", rec.Annotations[3].Symbol, "missing symbols default to N")
	assert.Equal(t, 800, rec.Annotations[2].Sample)
	assert.Len(t, rec.Samples, 1500)
	assert.Equal(t, 360.0, rec.SamplingRate)
}

func TestGeneratePeakIsLocalMaximum(t *testing.T) {
	rec := Generate(Spec{Length: 1000, SamplingRate: 360, Peaks: []int{300, 700}, Amplitude: 2})
	for _, peak := range []int{300, 700} {
		for d := 1; d <= 20; d++ {
			assert.Greater(t, rec.Samples[peak], rec.Samples[peak-d])
			assert.Greater(t, rec.Samples[peak], rec.Samples[peak+d])
		}
		assert.InDelta(t, 2.0, rec.Samples[peak], 0.1)
	}
}

func TestGenerateSkipsExcludedSymbols(t *testing.T) {
	rec := Generate(Spec{Length: 600, SamplingRate: 360, Peaks: []int{300}, Symbols: []string{"+"}})
	for _, v := range rec.Samples {
		assert.Zero(t, v)
	}
}

func TestGenerateBurst(t *testing.T) {
	rec := Generate(Spec{
		Length:       500,
		SamplingRate: 360,
		Bursts:       []Burst{{Start: 490, Len: 50, Level: 9}},
	})
	assert.Equal(t, 9.0, rec.Samples[490])
	assert.Equal(t, 9.0, rec.Samples[499])
	assert.Zero(t, rec.Samples[489])
}

func TestGenerateDeterministic(t *testing.T) {
	spec := Spec{Length: 800, SamplingRate: 250, Peaks: []int{200, 500}, Noise: 0.1, Wander: 0.2, Seed: 42}
	assert.Equal(t, Generate(spec).Samples, Generate(spec).Samples)
}

func TestRegularPeaks(t *testing.T) {
	assert.Equal(t, []int{100, 360, 620}, RegularPeaks(100, 260, 3))
	assert.Empty(t, RegularPeaks(0, 10, 0))
}

func TestDemo(t *testing.T) {
	a := Demo(3, 10, 360, 7)
	b := Demo(3, 10, 360, 7)
	require.Len(t, a, 3)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Samples, b[i].Samples)
		assert.Equal(t, a[i].Annotations, b[i].Annotations)
		assert.Len(t, a[i].Samples, 3600)
		assert.NotEmpty(t, a[i].Annotations)
		for k := 1; k < len(a[i].Annotations); k++ {
			assert.Greater(t, a[i].Annotations[k].Sample, a[i].Annotations[k-1].Sample)
		}
	}
	assert.Equal(t, "synth-000", a[0].ID)
}

func TestLoader(t *testing.T) {
	l := NewLoader(Demo(2, 2, 100, 1)...)
	assert.Equal(t, []string{"synth-000", "synth-001"}, l.IDs())

	rec, err := l.Load(context.Background(), "synth-001")
	require.NoError(t, err)
	assert.Equal(t, "synth-001", rec.ID)

	_, err = l.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownRecord)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, "synth-000")
	assert.ErrorIs(t, err, context.Canceled)
}
