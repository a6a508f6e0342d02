package distance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	assert.InDelta(t, float32(25), SquaredL2(a, b), 1e-6)
	assert.InDelta(t, float32(5), L2(a, b), 1e-6)
	assert.Zero(t, SquaredL2(a, a))
}

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{5, 4, 3, 2, 1}
	assert.InDelta(t, float32(35), Dot(a, b), 1e-6)
	assert.InDelta(t, float32(-35), NegDot(a, b), 1e-6)
}

// The unrolled kernels must agree with the naive implementations across odd
// lengths that exercise the scalar tail.
func TestKernelsMatchNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 15, 64, 127, 1280} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = rng.Float32()
			b[i] = rng.Float32()
		}

		var wantL2, wantDot float32
		for i := range a {
			d := a[i] - b[i]
			wantL2 += d * d
			wantDot += a[i] * b[i]
		}

		assert.InDelta(t, wantL2, SquaredL2(a, b), 1e-3, "SquaredL2 n=%d", n)
		assert.InDelta(t, wantDot, Dot(a, b), 1e-3, "Dot n=%d", n)
	}
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricL2, MetricSquaredL2, MetricDot} {
		fn, err := Provider(m)
		require.NoError(t, err)
		require.NotNil(t, fn)
	}

	_, err := Provider(Metric(99))
	assert.Error(t, err)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("euclidean")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}
