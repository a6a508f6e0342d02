// Package distance provides the vector distance kernels used by the frozen
// index. Kernels are pure Go with 4-way unrolling; vector widths in this
// system (hundreds to low thousands of dimensions) keep the scan cost well
// inside the model-inference budget.
package distance

import "fmt"

// Metric identifies the distance metric of an index family.
type Metric uint8

const (
	// MetricL2 ranks by Euclidean distance (the default index family metric).
	MetricL2 Metric = iota
	// MetricSquaredL2 ranks identically to MetricL2 but skips the final sqrt.
	MetricSquaredL2
	// MetricDot ranks by negated dot product (higher similarity first).
	MetricDot
)

// String returns a string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricSquaredL2:
		return "SquaredL2"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// ParseMetric parses the textual metric names used in configuration files.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "squared_l2":
		return MetricSquaredL2, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", s)
	}
}

// Func calculates the distance between two equal-length vectors.
// Lower values rank earlier.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return L2, nil
	case MetricSquaredL2:
		return SquaredL2, nil
	case MetricDot:
		return NegDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors. Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var d0, d1, d2, d3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		t0 := a[i] - b[i]
		t1 := a[i+1] - b[i+1]
		t2 := a[i+2] - b[i+2]
		t3 := a[i+3] - b[i+3]
		d0 += t0 * t0
		d1 += t1 * t1
		d2 += t2 * t2
		d3 += t3 * t3
	}
	for ; i < n; i++ {
		t := a[i] - b[i]
		d0 += t * t
	}

	return d0 + d1 + d2 + d3
}

// L2 calculates the L2 (Euclidean) distance between two vectors.
func L2(a, b []float32) float32 {
	return Sqrt(SquaredL2(a, b))
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var d0, d1, d2, d3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 += a[i] * b[i]
		d1 += a[i+1] * b[i+1]
		d2 += a[i+2] * b[i+2]
		d3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		d0 += a[i] * b[i]
	}

	return d0 + d1 + d2 + d3
}

// NegDot is the negated dot product, so that smaller means more similar and
// results sort the same way as the L2 metrics.
func NegDot(a, b []float32) float32 {
	return -Dot(a, b)
}
