// Package refmodel is the float64 reference against which the fixed-point
// engines are verified: the piecewise activations in real arithmetic, the
// batch-norm parameter fusion done upstream of the pipeline, and the error
// metrics used by the one-ULP comparison sweeps.
package refmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReLU is max(x, 0).
func ReLU(x float64) float64 {
	return math.Max(x, 0)
}

// ReLU6 is min(max(x, 0), 6).
func ReLU6(x float64) float64 {
	return math.Min(math.Max(x, 0), 6)
}

// HSwish is x * relu6(x+3) / 6.
func HSwish(x float64) float64 {
	return x * ReLU6(x+3) / 6
}

// HSigmoid is relu6(x+3) / 6.
func HSigmoid(x float64) float64 {
	return ReLU6(x+3) / 6
}

// FuseBatchNorm precomputes the inference-time affine parameters from trained
// normalization statistics: scale = gamma/sqrt(var+eps) and
// shift = beta - mean*scale. The pipeline's batch-norm engine applies exactly
// this map and nothing else.
func FuseBatchNorm(gamma, beta, mean, variance []float64, eps float64) ([]float64, []float64, error) {
	n := len(gamma)
	if len(beta) != n || len(mean) != n || len(variance) != n {
		return nil, nil, fmt.Errorf("refmodel: statistic lengths %d/%d/%d/%d differ",
			len(gamma), len(beta), len(mean), len(variance))
	}
	scale := make([]float64, n)
	shift := make([]float64, n)
	for i := 0; i < n; i++ {
		if variance[i] < 0 {
			return nil, nil, fmt.Errorf("refmodel: negative variance %f at channel %d", variance[i], i)
		}
		scale[i] = gamma[i] / math.Sqrt(variance[i]+eps)
		shift[i] = beta[i] - mean[i]*scale[i]
	}
	return scale, shift, nil
}

// AbsErrors returns |got-want| elementwise.
func AbsErrors(got, want []float64) []float64 {
	if len(got) != len(want) {
		panic(fmt.Errorf("refmodel: length mismatch %d vs %d", len(got), len(want)))
	}
	diff := make([]float64, len(got))
	copy(diff, got)
	floats.Sub(diff, want)
	for i, v := range diff {
		diff[i] = math.Abs(v)
	}
	return diff
}

// MaxAbsError returns the largest elementwise deviation.
func MaxAbsError(got, want []float64) float64 {
	return floats.Max(AbsErrors(got, want))
}

// MeanAbsError returns the mean elementwise deviation.
func MeanAbsError(got, want []float64) float64 {
	return stat.Mean(AbsErrors(got, want), nil)
}
