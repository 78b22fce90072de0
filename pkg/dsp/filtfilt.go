package dsp

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// PadLen returns the edge padding FiltFilt uses for a filter of the given
// order on a signal of n samples.
func PadLen(order, n int) int {
	return max(0, min(n-1, 3*order))
}

// FiltFilt applies c forward and then backward over x, giving a zero-phase
// result. The signal is extended at both ends by padLen samples of odd
// reflection, and each pass starts from the filter's steady state for the
// first sample, which suppresses edge transients.
//
// padLen must be smaller than len(x).
func FiltFilt(c Coeffs, x []float64, padLen int) ([]float64, error) {
	if len(c.A) == 0 || len(c.A) != len(c.B) {
		return nil, errors.New("dsp: filter coefficients must be non-empty and of equal length")
	}
	if padLen < 0 || padLen >= len(x) {
		return nil, fmt.Errorf("dsp: padlen %d must be in [0, %d)", padLen, len(x))
	}
	zi, err := steadyState(c)
	if err != nil {
		return nil, err
	}
	return filtfilt(c, zi, x, padLen), nil
}

// filtfilt is FiltFilt with precomputed steady state and checked arguments.
func filtfilt(c Coeffs, zi, x []float64, padLen int) []float64 {
	ext := oddExtend(x, padLen)

	y := lfilter(c, ext, scaled(zi, ext[0]))
	slices.Reverse(y)
	y = lfilter(c, y, scaled(zi, y[0]))
	slices.Reverse(y)

	return y[padLen : len(y)-padLen]
}

// lfilter runs the direct form II transposed recursion over x starting from
// the delay state z, which has len(c.A)-1 entries.
func lfilter(c Coeffs, x, z []float64) []float64 {
	n := len(c.A)
	y := make([]float64, len(x))
	if n == 1 {
		for i, v := range x {
			y[i] = c.B[0] * v
		}
		return y
	}
	z = slices.Clone(z)
	for i, v := range x {
		out := c.B[0]*v + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = c.B[j]*v + z[j] - c.A[j]*out
		}
		z[n-2] = c.B[n-1]*v - c.A[n-1]*out
		y[i] = out
	}
	return y
}

// steadyState returns the delay state of c after an infinitely long unit
// step, solving (I - Aᵀ) zi = B[1:] - A[1:]·B[0] where A is the companion
// matrix of the denominator.
func steadyState(c Coeffs) ([]float64, error) {
	m := len(c.A) - 1
	if m < 1 {
		return nil, nil
	}
	lhs := mat.NewDense(m, m, nil)
	rhs := mat.NewVecDense(m, nil)
	for i := range m {
		lhs.Set(i, i, 1)
		lhs.Set(i, 0, lhs.At(i, 0)+c.A[i+1])
		if i+1 < m {
			lhs.Set(i, i+1, -1)
		}
		rhs.SetVec(i, c.B[i+1]-c.A[i+1]*c.B[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(lhs, rhs); err != nil {
		// An ill-conditioned system still yields a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("dsp: filter initial state: %w", err)
		}
	}
	out := make([]float64, m)
	for i := range m {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// oddExtend reflects n samples at each end of x through its end points.
func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	ext := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= n; i++ {
		ext = append(ext, 2*x[last]-x[last-i])
	}
	return ext
}

func scaled(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}
