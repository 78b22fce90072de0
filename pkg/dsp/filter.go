// Package dsp implements the IIR filters used to condition raw EMG channels.
//
// Two designs are provided, matching the classic digital-filter recipes:
//
//   - [Butterworth]: an even-order band-pass obtained from the analog
//     Butterworth prototype through a low-pass to band-pass transform and the
//     bilinear transform with frequency pre-warping.
//   - [Notch]: a second-order notch (mains interference) with quality
//     factor Q and -3 dB bandwidth f0/Q.
//
// Filters are applied forward and backward by [FiltFilt], which cancels the
// phase response. The [Conditioner] chains both filters over a channel.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Normalized cutoffs are clamped into this range (fraction of Nyquist) so
// designs never place a pole on the unit circle.
const (
	minNormFreq = 0.001
	maxNormFreq = 0.999
)

// Coeffs is the transfer function of a digital IIR filter,
// H(z) = B(z) / A(z), with A[0] == 1 and len(A) == len(B).
type Coeffs struct {
	B []float64
	A []float64
}

// Order returns the filter order (number of delay elements).
func (c Coeffs) Order() int {
	return len(c.A) - 1
}

// Gain returns |H| at the frequency hz for sample rate fs.
func (c Coeffs) Gain(hz, fs float64) float64 {
	w := 2 * math.Pi * hz / fs
	zinv := cmplx.Exp(complex(0, -w))
	var num, den complex128
	p := complex(1, 0)
	for i := range c.B {
		num += complex(c.B[i], 0) * p
		den += complex(c.A[i], 0) * p
		p *= zinv
	}
	return cmplx.Abs(num / den)
}

// normalize turns hz into a fraction of the Nyquist frequency, clamped
// strictly inside (0, 1).
func normalize(hz, fs float64) float64 {
	return min(max(hz/(fs/2), minNormFreq), maxNormFreq)
}

// Butterworth designs a band-pass Butterworth filter passing lowHz..highHz
// at sample rate fs. The prototype order is order; the resulting digital
// filter has order 2*order.
func Butterworth(order int, lowHz, highHz, fs float64) (Coeffs, error) {
	if order < 1 {
		return Coeffs{}, fmt.Errorf("dsp: butterworth order must be positive, got %d", order)
	}
	if fs <= 0 {
		return Coeffs{}, fmt.Errorf("dsp: sample rate must be positive, got %g", fs)
	}
	lo, hi := normalize(lowHz, fs), normalize(highHz, fs)
	if lo >= hi {
		return Coeffs{}, fmt.Errorf("dsp: empty pass band %g..%g Hz at %g Hz", lowHz, highHz, fs)
	}

	// Pre-warp the band edges, using the fs=2 convention for normalized
	// frequencies.
	const fsd = 2.0
	w1 := 2 * fsd * math.Tan(math.Pi*lo/fsd)
	w2 := 2 * fsd * math.Tan(math.Pi*hi/fsd)
	bw := w2 - w1
	wo2 := complex(w1*w2, 0)

	// Analog prototype poles, transformed to band-pass. Each low-pass pole
	// yields a pair; the band-pass has `order` zeros at s=0.
	poles := make([]complex128, 0, 2*order)
	for i := range order {
		m := float64(-order + 1 + 2*i)
		p := -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
		pl := p * complex(bw/2, 0)
		d := cmplx.Sqrt(pl*pl - wo2)
		poles = append(poles, pl+d, pl-d)
	}
	gain := math.Pow(bw, float64(order))

	// Bilinear transform. Analog zeros at 0 map to +1, the excess degree
	// maps to -1.
	const fs2 = 2 * fsd
	zd := make([]complex128, 0, 2*order)
	pd := make([]complex128, 0, 2*order)
	num, den := complex(1, 0), complex(1, 0)
	for range order {
		zd = append(zd, 1)
		num *= fs2
	}
	for range order {
		zd = append(zd, -1)
	}
	for _, p := range poles {
		pd = append(pd, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}
	gain *= real(num / den)

	b := poly(zd)
	for i := range b {
		b[i] *= gain
	}
	return Coeffs{B: b, A: poly(pd)}, nil
}

// Notch designs a second-order notch filter removing f0 Hz with quality
// factor q at sample rate fs.
func Notch(f0, q, fs float64) (Coeffs, error) {
	if q <= 0 {
		return Coeffs{}, fmt.Errorf("dsp: notch quality factor must be positive, got %g", q)
	}
	if fs <= 0 {
		return Coeffs{}, fmt.Errorf("dsp: sample rate must be positive, got %g", fs)
	}
	w0 := normalize(f0, fs)
	bw := w0 / q * math.Pi
	w0 *= math.Pi

	// -3 dB attenuation at the band edges.
	gb := 1 / math.Sqrt2
	beta := math.Sqrt(1-gb*gb) / gb * math.Tan(bw/2)
	g := 1 / (1 + beta)
	cw := math.Cos(w0)
	return Coeffs{
		B: []float64{g, -2 * g * cw, g},
		A: []float64{1, -2 * g * cw, 2*g - 1},
	}, nil
}

// poly returns the real coefficients of the monic polynomial with the given
// roots, highest power first. Roots must come in conjugate pairs.
func poly(roots []complex128) []float64 {
	c := make([]complex128, 1, len(roots)+1)
	c[0] = 1
	for _, r := range roots {
		c = append(c, 0)
		for j := len(c) - 1; j > 0; j-- {
			c[j] -= r * c[j-1]
		}
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}
