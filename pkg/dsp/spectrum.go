package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum returns the one-sided amplitude spectrum of x sampled at fs.
// freqs[i] is the bin centre in Hz and amps[i] the sinusoid amplitude in
// the units of x.
func Spectrum(x []float64, fs float64) (freqs, amps []float64) {
	n := len(x)
	if n == 0 {
		return nil, nil
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, x)
	freqs = make([]float64, len(coeffs))
	amps = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = fft.Freq(i) * fs
		a := cmplx.Abs(c) / float64(n)
		if i > 0 && !(n%2 == 0 && i == n/2) {
			a *= 2
		}
		amps[i] = a
	}
	return freqs, amps
}

// DominantFrequency returns the strongest non-DC component of x.
func DominantFrequency(x []float64, fs float64) (hz, amp float64) {
	freqs, amps := Spectrum(x, fs)
	for i := 1; i < len(amps); i++ {
		if amps[i] > amp {
			hz, amp = freqs[i], amps[i]
		}
	}
	return hz, amp
}

// AmplitudeAt returns the spectrum amplitude at the bin nearest hz.
func AmplitudeAt(x []float64, fs, hz float64) float64 {
	freqs, amps := Spectrum(x, fs)
	best, bestDist := 0.0, -1.0
	for i, f := range freqs {
		d := f - hz
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = amps[i], d
		}
	}
	return best
}
