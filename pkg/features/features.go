// Package features turns conditioned EMG windows into fixed-length feature
// vectors.
//
// Each channel contributes eight time-domain descriptors, in this order:
//
//	mav   mean absolute value
//	rms   root mean square
//	wl    waveform length (sum of absolute first differences)
//	var   population variance
//	iemg  integrated EMG (sum of absolute values)
//	zc    zero crossings, ignoring samples below a fraction of RMS
//	ssc   slope sign changes
//	aac   average amplitude change (mean absolute first difference)
//
// A window's vector is the concatenation of its channels' descriptors,
// channel-major. The same Extractor serves offline training and live
// inference so both see identical vectors.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NumDescriptors is the number of features computed per channel.
const NumDescriptors = 8

// Names lists the per-channel descriptor names in vector order.
var Names = [NumDescriptors]string{"mav", "rms", "wl", "var", "iemg", "zc", "ssc", "aac"}

// DefaultZeroCrossFraction is the default zero-crossing dead band as a
// fraction of the window RMS.
const DefaultZeroCrossFraction = 0.01

// WindowSize converts a window duration to a sample count.
func WindowSize(windowMS, sampleRate float64) int {
	return max(1, int(math.Round(windowMS*sampleRate/1000)))
}

// StepSize returns the stride between consecutive windows for the given
// fractional overlap. The result is never below 1.
func StepSize(windowSize int, overlap float64) int {
	return max(1, int(math.Round(float64(windowSize)*(1-overlap))))
}

// Config configures an Extractor.
type Config struct {
	// WindowSize is the number of samples per window.
	WindowSize int

	// StepSize is the stride between windows in BuildMatrix.
	StepSize int

	// ZeroCrossFraction sets the zero-crossing dead band: samples whose
	// magnitude is below ZeroCrossFraction*RMS count as zero.
	ZeroCrossFraction float64
}

// Extractor computes feature vectors. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor returns an Extractor for cfg.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("features: window size must be positive, got %d", cfg.WindowSize)
	}
	if cfg.StepSize < 1 {
		return nil, fmt.Errorf("features: step size must be positive, got %d", cfg.StepSize)
	}
	if cfg.ZeroCrossFraction < 0 {
		return nil, fmt.Errorf("features: zero-cross fraction must not be negative, got %g", cfg.ZeroCrossFraction)
	}
	return &Extractor{cfg: cfg}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Len returns the feature vector length for the given channel count.
func (e *Extractor) Len(channels int) int {
	return channels * NumDescriptors
}

// Extract returns the descriptors of a single channel. An empty input
// yields all zeros.
func (e *Extractor) Extract(x []float64) []float64 {
	return e.appendDescriptors(make([]float64, 0, NumDescriptors), x)
}

// ExtractWindow returns the feature vector of a samples-by-channels window.
func (e *Extractor) ExtractWindow(window [][]float64) []float64 {
	if len(window) == 0 {
		return nil
	}
	nch := len(window[0])
	out := make([]float64, 0, e.Len(nch))
	col := make([]float64, len(window))
	for ch := range nch {
		for i, s := range window {
			col[i] = s[ch]
		}
		out = e.appendDescriptors(out, col)
	}
	return out
}

// BuildMatrix slides a window over signal (samples by channels) and returns
// one feature vector per window together with the label of the sample at
// the window centre. Windows start every StepSize samples and a trailing
// remainder shorter than WindowSize is dropped.
func (e *Extractor) BuildMatrix(signal [][]float64, labels []string) ([][]float64, []string, error) {
	if len(labels) != len(signal) {
		return nil, nil, fmt.Errorf("features: %d labels for %d samples", len(labels), len(signal))
	}
	w, step := e.cfg.WindowSize, e.cfg.StepSize
	var (
		vectors [][]float64
		out     []string
	)
	for start := 0; start+w <= len(signal); start += step {
		vectors = append(vectors, e.ExtractWindow(signal[start:start+w]))
		out = append(out, labels[start+w/2])
	}
	return vectors, out, nil
}

func (e *Extractor) appendDescriptors(dst, x []float64) []float64 {
	n := len(x)
	if n == 0 {
		var zero [NumDescriptors]float64
		return append(dst, zero[:]...)
	}
	fn := float64(n)

	var iemg float64
	for _, v := range x {
		iemg += math.Abs(v)
	}
	mav := iemg / fn
	rms := math.Sqrt(floats.Dot(x, x) / fn)
	_, variance := stat.PopMeanVariance(x, nil)

	var wl, ssc float64
	prevSlope := 0.0
	for i := 1; i < n; i++ {
		d := x[i] - x[i-1]
		wl += math.Abs(d)
		s := sign(d)
		if i > 1 && s != prevSlope {
			ssc++
		}
		prevSlope = s
	}
	var aac float64
	if n > 1 {
		aac = wl / float64(n-1)
	}

	thresh := e.cfg.ZeroCrossFraction * rms
	var zc float64
	prev := deadBandSign(x[0], thresh)
	for _, v := range x[1:] {
		s := deadBandSign(v, thresh)
		if s != prev {
			zc++
		}
		prev = s
	}

	return append(dst, mav, rms, wl, variance, iemg, zc, ssc, aac)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func deadBandSign(v, thresh float64) float64 {
	if math.Abs(v) < thresh {
		return 0
	}
	return sign(v)
}
