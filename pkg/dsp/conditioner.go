package dsp

import "fmt"

// MinSamples is the shortest signal the Conditioner filters. Shorter
// signals are returned unfiltered.
const MinSamples = 20

// Config configures a Conditioner.
type Config struct {
	// SampleRate is the sampling rate in Hz.
	SampleRate float64

	// NotchHz is the mains frequency to remove (50 or 60). Zero disables
	// the notch stage.
	NotchHz float64

	// NotchQ is the notch quality factor.
	NotchQ float64

	// LowCut and HighCut bound the band-pass in Hz. Values at or beyond
	// Nyquist are clamped just inside it.
	LowCut  float64
	HighCut float64

	// Order is the Butterworth prototype order.
	Order int
}

// DefaultConfig returns the surface-EMG conditioning defaults:
// 200 Hz, 60 Hz notch with Q=30, 20-100 Hz band-pass of order 4.
func DefaultConfig() Config {
	return Config{
		SampleRate: 200,
		NotchHz:    60,
		NotchQ:     30,
		LowCut:     20,
		HighCut:    100,
		Order:      4,
	}
}

// stage is one zero-phase filter with its precomputed steady state.
type stage struct {
	coeffs Coeffs
	zi     []float64
	order  int
}

func newStage(c Coeffs, order int) (stage, error) {
	zi, err := steadyState(c)
	if err != nil {
		return stage{}, err
	}
	return stage{coeffs: c, zi: zi, order: order}, nil
}

func (s stage) apply(x []float64) []float64 {
	return filtfilt(s.coeffs, s.zi, x, PadLen(s.order, len(x)))
}

// Conditioner removes mains interference and out-of-band energy from a
// single channel. A Conditioner is immutable and safe for concurrent use.
type Conditioner struct {
	cfg    Config
	stages []stage
}

// NewConditioner designs the filters described by cfg.
func NewConditioner(cfg Config) (*Conditioner, error) {
	c := &Conditioner{cfg: cfg}
	if cfg.NotchHz > 0 {
		notch, err := Notch(cfg.NotchHz, cfg.NotchQ, cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		st, err := newStage(notch, notch.Order())
		if err != nil {
			return nil, err
		}
		c.stages = append(c.stages, st)
	}
	band, err := Butterworth(cfg.Order, cfg.LowCut, cfg.HighCut, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	st, err := newStage(band, cfg.Order)
	if err != nil {
		return nil, err
	}
	c.stages = append(c.stages, st)
	return c, nil
}

// Config returns the configuration the Conditioner was built from.
func (c *Conditioner) Config() Config {
	return c.cfg
}

// Condition returns the filtered copy of signal: notch first, then
// band-pass. Signals shorter than MinSamples come back unfiltered.
func (c *Conditioner) Condition(signal []float64) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)
	if len(signal) < MinSamples {
		return out
	}
	for _, st := range c.stages {
		out = st.apply(out)
	}
	return out
}

// ConditionChannels conditions each channel of a samples-by-channels
// matrix independently and returns a matrix of the same shape.
func (c *Conditioner) ConditionChannels(samples [][]float64) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	nch := len(samples[0])
	col := make([]float64, len(samples))
	out := make([][]float64, len(samples))
	for i := range out {
		if len(samples[i]) != nch {
			return nil, fmt.Errorf("dsp: sample %d has %d channels, want %d", i, len(samples[i]), nch)
		}
		out[i] = make([]float64, nch)
	}
	for ch := range nch {
		for i, s := range samples {
			col[i] = s[ch]
		}
		for i, v := range c.Condition(col) {
			out[i][ch] = v
		}
	}
	return out, nil
}
