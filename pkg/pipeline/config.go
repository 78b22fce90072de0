// Package pipeline holds the configuration shared by every stage of the
// recognizer and the front-end that turns raw samples into feature vectors.
//
// A Config travels inside each trained model artifact, so the live loop
// conditions and windows its input exactly as the training data was.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/haivivi/subvocal/pkg/dsp"
	"github.com/haivivi/subvocal/pkg/features"
)

// Config is the complete set of parameters that must match between
// training and inference.
type Config struct {
	// SampleRate is the device sampling rate in Hz.
	SampleRate float64 `yaml:"sample_rate"`

	// Channels is the number of EMG channels per sample.
	Channels int `yaml:"channels"`

	// WindowMS is the analysis window length in milliseconds.
	WindowMS float64 `yaml:"window_ms"`

	// Overlap is the fractional overlap of consecutive windows, in [0, 1).
	Overlap float64 `yaml:"overlap"`

	// NotchHz is the mains frequency to remove. Zero disables the notch.
	NotchHz float64 `yaml:"notch_hz"`
	NotchQ  float64 `yaml:"notch_q"`

	// LowCut and HighCut bound the band-pass in Hz.
	LowCut  float64 `yaml:"low_cut_hz"`
	HighCut float64 `yaml:"high_cut_hz"`

	// FilterOrder is the Butterworth prototype order.
	FilterOrder int `yaml:"filter_order"`

	// ZeroCrossFraction is the zero-crossing dead band as a fraction of
	// window RMS.
	ZeroCrossFraction float64 `yaml:"zc_threshold"`

	// VoteCount is the number of recent predictions in the majority vote.
	VoteCount int `yaml:"vote_count"`

	// ConfidenceThreshold is the minimum majority share to emit a command.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// SilenceLabel names the resting class. It never fires and re-arms the
	// debouncer.
	SilenceLabel string `yaml:"silence_label"`
}

// DefaultConfig returns the defaults for a 4-channel, 200 Hz EMG headset
// on 60 Hz mains.
func DefaultConfig() Config {
	return Config{
		SampleRate:          200,
		Channels:            4,
		WindowMS:            250,
		Overlap:             0.5,
		NotchHz:             60,
		NotchQ:              30,
		LowCut:              20,
		HighCut:             100,
		FilterOrder:         4,
		ZeroCrossFraction:   features.DefaultZeroCrossFraction,
		VoteCount:           5,
		ConfidenceThreshold: 0.6,
		SilenceLabel:        "silence",
	}
}

// WindowSize returns the window length in samples.
func (c Config) WindowSize() int {
	return features.WindowSize(c.WindowMS, c.SampleRate)
}

// StepSize returns the stride between windows in samples.
func (c Config) StepSize() int {
	return features.StepSize(c.WindowSize(), c.Overlap)
}

// FeatureLen returns the feature vector length.
func (c Config) FeatureLen() int {
	return c.Channels * features.NumDescriptors
}

// Conditioner returns the filter configuration.
func (c Config) Conditioner() dsp.Config {
	return dsp.Config{
		SampleRate: c.SampleRate,
		NotchHz:    c.NotchHz,
		NotchQ:     c.NotchQ,
		LowCut:     c.LowCut,
		HighCut:    c.HighCut,
		Order:      c.FilterOrder,
	}
}

// Extractor returns the windowing configuration.
func (c Config) Extractor() features.Config {
	return features.Config{
		WindowSize:        c.WindowSize(),
		StepSize:          c.StepSize(),
		ZeroCrossFraction: c.ZeroCrossFraction,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.SampleRate > 0, "sample_rate must be positive, got %g", c.SampleRate)
	check(c.Channels > 0, "channels must be positive, got %d", c.Channels)
	check(c.WindowMS > 0, "window_ms must be positive, got %g", c.WindowMS)
	check(c.Overlap >= 0 && c.Overlap < 1, "overlap must be in [0, 1), got %g", c.Overlap)
	check(c.NotchHz >= 0, "notch_hz must not be negative, got %g", c.NotchHz)
	check(c.NotchHz == 0 || c.NotchQ > 0, "notch_q must be positive, got %g", c.NotchQ)
	check(c.LowCut >= 0 && c.LowCut < c.HighCut, "band %g..%g Hz is empty", c.LowCut, c.HighCut)
	check(c.FilterOrder >= 1 && c.FilterOrder <= 8, "filter_order must be in [1, 8], got %d", c.FilterOrder)
	check(c.ZeroCrossFraction >= 0, "zc_threshold must not be negative, got %g", c.ZeroCrossFraction)
	check(c.VoteCount >= 1, "vote_count must be positive, got %d", c.VoteCount)
	check(c.ConfidenceThreshold > 0 && c.ConfidenceThreshold <= 1,
		"confidence_threshold must be in (0, 1], got %g", c.ConfidenceThreshold)
	check(c.SilenceLabel != "", "silence_label must not be empty")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline: invalid config: %w", err)
	}
	return nil
}

// Diff lists the fields whose values differ between c and other.
// Inference-only fields (vote count, threshold) are ignored.
func (c Config) Diff(other Config) []string {
	var diffs []string
	add := func(name string, a, b any) {
		if a != b {
			diffs = append(diffs, fmt.Sprintf("%s: %v != %v", name, a, b))
		}
	}
	add("sample_rate", c.SampleRate, other.SampleRate)
	add("channels", c.Channels, other.Channels)
	add("window_size", c.WindowSize(), other.WindowSize())
	add("step_size", c.StepSize(), other.StepSize())
	add("notch_hz", c.NotchHz, other.NotchHz)
	add("notch_q", c.NotchQ, other.NotchQ)
	add("low_cut_hz", c.LowCut, other.LowCut)
	add("high_cut_hz", c.HighCut, other.HighCut)
	add("filter_order", c.FilterOrder, other.FilterOrder)
	add("zc_threshold", c.ZeroCrossFraction, other.ZeroCrossFraction)
	add("silence_label", c.SilenceLabel, other.SilenceLabel)
	return diffs
}
