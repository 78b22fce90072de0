package pipeline

import (
	"fmt"

	"github.com/haivivi/subvocal/pkg/dsp"
	"github.com/haivivi/subvocal/pkg/features"
)

// Frontend conditions raw channel data and extracts feature vectors. The
// trainer and the live loop both go through a Frontend so a window yields
// the same vector in either path.
type Frontend struct {
	cfg  Config
	cond *dsp.Conditioner
	ext  *features.Extractor
}

// NewFrontend validates cfg and builds its filters and extractor.
func NewFrontend(cfg Config) (*Frontend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cond, err := dsp.NewConditioner(cfg.Conditioner())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	ext, err := features.NewExtractor(cfg.Extractor())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Frontend{cfg: cfg, cond: cond, ext: ext}, nil
}

// Config returns the configuration of f.
func (f *Frontend) Config() Config {
	return f.cfg
}

// Window conditions one window (samples by channels) per channel and
// returns its feature vector. An empty window yields FeatureLen zeros.
func (f *Frontend) Window(window [][]float64) ([]float64, error) {
	if len(window) == 0 {
		return make([]float64, f.cfg.FeatureLen()), nil
	}
	if err := f.checkChannels(window); err != nil {
		return nil, err
	}
	conditioned, err := f.cond.ConditionChannels(window)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return f.ext.ExtractWindow(conditioned), nil
}

// Matrix conditions a whole recording per channel and returns one feature
// vector and centre label per window.
func (f *Frontend) Matrix(signal [][]float64, labels []string) ([][]float64, []string, error) {
	if err := f.checkChannels(signal); err != nil {
		return nil, nil, err
	}
	conditioned, err := f.cond.ConditionChannels(signal)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}
	return f.ext.BuildMatrix(conditioned, labels)
}

func (f *Frontend) checkChannels(samples [][]float64) error {
	for i, s := range samples {
		if len(s) != f.cfg.Channels {
			return fmt.Errorf("pipeline: sample %d has %d channels, want %d", i, len(s), f.cfg.Channels)
		}
	}
	return nil
}
