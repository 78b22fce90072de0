package pipeline

import (
	"math"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.WindowSize(); got != 50 {
		t.Errorf("WindowSize = %d, want 50", got)
	}
	if got := cfg.StepSize(); got != 25 {
		t.Errorf("StepSize = %d, want 25", got)
	}
	if got := cfg.FeatureLen(); got != 32 {
		t.Errorf("FeatureLen = %d, want 32", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"overlap one", func(c *Config) { c.Overlap = 1 }, "overlap"},
		{"negative overlap", func(c *Config) { c.Overlap = -0.1 }, "overlap"},
		{"no channels", func(c *Config) { c.Channels = 0 }, "channels"},
		{"inverted band", func(c *Config) { c.LowCut, c.HighCut = 100, 20 }, "band"},
		{"zero votes", func(c *Config) { c.VoteCount = 0 }, "vote_count"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"no silence", func(c *Config) { c.SilenceLabel = "" }, "silence_label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}

	t.Run("notch disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NotchHz, cfg.NotchQ = 0, 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})
}

func TestDiff(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.VoteCount = 9
	b.ConfidenceThreshold = 0.9
	if d := a.Diff(b); len(d) != 0 {
		t.Errorf("inference-only changes reported: %v", d)
	}
	b.WindowMS = 300
	b.Channels = 2
	d := a.Diff(b)
	if len(d) != 3 {
		t.Fatalf("Diff = %v, want channels, window_size, step_size", d)
	}
}

func TestFrontendParity(t *testing.T) {
	cfg := DefaultConfig()
	fe, err := NewFrontend(cfg)
	if err != nil {
		t.Fatalf("NewFrontend: %v", err)
	}

	n := cfg.WindowSize()
	window := make([][]float64, n)
	labels := make([]string, n)
	for i := range window {
		window[i] = make([]float64, cfg.Channels)
		for ch := range window[i] {
			window[i][ch] = 500 + float64(ch+1)*40*math.Sin(2*math.Pi*45*float64(i)/cfg.SampleRate)
		}
		labels[i] = "go"
	}

	live, err := fe.Window(window)
	if err != nil {
		t.Fatal(err)
	}
	batch, got, err := fe.Matrix(window, labels)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || got[0] != "go" {
		t.Fatalf("Matrix returned %d windows (%v)", len(batch), got)
	}
	if len(live) != cfg.FeatureLen() {
		t.Fatalf("len = %d, want %d", len(live), cfg.FeatureLen())
	}
	for i := range live {
		if live[i] != batch[0][i] {
			t.Fatalf("feature %d: live %v != batch %v", i, live[i], batch[0][i])
		}
	}
}

func TestFrontendChannelMismatch(t *testing.T) {
	fe, err := NewFrontend(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fe.Window([][]float64{{1, 2}}); err == nil {
		t.Error("expected channel count error")
	}
}

func TestFrontendEmptyWindow(t *testing.T) {
	cfg := DefaultConfig()
	fe, err := NewFrontend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, window := range [][][]float64{nil, {}} {
		got, err := fe.Window(window)
		if err != nil {
			t.Fatalf("Window: %v", err)
		}
		if len(got) != cfg.FeatureLen() {
			t.Fatalf("len = %d, want %d", len(got), cfg.FeatureLen())
		}
		for i, v := range got {
			if v != 0 {
				t.Errorf("feature %d = %g, want 0", i, v)
			}
		}
	}
}
