package features

import (
	"math"
	"testing"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(Config{WindowSize: 50, StepSize: 25, ZeroCrossFraction: DefaultZeroCrossFraction})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func assertVector(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("[%d] %s = %v, want %v", i, Names[i%NumDescriptors], got[i], want[i])
		}
	}
}

func TestWindowAndStepSize(t *testing.T) {
	tests := []struct {
		ms, rate float64
		overlap  float64
		window   int
		step     int
	}{
		{250, 200, 0.5, 50, 25},
		{250, 200, 0, 50, 50},
		{100, 1000, 0.75, 100, 25},
		{250, 200, 0.999, 50, 1},
		{1, 10, 0.5, 1, 1},
	}
	for _, tt := range tests {
		w := WindowSize(tt.ms, tt.rate)
		if w != tt.window {
			t.Errorf("WindowSize(%v, %v) = %d, want %d", tt.ms, tt.rate, w, tt.window)
		}
		if s := StepSize(w, tt.overlap); s != tt.step {
			t.Errorf("StepSize(%d, %v) = %d, want %d", w, tt.overlap, s, tt.step)
		}
	}
}

func TestExtract(t *testing.T) {
	e := newTestExtractor(t)

	t.Run("alternating", func(t *testing.T) {
		got := e.Extract([]float64{1, -1, 1, -1})
		assertVector(t, got, []float64{1, 1, 6, 1, 4, 3, 2, 2})
	})

	t.Run("constant", func(t *testing.T) {
		got := e.Extract([]float64{3, 3, 3, 3, 3})
		assertVector(t, got, []float64{3, 3, 0, 0, 15, 0, 0, 0})
	})

	t.Run("empty", func(t *testing.T) {
		got := e.Extract(nil)
		assertVector(t, got, make([]float64, NumDescriptors))
	})

	t.Run("single sample", func(t *testing.T) {
		got := e.Extract([]float64{-2})
		assertVector(t, got, []float64{2, 2, 0, 0, 2, 0, 0, 0})
	})

	t.Run("zero crossing dead band", func(t *testing.T) {
		got := e.Extract([]float64{0.001, -0.001, 10, -10})
		if got[5] != 2 {
			t.Errorf("zc = %v, want 2", got[5])
		}
	})

	t.Run("slope sign changes", func(t *testing.T) {
		got := e.Extract([]float64{0, 1, 2, 1, 0, 1})
		if got[6] != 2 {
			t.Errorf("ssc = %v, want 2", got[6])
		}
	})
}

func TestExtractWindowChannelMajor(t *testing.T) {
	e := newTestExtractor(t)
	window := [][]float64{
		{1, 3},
		{-1, 3},
		{1, 3},
		{-1, 3},
	}
	got := e.ExtractWindow(window)
	if len(got) != e.Len(2) {
		t.Fatalf("len = %d, want %d", len(got), e.Len(2))
	}
	assertVector(t, got[:NumDescriptors], e.Extract([]float64{1, -1, 1, -1}))
	assertVector(t, got[NumDescriptors:], e.Extract([]float64{3, 3, 3, 3}))
}

func TestBuildMatrix(t *testing.T) {
	e := newTestExtractor(t)

	signal := make([][]float64, 100)
	labels := make([]string, 100)
	for i := range signal {
		signal[i] = []float64{float64(i % 7), float64(i % 3)}
		labels[i] = "a"
		if i >= 50 {
			labels[i] = "b"
		}
	}
	labels[25] = "center0"
	labels[75] = "center2"

	vectors, got, err := e.BuildMatrix(signal, labels)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"center0", "b", "center2"}
	if len(got) != len(want) || len(vectors) != len(want) {
		t.Fatalf("got %d windows / %d labels, want %d", len(vectors), len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("label[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	assertVector(t, vectors[1], e.ExtractWindow(signal[25:75]))

	t.Run("short signal", func(t *testing.T) {
		v, l, err := e.BuildMatrix(signal[:49], labels[:49])
		if err != nil {
			t.Fatal(err)
		}
		if len(v) != 0 || len(l) != 0 {
			t.Errorf("got %d windows, want 0", len(v))
		}
	})

	t.Run("label mismatch", func(t *testing.T) {
		if _, _, err := e.BuildMatrix(signal, labels[:10]); err == nil {
			t.Error("expected error")
		}
	})
}

func TestNewExtractorValidation(t *testing.T) {
	for _, cfg := range []Config{
		{WindowSize: 0, StepSize: 1},
		{WindowSize: 10, StepSize: 0},
		{WindowSize: 10, StepSize: 5, ZeroCrossFraction: -1},
	} {
		if _, err := NewExtractor(cfg); err == nil {
			t.Errorf("NewExtractor(%+v): expected error", cfg)
		}
	}
}
