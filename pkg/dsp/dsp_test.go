package dsp

import (
	"math"
	"testing"
)

func sine(n int, hz, fs, amp, offset float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = offset + amp*math.Sin(2*math.Pi*hz*float64(i)/fs)
	}
	return x
}

func TestButterworthResponse(t *testing.T) {
	c, err := Butterworth(4, 20, 100, 200)
	if err != nil {
		t.Fatalf("Butterworth: %v", err)
	}
	if got := len(c.B); got != 9 {
		t.Fatalf("len(B) = %d, want 9", got)
	}
	if c.A[0] != 1 {
		t.Errorf("A[0] = %v, want 1", c.A[0])
	}

	tests := []struct {
		hz   float64
		want float64
		tol  float64
	}{
		{20, 1 / math.Sqrt2, 1e-3},
		{45, 1, 1e-3},
		{60, 1, 1e-3},
		{1, 0, 1e-3},
	}
	for _, tt := range tests {
		if got := c.Gain(tt.hz, 200); math.Abs(got-tt.want) > tt.tol {
			t.Errorf("gain at %v Hz = %v, want %v", tt.hz, got, tt.want)
		}
	}
}

func TestButterworthErrors(t *testing.T) {
	if _, err := Butterworth(0, 20, 100, 200); err == nil {
		t.Error("order 0: expected error")
	}
	if _, err := Butterworth(4, 20, 100, 0); err == nil {
		t.Error("fs 0: expected error")
	}
	if _, err := Butterworth(4, 150, 120, 200); err == nil {
		t.Error("both cutoffs above Nyquist: expected error")
	}
}

func TestNotchResponse(t *testing.T) {
	c, err := Notch(60, 30, 200)
	if err != nil {
		t.Fatalf("Notch: %v", err)
	}
	if got := c.Gain(60, 200); got > 1e-6 {
		t.Errorf("gain at 60 Hz = %v, want ~0", got)
	}
	if got := c.Gain(30, 200); got < 0.99 {
		t.Errorf("gain at 30 Hz = %v, want ~1", got)
	}
	if got := c.Gain(0, 200); math.Abs(got-1) > 1e-9 {
		t.Errorf("DC gain = %v, want 1", got)
	}
}

func TestSteadyState(t *testing.T) {
	c, err := Notch(60, 30, 200)
	if err != nil {
		t.Fatal(err)
	}
	zi, err := steadyState(c)
	if err != nil {
		t.Fatal(err)
	}
	ones := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	for i, v := range lfilter(c, ones, zi) {
		if math.Abs(v-1) > 1e-9 {
			t.Errorf("y[%d] = %v, want 1 (no transient from steady state)", i, v)
		}
	}
}

func TestOddExtend(t *testing.T) {
	got := oddExtend([]float64{1, 2, 4, 7}, 2)
	want := []float64{-2, 0, 1, 2, 4, 7, 10, 12}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ext[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFiltFiltZeroPhase(t *testing.T) {
	c, err := Butterworth(4, 20, 100, 200)
	if err != nil {
		t.Fatal(err)
	}
	x := sine(400, 45, 200, 100, 0)
	y, err := FiltFilt(c, x, PadLen(4, len(x)))
	if err != nil {
		t.Fatal(err)
	}
	if len(y) != len(x) {
		t.Fatalf("len = %d, want %d", len(y), len(x))
	}
	// In-band and zero phase: the middle of the output tracks the input.
	for i := 100; i < 300; i++ {
		if math.Abs(y[i]-x[i]) > 2 {
			t.Fatalf("y[%d] = %v, x[%d] = %v", i, y[i], i, x[i])
		}
	}
}

func TestFiltFiltPadLen(t *testing.T) {
	c, _ := Notch(60, 30, 200)
	if _, err := FiltFilt(c, []float64{1, 2, 3}, 3); err == nil {
		t.Error("padlen == len(x): expected error")
	}
	if _, err := FiltFilt(Coeffs{}, []float64{1, 2, 3}, 0); err == nil {
		t.Error("empty coefficients: expected error")
	}
}

func TestConditioner(t *testing.T) {
	cond, err := NewConditioner(DefaultConfig())
	if err != nil {
		t.Fatalf("NewConditioner: %v", err)
	}

	t.Run("short signal passes through", func(t *testing.T) {
		x := []float64{5, 6, 7, 8, 9}
		got := cond.Condition(x)
		for i := range x {
			if got[i] != x[i] {
				t.Errorf("got[%d] = %v, want %v", i, got[i], x[i])
			}
		}
		got[0] = 100
		if x[0] != 5 {
			t.Error("Condition must not alias its input")
		}
	})

	t.Run("removes offset", func(t *testing.T) {
		x := sine(400, 45, 200, 50, 512)
		y := cond.Condition(x)
		var mean float64
		for _, v := range y[100:300] {
			mean += v
		}
		mean /= 200
		if math.Abs(mean) > 1 {
			t.Errorf("mean = %v, want ~0", mean)
		}
	})

	t.Run("removes mains", func(t *testing.T) {
		x := sine(400, 60, 200, 50, 0)
		y := cond.Condition(x)
		if amp := AmplitudeAt(y[100:300], 200, 60); amp > 2 {
			t.Errorf("60 Hz amplitude after notch = %v", amp)
		}
	})

	t.Run("channels", func(t *testing.T) {
		a := sine(100, 45, 200, 10, 300)
		b := sine(100, 30, 200, 20, -300)
		samples := make([][]float64, 100)
		for i := range samples {
			samples[i] = []float64{a[i], b[i]}
		}
		out, err := cond.ConditionChannels(samples)
		if err != nil {
			t.Fatal(err)
		}
		ca, cb := cond.Condition(a), cond.Condition(b)
		for i := range out {
			if out[i][0] != ca[i] || out[i][1] != cb[i] {
				t.Fatalf("row %d = %v, want [%v %v]", i, out[i], ca[i], cb[i])
			}
		}
		if _, err := cond.ConditionChannels([][]float64{{1, 2}, {1}}); err == nil {
			t.Error("ragged input: expected error")
		}
	})
}

func TestDominantFrequency(t *testing.T) {
	x := sine(200, 40, 200, 3, 10)
	hz, amp := DominantFrequency(x, 200)
	if math.Abs(hz-40) > 1e-9 {
		t.Errorf("hz = %v, want 40", hz)
	}
	if math.Abs(amp-3) > 1e-6 {
		t.Errorf("amp = %v, want 3", amp)
	}
}
