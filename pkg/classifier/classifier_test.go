package classifier

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
)

// blobs returns n points per class around well separated centres.
func blobs(n int, seed uint64) ([][]float64, []string) {
	centres := map[string][2]float64{
		"go":      {10, 0},
		"no":      {0, 10},
		"silence": {0, 0},
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	var (
		x [][]float64
		y []string
	)
	for _, label := range []string{"silence", "go", "no"} {
		c := centres[label]
		for range n {
			x = append(x, []float64{c[0] + rng.NormFloat64()*0.5, c[1] + rng.NormFloat64()*0.5, rng.NormFloat64()})
			y = append(y, label)
		}
	}
	return x, y
}

func TestRegistry(t *testing.T) {
	kinds := Kinds()
	for _, want := range []string{"knn", "softmax"} {
		found := false
		for _, k := range kinds {
			found = found || k == want
		}
		if !found {
			t.Errorf("kind %q not registered (have %v)", want, kinds)
		}
	}

	clf, err := New("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if clf.Kind() != DefaultKind {
		t.Errorf("default kind = %q, want %q", clf.Kind(), DefaultKind)
	}

	if _, err := New("svm-quantum", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}

	knn, err := New("knn", Params{"k": 3})
	if err != nil {
		t.Fatal(err)
	}
	if knn.(*KNN).K != 3 {
		t.Errorf("k = %d, want 3", knn.(*KNN).K)
	}
}

func TestClassifiers(t *testing.T) {
	x, y := blobs(30, 1)
	scaler, err := FitScaler(x)
	if err != nil {
		t.Fatal(err)
	}
	xs, err := scaler.TransformAll(x)
	if err != nil {
		t.Fatal(err)
	}

	for _, kind := range []string{"softmax", "knn"} {
		t.Run(kind, func(t *testing.T) {
			clf, err := New(kind, nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := clf.Predict(xs[0]); !errors.Is(err, ErrNotFitted) {
				t.Errorf("predict before fit: err = %v, want ErrNotFitted", err)
			}
			if err := clf.Fit(xs, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}

			want := []string{"go", "no", "silence"}
			got := clf.Classes()
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("classes = %v, want %v", got, want)
			}

			pred, err := PredictAll(clf, xs)
			if err != nil {
				t.Fatal(err)
			}
			if acc := Accuracy(y, pred); acc != 1 {
				t.Errorf("training accuracy = %v, want 1", acc)
			}

			proba, err := clf.PredictProba(xs[0])
			if err != nil {
				t.Fatal(err)
			}
			var sum float64
			for _, p := range proba {
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("probabilities sum to %v", sum)
			}

			if _, err := clf.PredictProba([]float64{1}); err == nil {
				t.Error("wrong dimension: expected error")
			}

			data, err := clf.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			restored, err := New(kind, nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := restored.UnmarshalBinary(data); err != nil {
				t.Fatalf("UnmarshalBinary: %v", err)
			}
			for i, row := range xs {
				a, pa, _ := clf.Predict(row)
				b, pb, _ := restored.Predict(row)
				if a != b || pa != pb {
					t.Fatalf("row %d: %s/%v before, %s/%v after round trip", i, a, pa, b, pb)
				}
			}
		})
	}
}

func TestFitErrors(t *testing.T) {
	clf := &Softmax{LearningRate: 0.5, Epochs: 10}
	if err := clf.Fit(nil, nil); err == nil {
		t.Error("empty set: expected error")
	}
	if err := clf.Fit([][]float64{{1}, {2}}, []string{"a"}); err == nil {
		t.Error("label count mismatch: expected error")
	}
	if err := clf.Fit([][]float64{{1}, {2, 3}}, []string{"a", "b"}); err == nil {
		t.Error("ragged rows: expected error")
	}
	if err := (&KNN{}).Fit([][]float64{{1}}, []string{"a"}); err == nil {
		t.Error("k = 0: expected error")
	}
}

func TestScaler(t *testing.T) {
	x := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitScaler(x)
	if err != nil {
		t.Fatal(err)
	}
	if s.Mean[0] != 3 || s.Mean[1] != 5 {
		t.Errorf("mean = %v", s.Mean)
	}
	if math.Abs(s.Scale[0]-math.Sqrt(8.0/3)) > 1e-12 {
		t.Errorf("scale[0] = %v", s.Scale[0])
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant feature scale = %v, want 1", s.Scale[1])
	}
	v, err := s.Transform([]float64{3, 7})
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 0 || v[1] != 2 {
		t.Errorf("Transform = %v, want [0 2]", v)
	}
	if _, err := s.Transform([]float64{1}); err == nil {
		t.Error("wrong dimension: expected error")
	}
	if _, err := FitScaler(nil); err == nil {
		t.Error("empty matrix: expected error")
	}
}

func TestStratifiedKFold(t *testing.T) {
	var y []string
	for range 25 {
		y = append(y, "a")
	}
	for range 10 {
		y = append(y, "b")
	}

	folds, err := StratifiedKFold(y, 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(folds) != 5 {
		t.Fatalf("got %d folds", len(folds))
	}
	seen := make(map[int]int)
	for n, f := range folds {
		if len(f.Train)+len(f.Test) != len(y) {
			t.Errorf("fold %d covers %d samples", n, len(f.Train)+len(f.Test))
		}
		var a, b int
		for _, i := range f.Test {
			seen[i]++
			if y[i] == "a" {
				a++
			} else {
				b++
			}
		}
		if a != 5 || b != 2 {
			t.Errorf("fold %d test has %d a / %d b, want 5 / 2", n, a, b)
		}
	}
	for i := range y {
		if seen[i] != 1 {
			t.Errorf("sample %d tested %d times", i, seen[i])
		}
	}

	again, _ := StratifiedKFold(y, 5, 42)
	for n := range folds {
		for i := range folds[n].Test {
			if folds[n].Test[i] != again[n].Test[i] {
				t.Fatalf("fold %d differs between runs with the same seed", n)
			}
		}
	}

	if _, err := StratifiedKFold(y, 1, 42); err == nil {
		t.Error("k = 1: expected error")
	}
	if _, err := StratifiedKFold(y[:3], 5, 42); err == nil {
		t.Error("fewer samples than folds: expected error")
	}
}

func TestCrossValidate(t *testing.T) {
	x, y := blobs(20, 7)
	scaler, err := FitScaler(x)
	if err != nil {
		t.Fatal(err)
	}
	xs, _ := scaler.TransformAll(x)
	res, err := CrossValidate(func() (Classifier, error) { return New("softmax", nil) }, xs, y, 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Folds) != 5 {
		t.Fatalf("got %d fold scores", len(res.Folds))
	}
	if res.Mean < 0.95 {
		t.Errorf("mean accuracy = %v on separable data", res.Mean)
	}
}

func TestReport(t *testing.T) {
	labels := []string{"go", "silence"}
	truth := []string{"go", "go", "go", "silence", "silence"}
	pred := []string{"go", "go", "silence", "silence", "silence"}

	cm := NewConfusionMatrix(labels, truth, pred)
	if cm.Counts[0][0] != 2 || cm.Counts[0][1] != 1 || cm.Counts[1][1] != 2 || cm.Counts[1][0] != 0 {
		t.Errorf("counts = %v", cm.Counts)
	}

	r := NewReport(labels, truth, pred)
	if r.Accuracy != 0.8 {
		t.Errorf("accuracy = %v", r.Accuracy)
	}
	goM := r.Classes[0]
	if goM.Precision != 1 || math.Abs(goM.Recall-2.0/3) > 1e-12 || goM.Support != 3 {
		t.Errorf("go metrics = %+v", goM)
	}
	sil := r.Classes[1]
	if math.Abs(sil.Precision-2.0/3) > 1e-12 || sil.Recall != 1 || sil.Support != 2 {
		t.Errorf("silence metrics = %+v", sil)
	}

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "silence") {
		t.Errorf("report output missing class row:\n%s", buf.String())
	}
	buf.Reset()
	if _, err := cm.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "true\\pred") {
		t.Errorf("matrix output missing header:\n%s", buf.String())
	}
}
