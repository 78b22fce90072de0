package classifier

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// Fold is one train/test partition of sample indices.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits the indices of y into k folds whose class
// proportions follow those of y. Each class is shuffled with a generator
// seeded by seed and dealt round-robin across folds, so the split is
// reproducible.
func StratifiedKFold(y []string, k int, seed uint64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("classifier: k-fold needs k >= 2, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("classifier: cannot split %d samples into %d folds", len(y), k)
	}
	classes, idx := classIndex(y)
	byClass := make([][]int, len(classes))
	for i, c := range idx {
		byClass[c] = append(byClass[c], i)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	assign := make([]int, len(y))
	next := 0
	for _, members := range byClass {
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for _, m := range members {
			assign[m] = next % k
			next++
		}
	}

	folds := make([]Fold, k)
	for i, f := range assign {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

// CVResult summarizes a cross-validation run.
type CVResult struct {
	Folds []float64 `yaml:"folds" msgpack:"folds"`
	Mean  float64   `yaml:"mean" msgpack:"mean"`
	Std   float64   `yaml:"std" msgpack:"std"`
}

func (r CVResult) String() string {
	return fmt.Sprintf("%.3f ± %.3f", r.Mean, r.Std)
}

// CrossValidate fits a fresh classifier from newClassifier on each
// stratified fold's training rows and scores it on the held-out rows.
func CrossValidate(newClassifier func() (Classifier, error), x [][]float64, y []string, k int, seed uint64) (CVResult, error) {
	folds, err := StratifiedKFold(y, k, seed)
	if err != nil {
		return CVResult{}, err
	}
	var res CVResult
	for n, f := range folds {
		clf, err := newClassifier()
		if err != nil {
			return CVResult{}, err
		}
		if err := clf.Fit(pickRows(x, f.Train), pickLabels(y, f.Train)); err != nil {
			return CVResult{}, fmt.Errorf("classifier: fold %d: %w", n, err)
		}
		pred, err := PredictAll(clf, pickRows(x, f.Test))
		if err != nil {
			return CVResult{}, fmt.Errorf("classifier: fold %d: %w", n, err)
		}
		res.Folds = append(res.Folds, Accuracy(pickLabels(y, f.Test), pred))
	}
	res.Mean, res.Std = stat.PopMeanStdDev(res.Folds, nil)
	return res, nil
}

// PredictAll returns the predicted label of every row of x.
func PredictAll(clf Classifier, x [][]float64) ([]string, error) {
	out := make([]string, len(x))
	for i, row := range x {
		label, _, err := clf.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

func pickRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func pickLabels(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
