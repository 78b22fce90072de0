package classifier

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
)

func init() {
	Register("knn", func(p Params) Classifier {
		return &KNN{K: p.Int("k", 5)}
	})
}

// KNN is a distance-weighted k-nearest-neighbour classifier. Each of the K
// closest training points votes for its class with weight 1/(d+eps).
type KNN struct {
	K int

	classes []string
	points  [][]float64
	labels  []int
}

const knnEpsilon = 1e-9

type knnState struct {
	K       int         `msgpack:"k"`
	Classes []string    `msgpack:"classes"`
	Points  [][]float64 `msgpack:"points"`
	Labels  []int       `msgpack:"labels"`
}

// Kind implements Classifier.
func (m *KNN) Kind() string { return "knn" }

// Classes implements Classifier.
func (m *KNN) Classes() []string { return slices.Clone(m.classes) }

// Fit implements Classifier.
func (m *KNN) Fit(x [][]float64, y []string) error {
	if _, err := checkTrainingSet(x, y); err != nil {
		return err
	}
	if m.K < 1 {
		return fmt.Errorf("classifier: knn needs k >= 1, got %d", m.K)
	}
	m.classes, m.labels = classIndex(y)
	m.points = make([][]float64, len(x))
	for i, row := range x {
		m.points[i] = slices.Clone(row)
	}
	return nil
}

// PredictProba implements Classifier.
func (m *KNN) PredictProba(x []float64) ([]float64, error) {
	if m.points == nil {
		return nil, ErrNotFitted
	}
	if dim := len(m.points[0]); len(x) != dim {
		return nil, fmt.Errorf("classifier: expected %d features, got %d", dim, len(x))
	}
	type neighbour struct {
		dist float64
		idx  int
	}
	nb := make([]neighbour, len(m.points))
	for i, p := range m.points {
		nb[i] = neighbour{dist: floats.Distance(p, x, 2), idx: i}
	}
	slices.SortFunc(nb, func(a, b neighbour) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	proba := make([]float64, len(m.classes))
	var total float64
	for _, n := range nb[:min(m.K, len(nb))] {
		w := 1 / (n.dist + knnEpsilon)
		proba[m.labels[n.idx]] += w
		total += w
	}
	floats.Scale(1/total, proba)
	return proba, nil
}

// Predict implements Classifier.
func (m *KNN) Predict(x []float64) (string, float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return "", 0, err
	}
	label, p := argmax(m.classes, proba)
	return label, p, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *KNN) MarshalBinary() ([]byte, error) {
	if m.points == nil {
		return nil, ErrNotFitted
	}
	return msgpack.Marshal(knnState{K: m.K, Classes: m.classes, Points: m.points, Labels: m.labels})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *KNN) UnmarshalBinary(data []byte) error {
	var st knnState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("classifier: decode knn state: %w", err)
	}
	if len(st.Points) == 0 || len(st.Points) != len(st.Labels) {
		return fmt.Errorf("classifier: knn state has %d points and %d labels", len(st.Points), len(st.Labels))
	}
	m.K, m.classes, m.points, m.labels = st.K, st.Classes, st.Points, st.Labels
	return nil
}
