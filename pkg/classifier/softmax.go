package classifier

import (
	"fmt"
	"math"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
)

func init() {
	Register("softmax", func(p Params) Classifier {
		return &Softmax{
			LearningRate: p.Float("learning_rate", 0.5),
			Epochs:       p.Int("epochs", 500),
			L2:           p.Float("l2", 1e-4),
		}
	})
}

// Softmax is a multinomial logistic regression classifier. Training is
// deterministic: weights start at zero and every epoch uses the full batch.
type Softmax struct {
	LearningRate float64
	Epochs       int
	L2           float64

	classes []string
	// weights[c] holds the coefficients of class c followed by its bias.
	weights [][]float64
}

type softmaxState struct {
	Classes []string    `msgpack:"classes"`
	Weights [][]float64 `msgpack:"weights"`
}

// Kind implements Classifier.
func (s *Softmax) Kind() string { return "softmax" }

// Classes implements Classifier.
func (s *Softmax) Classes() []string { return slices.Clone(s.classes) }

// Fit implements Classifier.
func (s *Softmax) Fit(x [][]float64, y []string) error {
	dim, err := checkTrainingSet(x, y)
	if err != nil {
		return err
	}
	if s.Epochs < 1 || s.LearningRate <= 0 {
		return fmt.Errorf("classifier: softmax needs positive epochs and learning rate, got %d and %g", s.Epochs, s.LearningRate)
	}
	classes, target := classIndex(y)
	k := len(classes)

	w := make([][]float64, k)
	grad := make([][]float64, k)
	for c := range k {
		w[c] = make([]float64, dim+1)
		grad[c] = make([]float64, dim+1)
	}
	proba := make([]float64, k)
	n := float64(len(x))

	for range s.Epochs {
		for c := range grad {
			clear(grad[c])
		}
		for i, row := range x {
			scores(w, row, proba)
			softmaxInPlace(proba)
			for c := range k {
				g := proba[c]
				if target[i] == c {
					g -= 1
				}
				floats.AddScaled(grad[c][:dim], g, row)
				grad[c][dim] += g
			}
		}
		for c := range k {
			for j := range w[c] {
				step := grad[c][j] / n
				if j < dim {
					step += s.L2 * w[c][j]
				}
				w[c][j] -= s.LearningRate * step
			}
		}
	}

	s.classes = classes
	s.weights = w
	return nil
}

// PredictProba implements Classifier.
func (s *Softmax) PredictProba(x []float64) ([]float64, error) {
	if s.weights == nil {
		return nil, ErrNotFitted
	}
	if dim := len(s.weights[0]) - 1; len(x) != dim {
		return nil, fmt.Errorf("classifier: expected %d features, got %d", dim, len(x))
	}
	proba := make([]float64, len(s.classes))
	scores(s.weights, x, proba)
	softmaxInPlace(proba)
	return proba, nil
}

// Predict implements Classifier.
func (s *Softmax) Predict(x []float64) (string, float64, error) {
	proba, err := s.PredictProba(x)
	if err != nil {
		return "", 0, err
	}
	label, p := argmax(s.classes, proba)
	return label, p, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Softmax) MarshalBinary() ([]byte, error) {
	if s.weights == nil {
		return nil, ErrNotFitted
	}
	return msgpack.Marshal(softmaxState{Classes: s.classes, Weights: s.weights})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Softmax) UnmarshalBinary(data []byte) error {
	var st softmaxState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("classifier: decode softmax state: %w", err)
	}
	if len(st.Classes) == 0 || len(st.Weights) != len(st.Classes) {
		return fmt.Errorf("classifier: softmax state has %d classes and %d weight rows", len(st.Classes), len(st.Weights))
	}
	s.classes = st.Classes
	s.weights = st.Weights
	return nil
}

func scores(w [][]float64, x []float64, dst []float64) {
	dim := len(x)
	for c := range w {
		dst[c] = floats.Dot(w[c][:dim], x) + w[c][dim]
	}
}

func softmaxInPlace(v []float64) {
	m := floats.Max(v)
	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - m)
		sum += v[i]
	}
	floats.Scale(1/sum, v)
}
