// Package classifier defines the classification capability used by the
// trainer and the live loop, together with the scaler, cross-validation and
// evaluation helpers that surround it.
//
// # Kinds
//
// Implementations register themselves under a kind name:
//
//   - "softmax": multinomial logistic regression trained by full-batch
//     gradient descent with L2 regularization. The default.
//   - "knn": distance-weighted k-nearest neighbours.
//
// Callers obtain an instance with [New] and depend only on [Classifier].
// The fitted state of a classifier round-trips through MarshalBinary and
// UnmarshalBinary, which is how model artifacts persist it.
//
// # Thread Safety
//
// Fit must not run concurrently with any other method. After Fit (or
// UnmarshalBinary) returns, Predict, PredictProba and Classes are safe for
// concurrent use.
package classifier

import (
	"encoding"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// Sentinel errors.
var (
	// ErrNotFitted is returned by prediction methods before Fit.
	ErrNotFitted = errors.New("classifier: not fitted")

	// ErrUnknownKind is returned by New for an unregistered kind.
	ErrUnknownKind = errors.New("classifier: unknown kind")
)

// DefaultKind is the classifier kind used when none is configured.
const DefaultKind = "softmax"

// Classifier maps feature vectors to class labels.
type Classifier interface {
	// Kind returns the registered kind name.
	Kind() string

	// Fit trains on the rows of x with labels y, replacing any previous
	// state. Classes are the sorted distinct values of y.
	Fit(x [][]float64, y []string) error

	// PredictProba returns one probability per class, in Classes order.
	PredictProba(x []float64) ([]float64, error)

	// Predict returns the most probable label and its probability.
	Predict(x []float64) (string, float64, error)

	// Classes returns the ordered class labels.
	Classes() []string

	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Params carries kind-specific hyperparameters. Unknown keys are ignored.
type Params map[string]float64

// Float returns p[key], or def if unset.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns p[key] truncated to int, or def if unset.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Factory builds an unfitted classifier.
type Factory func(Params) Classifier

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a classifier kind available to New. It panics if kind is
// registered twice.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("classifier: Register called twice for kind " + strconv.Quote(kind))
	}
	registry[kind] = f
}

// New returns an unfitted classifier of the given kind. An empty kind
// selects DefaultKind.
func New(kind string, params Params) (Classifier, error) {
	if kind == "" {
		kind = DefaultKind
	}
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownKind, kind, Kinds())
	}
	return f(params), nil
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// classIndex returns the sorted distinct labels of y and each sample's
// index into them.
func classIndex(y []string) ([]string, []int) {
	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	idx := make([]int, len(y))
	for i, l := range y {
		idx[i], _ = slices.BinarySearch(classes, l)
	}
	return classes, idx
}

// checkTrainingSet validates the shape of a training set and returns the
// feature dimension.
func checkTrainingSet(x [][]float64, y []string) (int, error) {
	if len(x) == 0 {
		return 0, errors.New("classifier: empty training set")
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("classifier: %d rows but %d labels", len(x), len(y))
	}
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return 0, fmt.Errorf("classifier: row %d has %d features, want %d", i, len(row), dim)
		}
	}
	return dim, nil
}

// argmax returns the label with the highest probability. Ties go to the
// first class in order.
func argmax(classes []string, proba []float64) (string, float64) {
	best := 0
	for i := range proba {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return classes[best], proba[best]
}
