package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance.
type Scaler struct {
	Mean  []float64 `msgpack:"mean"`
	Scale []float64 `msgpack:"scale"`
}

// FitScaler computes per-feature mean and population standard deviation
// over the rows of x. Constant features get scale 1.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, errors.New("classifier: cannot fit scaler on empty matrix")
	}
	dim := len(x[0])
	s := &Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	col := make([]float64, len(x))
	for j := range dim {
		for i, row := range x {
			if len(row) != dim {
				return nil, fmt.Errorf("classifier: row %d has %d features, want %d", i, len(row), dim)
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = math.Sqrt(variance)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

// Dim returns the number of features the scaler was fitted on.
func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform returns the standardized copy of v.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("classifier: scaler expects %d features, got %d", len(s.Mean), len(v))
	}
	out := make([]float64, len(v))
	for i := range v {
		out[i] = (v[i] - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// TransformAll standardizes every row of x.
func (s *Scaler) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		v, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
