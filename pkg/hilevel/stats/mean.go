// Package stats holds statistics reducers over descriptor sequences.
package stats

import (
	"errors"

	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
)

// ErrEmptyInput is returned by reducers given an empty sequence. The mean of
// nothing is undefined and is reported rather than written as NaN.
var ErrEmptyInput = errors.New("empty input sequence")

// MeanInfo identifies the Mean algorithm.
var MeanInfo = algorithm.Info{
	Name:        "Mean",
	Category:    "Statistics",
	Description: "Computes the arithmetic mean of an array.",
}

// Mean reduces the "array" input to its arithmetic mean on the "mean" output.
type Mean struct {
	algorithm.Base
	array *algorithm.Port
	mean  *algorithm.Port
}

// NewMean returns an unbound Mean.
func NewMean() *Mean {
	m := &Mean{Base: algorithm.NewBase(MeanInfo)}
	m.array = m.DeclareInput("array", algorithm.TypeReals, "the input array")
	m.mean = m.DeclareOutput("mean", algorithm.TypeReal, "the mean of the input array")
	return m
}

// NewMeanFactory adapts NewMean to algorithm.Factory. Mean takes no
// parameters.
func NewMeanFactory(algorithm.Params) (algorithm.Algorithm, error) {
	return NewMean(), nil
}

// Compute implements algorithm.Algorithm.
func (m *Mean) Compute() error {
	xs, err := algorithm.Get[[]float64](m.array)
	if err != nil {
		return err
	}
	v, err := MeanOf(xs)
	if err != nil {
		return err
	}
	return algorithm.Put(m.mean, v)
}

// Clone implements algorithm.Cloner.
func (m *Mean) Clone() algorithm.Algorithm {
	return NewMean()
}

// MeanOf returns the arithmetic mean of xs.
func MeanOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrEmptyInput
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), nil
}
