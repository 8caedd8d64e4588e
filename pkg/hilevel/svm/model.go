package svm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reduce names a reduction applied to a sequence descriptor before it enters
// the feature vector.
type Reduce string

const (
	ReduceNone Reduce = ""
	ReduceMean Reduce = "mean"
)

// Feature selects values from one descriptor.
//
// In a model file a feature is either a bare descriptor key or a mapping:
//
//	features:
//	  - lowlevel.spectral_centroid.mean
//	  - key: lowlevel.mfcc.mean
//	    indices: [1, 2, 3]
//	  - key: rhythm.beats_loudness
//	    reduce: mean
type Feature struct {
	Key     string `yaml:"key"`
	Indices []int  `yaml:"indices,omitempty"`
	Reduce  Reduce `yaml:"reduce,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (f *Feature) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		f.Key = n.Value
		return nil
	}
	type plain Feature
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*f = Feature(p)
	return nil
}

// Normalization is a per-dimension z-score applied before scoring.
type Normalization struct {
	Mean []float64 `yaml:"mean"`
	Std  []float64 `yaml:"std"`
}

// Model is one trained linear multi-class classifier. Scores are
// weights·x + bias per class, turned into probabilities with softmax.
type Model struct {
	Name          string         `yaml:"name"`
	Classes       []string       `yaml:"classes"`
	Features      []Feature      `yaml:"features"`
	Normalization *Normalization `yaml:"normalization,omitempty"`
	Weights       [][]float64    `yaml:"weights"`
	Bias          []float64      `yaml:"bias,omitempty"`

	// Path is the file the model was loaded from.
	Path string `yaml:"-"`
}

// LoadModel reads and validates a model file. A model without a name is
// named after its file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m.Path = path
	if m.Name == "" {
		base := filepath.Base(path)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

// Dim is the feature vector length the model expects.
func (m *Model) Dim() int {
	if len(m.Weights) == 0 {
		return 0
	}
	return len(m.Weights[0])
}

// Validate checks that the model's shapes agree.
func (m *Model) Validate() error {
	if err := validName("name", m.Name); err != nil {
		return err
	}
	if len(m.Classes) < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", len(m.Classes))
	}
	seen := make(map[string]bool, len(m.Classes))
	for _, c := range m.Classes {
		if err := validName("class", c); err != nil {
			return err
		}
		if seen[c] {
			return fmt.Errorf("duplicate class %q", c)
		}
		seen[c] = true
	}

	if len(m.Features) == 0 {
		return errors.New("no features")
	}
	for i, f := range m.Features {
		if f.Key == "" {
			return fmt.Errorf("feature %d: empty key", i)
		}
		switch f.Reduce {
		case ReduceNone, ReduceMean:
		default:
			return fmt.Errorf("feature %s: unknown reduce %q", f.Key, f.Reduce)
		}
		if f.Reduce != ReduceNone && len(f.Indices) > 0 {
			return fmt.Errorf("feature %s: indices and reduce are exclusive", f.Key)
		}
		if slices.ContainsFunc(f.Indices, func(i int) bool { return i < 0 }) {
			return fmt.Errorf("feature %s: negative index", f.Key)
		}
	}

	if len(m.Weights) != len(m.Classes) {
		return fmt.Errorf("weights has %d rows for %d classes", len(m.Weights), len(m.Classes))
	}
	dim := m.Dim()
	if dim == 0 {
		return errors.New("empty weight rows")
	}
	for i, row := range m.Weights {
		if len(row) != dim {
			return fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), dim)
		}
	}
	if m.Bias != nil && len(m.Bias) != len(m.Classes) {
		return fmt.Errorf("bias has %d values for %d classes", len(m.Bias), len(m.Classes))
	}

	if n := m.Normalization; n != nil {
		if len(n.Mean) != dim || len(n.Std) != dim {
			return fmt.Errorf("normalization has %d/%d values, want %d", len(n.Mean), len(n.Std), dim)
		}
		for i, s := range n.Std {
			if s == 0 || math.IsNaN(s) {
				return fmt.Errorf("normalization std[%d] is %v", i, s)
			}
		}
	}
	return nil
}

// Predict returns the class probabilities for x, in Classes order. x must
// have Dim values.
func (m *Model) Predict(x []float64) ([]float64, error) {
	if len(x) != m.Dim() {
		return nil, fmt.Errorf("model %s: feature vector has %d values, want %d", m.Name, len(x), m.Dim())
	}

	z := x
	if n := m.Normalization; n != nil {
		z = make([]float64, len(x))
		for i := range x {
			z[i] = (x[i] - n.Mean[i]) / n.Std[i]
		}
	}

	scores := make([]float64, len(m.Classes))
	for c, row := range m.Weights {
		var s float64
		for i, w := range row {
			s += w * z[i]
		}
		if m.Bias != nil {
			s += m.Bias[c]
		}
		scores[c] = s
	}
	return softmax(scores), nil
}

func softmax(scores []float64) []float64 {
	maxScore := slices.Max(scores)
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// validName rejects names that would not form a single key segment.
func validName(what, s string) error {
	if s == "" {
		return fmt.Errorf("empty %s", what)
	}
	if strings.Contains(s, ".") {
		return fmt.Errorf("%s %q must not contain '.'", what, s)
	}
	return nil
}
