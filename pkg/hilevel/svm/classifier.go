// Package svm implements the MusicExtractorSVM classifier ensemble: an
// ordered bank of trained models, each mapping descriptors of a pool to a
// label and class probabilities written under highlevel.<model>.
package svm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
	"github.com/cognicore/hilevel/pkg/hilevel/stats"
)

// Version and GitSHA identify the classification library. Override with
// -ldflags "-X github.com/cognicore/hilevel/pkg/hilevel/svm.GitSHA=...".
var (
	Version = "1.0.0"
	GitSHA  = "unknown"
)

// Namespace is where classification results are written.
const Namespace = "highlevel"

// Info identifies the MusicExtractorSVM algorithm.
var Info = algorithm.Info{
	Name:        "MusicExtractorSVM",
	Category:    "Classification",
	Description: "Applies an ordered bank of trained classifiers to a descriptor pool.",
}

// Classifier annotates the pool bound to its "pool" input and writes the
// results to the pool bound to its "pool" output. Binding the same pool to
// both classifies in place.
type Classifier struct {
	algorithm.Base
	models []*Model
	in     *algorithm.Port
	out    *algorithm.Port
}

// New returns a classifier over models. Models are shared, not copied, and
// must not be modified afterwards.
func New(models []*Model) *Classifier {
	c := &Classifier{Base: algorithm.NewBase(Info), models: models}
	c.in = c.DeclareInput("pool", algorithm.TypePool, "descriptors to classify")
	c.out = c.DeclareOutput("pool", algorithm.TypePool, "pool receiving highlevel annotations")
	return c
}

// NewFactory is the algorithm.Factory for MusicExtractorSVM. The "svms"
// parameter lists model files in the order they are applied. Every model is
// loaded and validated here.
func NewFactory(params algorithm.Params) (algorithm.Algorithm, error) {
	paths, err := params.GetStrings(Info.Name, "svms")
	if err != nil {
		return nil, err
	}

	models := make([]*Model, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		m, err := LoadModel(path)
		if err != nil {
			return nil, &algorithm.InvalidArgumentError{
				Algorithm: Info.Name,
				Param:     "svms",
				Reason:    fmt.Sprintf("cannot load model %s", path),
				Cause:     err,
			}
		}
		if prev, dup := names[m.Name]; dup {
			return nil, &algorithm.InvalidArgumentError{
				Algorithm: Info.Name,
				Param:     "svms",
				Reason:    fmt.Sprintf("model name %q used by both %s and %s", m.Name, prev, path),
			}
		}
		names[m.Name] = path
		models = append(models, m)
	}
	return New(models), nil
}

// Models returns the loaded models in application order.
func (c *Classifier) Models() []*Model { return slices.Clone(c.models) }

// Compute implements algorithm.Algorithm.
func (c *Classifier) Compute() error {
	src, err := algorithm.Get[*pool.Pool](c.in)
	if err != nil {
		return err
	}
	dst, err := algorithm.Get[*pool.Pool](c.out)
	if err != nil {
		return err
	}

	for _, m := range c.models {
		x, err := featureVector(m, src)
		if err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
		probs, err := m.Predict(x)
		if err != nil {
			return err
		}
		if err := writeResult(dst, m, probs); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	return nil
}

// Clone implements algorithm.Cloner.
func (c *Classifier) Clone() algorithm.Algorithm {
	return New(c.models)
}

func writeResult(p *pool.Pool, m *Model, probs []float64) error {
	best := 0
	for i, pr := range probs {
		if pr > probs[best] {
			best = i
		}
	}

	prefix := pool.Join(Namespace, m.Name)
	if err := p.Set(pool.Join(prefix, "value"), pool.String(m.Classes[best])); err != nil {
		return err
	}
	if err := p.Set(pool.Join(prefix, "probability"), pool.Real(probs[best])); err != nil {
		return err
	}
	for i, class := range m.Classes {
		if err := p.Set(pool.Join(prefix, "all", class), pool.Real(probs[i])); err != nil {
			return err
		}
	}
	return nil
}

// featureVector concatenates the model's features read from p.
func featureVector(m *Model, p *pool.Pool) ([]float64, error) {
	x := make([]float64, 0, m.Dim())
	for _, f := range m.Features {
		vals, err := featureValues(f, p)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Key, err)
		}
		x = append(x, vals...)
	}
	return x, nil
}

func featureValues(f Feature, p *pool.Pool) ([]float64, error) {
	v, err := p.Value(f.Key)
	if err != nil {
		return nil, err
	}

	var vals []float64
	switch v.Kind() {
	case pool.KindReal:
		r, _ := v.AsReal()
		vals = []float64{r}
	case pool.KindReals:
		vals, _ = v.AsReals()
	case pool.KindRealMatrix:
		rows, _ := v.AsRealMatrix()
		for _, row := range rows {
			vals = append(vals, row...)
		}
	default:
		return nil, fmt.Errorf("%w: %s is not numeric", pool.ErrTypeMismatch, v.Kind())
	}

	if f.Reduce == ReduceMean {
		m, err := mean(vals)
		if err != nil {
			return nil, err
		}
		return []float64{m}, nil
	}

	if len(f.Indices) == 0 {
		return vals, nil
	}
	out := make([]float64, len(f.Indices))
	for i, idx := range f.Indices {
		if idx >= len(vals) {
			return nil, fmt.Errorf("index %d out of range (%d values)", idx, len(vals))
		}
		out[i] = vals[idx]
	}
	return out, nil
}

// mean runs the Mean algorithm over vals. A fresh instance per call keeps
// Compute reentrant.
func mean(vals []float64) (float64, error) {
	var out float64
	m := stats.NewMean()
	if err := algorithm.Bind(m, map[string]any{"array": vals}, map[string]any{"mean": &out}); err != nil {
		return 0, err
	}
	if err := m.Compute(); err != nil {
		return 0, err
	}
	return out, nil
}

// Annotations reads back the labels and probabilities written by Compute,
// keyed by model name.
func Annotations(p *pool.Pool) (map[string]string, map[string]float64) {
	labels := make(map[string]string)
	probs := make(map[string]float64)
	for _, key := range p.DescriptorNames(Namespace) {
		segs := strings.Split(key, pool.Separator)
		if len(segs) != 3 {
			continue
		}
		switch segs[2] {
		case "value":
			if s, err := p.GetString(key); err == nil {
				labels[segs[1]] = s
			}
		case "probability":
			if f, err := p.GetReal(key); err == nil {
				probs[segs[1]] = f
			}
		}
	}
	return labels, probs
}
