package svm

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
	"github.com/cognicore/hilevel/pkg/hilevel/stats"
)

func descriptors(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New()
	require.NoError(t, p.Set("lowlevel.spectral_centroid.mean", pool.Real(2100)))
	require.NoError(t, p.Set("lowlevel.mfcc.mean", pool.Reals(-600, 120, -10, 5)))
	require.NoError(t, p.Set("rhythm.beats_loudness", pool.Reals(0.1, 0.2, 0.3)))
	require.NoError(t, p.Set("rhythm.bpm", pool.Real(120)))
	return p
}

func testModels() []string {
	return []string{
		filepath.Join("testdata", "genre_rosamerica.yaml"),
		filepath.Join("testdata", "mood_happy.yaml"),
	}
}

func TestLoadModel(t *testing.T) {
	m, err := LoadModel(filepath.Join("testdata", "genre_rosamerica.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "genre_rosamerica", m.Name)
	assert.Equal(t, 4, m.Dim())
	require.Len(t, m.Features, 3)
	assert.Equal(t, Feature{Key: "lowlevel.spectral_centroid.mean"}, m.Features[0])
	assert.Equal(t, []int{1, 2}, m.Features[1].Indices)
	assert.Equal(t, ReduceMean, m.Features[2].Reduce)

	m, err = LoadModel(filepath.Join("testdata", "mood_happy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mood_happy", m.Name, "name defaults to the file name")
}

func TestModelValidate(t *testing.T) {
	valid := func() Model {
		return Model{
			Name:     "m",
			Classes:  []string{"a", "b"},
			Features: []Feature{{Key: "x"}},
			Weights:  [][]float64{{1}, {-1}},
		}
	}
	m := valid()
	require.NoError(t, m.Validate())

	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"OneClass", func(m *Model) { m.Classes = []string{"a"} }},
		{"DuplicateClass", func(m *Model) { m.Classes = []string{"a", "a"} }},
		{"DottedClass", func(m *Model) { m.Classes = []string{"a.b", "c"} }},
		{"DottedName", func(m *Model) { m.Name = "genre.x" }},
		{"RowsNotClasses", func(m *Model) { m.Weights = [][]float64{{1}} }},
		{"RaggedRows", func(m *Model) { m.Weights = [][]float64{{1}, {1, 2}} }},
		{"BadBias", func(m *Model) { m.Bias = []float64{1} }},
		{"NoFeatures", func(m *Model) { m.Features = nil }},
		{"UnknownReduce", func(m *Model) { m.Features[0].Reduce = "median" }},
		{"NormalizationLength", func(m *Model) { m.Normalization = &Normalization{Mean: []float64{0, 0}, Std: []float64{1, 1}} }},
		{"ZeroStd", func(m *Model) { m.Normalization = &Normalization{Mean: []float64{0}, Std: []float64{0}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestPredictSoftmax(t *testing.T) {
	m := &Model{
		Name:     "m",
		Classes:  []string{"a", "b"},
		Features: []Feature{{Key: "x"}},
		Weights:  [][]float64{{1}, {-1}},
	}
	probs, err := m.Predict([]float64{0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, probs, 1e-12)

	probs, err = m.Predict([]float64{1000})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(probs[0]), "large scores must not overflow")
	assert.InDelta(t, 1.0, probs[0], 1e-12)

	_, err = m.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestFactoryLoadsEagerly(t *testing.T) {
	alg, err := NewFactory(algorithm.Params{"svms": testModels()})
	require.NoError(t, err)
	c := alg.(*Classifier)
	require.Len(t, c.Models(), 2)
	assert.Equal(t, "genre_rosamerica", c.Models()[0].Name)

	_, err = NewFactory(algorithm.Params{"svms": []string{"testdata/missing.yaml"}})
	var ia *algorithm.InvalidArgumentError
	require.ErrorAs(t, err, &ia)
	assert.Equal(t, "svms", ia.Param)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewFactory(algorithm.Params{})
	assert.ErrorIs(t, err, algorithm.ErrInvalidArgument)

	dup := []string{testModels()[1], testModels()[1]}
	_, err = NewFactory(algorithm.Params{"svms": dup})
	assert.ErrorIs(t, err, algorithm.ErrInvalidArgument)

	alg, err = NewFactory(algorithm.Params{"svms": []string{}})
	require.NoError(t, err)
	assert.Empty(t, alg.(*Classifier).Models())
}

func TestFactoryRejectsCorruptModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes: [a, b]\nweights: [[1, 2], [3]]\nfeatures: [x]\n"), 0o644))

	_, err := NewFactory(algorithm.Params{"svms": []string{path}})
	assert.ErrorIs(t, err, algorithm.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "weight row 1")
}

func TestComputeInPlace(t *testing.T) {
	alg, err := NewFactory(algorithm.Params{"svms": testModels()})
	require.NoError(t, err)

	p := descriptors(t)
	require.NoError(t, algorithm.Bind(alg, map[string]any{"pool": p}, map[string]any{"pool": p}))
	require.NoError(t, alg.Compute())

	label, err := p.GetString("highlevel.mood_happy.value")
	require.NoError(t, err)
	assert.Equal(t, "happy", label)
	prob, err := p.GetReal("highlevel.mood_happy.probability")
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-12)), prob, 1e-12)

	var sum float64
	for _, class := range []string{"cla", "pop", "roc"} {
		pr, err := p.GetReal("highlevel.genre_rosamerica.all." + class)
		require.NoError(t, err)
		sum += pr
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Input descriptors are untouched.
	assert.True(t, p.Has("lowlevel.mfcc.mean"))
	assert.Equal(t, []string{
		"highlevel.genre_rosamerica.value",
		"highlevel.genre_rosamerica.probability",
		"highlevel.genre_rosamerica.all.cla",
		"highlevel.genre_rosamerica.all.pop",
		"highlevel.genre_rosamerica.all.roc",
		"highlevel.mood_happy.value",
		"highlevel.mood_happy.probability",
		"highlevel.mood_happy.all.happy",
		"highlevel.mood_happy.all.not_happy",
	}, p.DescriptorNames("highlevel"))
}

func TestComputeFeatureErrors(t *testing.T) {
	alg, err := NewFactory(algorithm.Params{"svms": testModels()})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*pool.Pool)
		is     error
	}{
		{"Missing", func(p *pool.Pool) { _ = p.Remove("rhythm.bpm") }, pool.ErrKeyNotFound},
		{"NotNumeric", func(p *pool.Pool) { _ = p.Set("rhythm.bpm", pool.String("fast")) }, pool.ErrTypeMismatch},
		{"EmptyReduce", func(p *pool.Pool) { _ = p.Set("rhythm.beats_loudness", pool.Reals()) }, stats.ErrEmptyInput},
		{"IndexRange", func(p *pool.Pool) { _ = p.Set("lowlevel.mfcc.mean", pool.Reals(1)) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := descriptors(t)
			tt.mutate(p)
			require.NoError(t, algorithm.Bind(alg, map[string]any{"pool": p}, map[string]any{"pool": p}))
			err := alg.Compute()
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestCloneIsReentrant(t *testing.T) {
	alg, err := NewFactory(algorithm.Params{"svms": testModels()})
	require.NoError(t, err)
	c := alg.(*Classifier)

	results := make([]*pool.Pool, 8)
	for i := range results {
		results[i] = descriptors(t)
	}

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clone := c.Clone()
			p := results[i]
			if err := algorithm.Bind(clone, map[string]any{"pool": p}, map[string]any{"pool": p}); err != nil {
				t.Error(err)
				return
			}
			if err := clone.Compute(); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	want, err := results[0].GetString("highlevel.genre_rosamerica.value")
	require.NoError(t, err)
	for _, p := range results[1:] {
		got, err := p.GetString("highlevel.genre_rosamerica.value")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAnnotations(t *testing.T) {
	alg, err := NewFactory(algorithm.Params{"svms": testModels()[1:]})
	require.NoError(t, err)

	p := descriptors(t)
	require.NoError(t, algorithm.Bind(alg, map[string]any{"pool": p}, map[string]any{"pool": p}))
	require.NoError(t, alg.Compute())

	labels, probs := Annotations(p)
	assert.Equal(t, map[string]string{"mood_happy": "happy"}, labels)
	assert.Len(t, probs, 1)
	assert.Greater(t, probs["mood_happy"], 0.5)
}
