package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/config"
	"github.com/cognicore/hilevel/pkg/hilevel/extractor"
	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
	"github.com/cognicore/hilevel/pkg/hilevel/store"
	"github.com/cognicore/hilevel/pkg/hilevel/store/memstore"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		pairs   []Pair
		profile string
		err     error
	}{
		{name: "none", args: nil, err: ErrUsage},
		{name: "one", args: []string{"in.json"}, err: ErrUsage},
		{name: "pair", args: []string{"in.json", "out.json"}, pairs: []Pair{{"in.json", "out.json"}}},
		{
			name:    "pair and profile",
			args:    []string{"in.json", "out.json", "profile.yaml"},
			pairs:   []Pair{{"in.json", "out.json"}},
			profile: "profile.yaml",
		},
		{
			name:  "two pairs",
			args:  []string{"a.json", "a.out", "b.json", "b.out"},
			pairs: []Pair{{"a.json", "a.out"}, {"b.json", "b.out"}},
		},
		{
			name:    "two pairs and profile",
			args:    []string{"a.json", "a.out", "b.json", "b.out", "p.yaml"},
			pairs:   []Pair{{"a.json", "a.out"}, {"b.json", "b.out"}},
			profile: "p.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, profile, err := ParseArgs(tt.args)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pairs, pairs)
			assert.Equal(t, tt.profile, profile)
		})
	}
}

// newExtractor builds an extractor with the mood_happy test model.
func newExtractor(t *testing.T) *extractor.Extractor {
	t.Helper()
	reg, err := hilevel.Init()
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Shutdown() })

	opts := config.DefaultOptions()
	model := filepath.Join("..", "svm", "testdata", "mood_happy.yaml")
	require.NoError(t, opts.Set(config.KeySVMModels, pool.Strings(model)))

	e, err := extractor.New(extractor.Config{Registry: reg, Options: opts})
	require.NoError(t, err)
	return e
}

// writePairs creates n inputs; the input at index bad is not valid JSON.
func writePairs(t *testing.T, n, bad int) []Pair {
	t.Helper()
	dir := t.TempDir()
	pairs := make([]Pair, n)
	for i := range pairs {
		in := filepath.Join(dir, fmt.Sprintf("in%d.json", i))
		content := fmt.Sprintf(`{"rhythm": {"bpm": %d}, "metadata": {"version": {"essentia": "2.1"}}}`, 60+i*20)
		if i == bad {
			content = `{"rhythm": `
		}
		require.NoError(t, os.WriteFile(in, []byte(content), 0o644))
		pairs[i] = Pair{Input: in, Output: filepath.Join(dir, fmt.Sprintf("out%d.json", i))}
	}
	return pairs
}

func TestRunIsolatesFailures(t *testing.T) {
	e := newExtractor(t)
	pairs := writePairs(t, 4, 1)
	st := memstore.New()

	var logs bytes.Buffer
	d := &Driver{Processor: e, Store: st, Logger: hilevel.NewJSONLogger(&logs, 0)}
	rep, err := d.Run(context.Background(), pairs)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Total())
	require.Equal(t, 1, rep.Failed())
	assert.Equal(t, pairs[1].Input, rep.Failures[0].Input)
	assert.Equal(t, "loaded", rep.Failures[0].Stage)
	assert.ErrorIs(t, rep.Failures[0].Err, internalerr.ErrLoad)

	for i, p := range pairs {
		_, statErr := os.Stat(p.Output)
		if i == 1 {
			assert.True(t, os.IsNotExist(statErr), "failed file must not be written")
		} else {
			assert.NoError(t, statErr, "file %d after the failure must still be written", i)
		}
	}

	assert.Equal(t, 1, strings.Count(logs.String(), `"msg":"file failed"`))
	assert.Contains(t, logs.String(), pairs[1].Input)

	runs, err := st.RunsByBatch(context.Background(), rep.BatchID)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, store.StatusFailed, runs[1].Status)
	assert.NotEmpty(t, runs[1].Error)
	assert.Equal(t, "happy", runs[2].Annotations["mood_happy"])
	assert.Greater(t, runs[2].Probabilities["mood_happy"], 0.5)

	seen := map[string]bool{rep.BatchID: true}
	for _, r := range runs {
		assert.False(t, seen[r.ID], "ids must be unique")
		seen[r.ID] = true
	}
}

func TestRunParallelKeepsInputOrder(t *testing.T) {
	e := newExtractor(t)
	pairs := writePairs(t, 9, 4)
	st := memstore.New()

	d := &Driver{
		Processor: e,
		Fork:      func() (Processor, error) { return e.Fork() },
		Store:     st,
		Jobs:      3,
	}
	rep, err := d.Run(context.Background(), pairs)
	require.NoError(t, err)

	require.Equal(t, len(pairs), rep.Total())
	for i, res := range rep.Results {
		assert.Equal(t, pairs[i].Input, res.Input)
	}
	require.Equal(t, 1, rep.Failed())
	assert.Equal(t, pairs[4].Input, rep.Failures[0].Input)

	runs, err := st.RunsByBatch(context.Background(), rep.BatchID)
	require.NoError(t, err)
	assert.Len(t, runs, len(pairs))
}

func TestRunFallsBackWhenForkFails(t *testing.T) {
	e := newExtractor(t)
	pairs := writePairs(t, 3, -1)

	var logs bytes.Buffer
	d := &Driver{
		Processor: e,
		Fork:      func() (Processor, error) { return nil, extractor.ErrNotReentrant },
		Logger:    hilevel.NewJSONLogger(&logs, 0),
		Jobs:      4,
	}
	rep, err := d.Run(context.Background(), pairs)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total())
	assert.Zero(t, rep.Failed())
	assert.Contains(t, logs.String(), "running sequentially")
}

// countingProcessor cancels the batch after limit files.
type countingProcessor struct {
	calls  int
	limit  int
	cancel context.CancelFunc
}

func (p *countingProcessor) Process(ctx context.Context, input, output string) extractor.Result {
	p.calls++
	if p.calls == p.limit {
		p.cancel()
	}
	return extractor.Result{Input: input, Output: output, State: extractor.Serialized}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &countingProcessor{limit: 2, cancel: cancel}
	pairs := []Pair{{"a", "a.out"}, {"b", "b.out"}, {"c", "c.out"}}
	rep, err := (&Driver{Processor: proc}).Run(ctx, pairs)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, proc.calls)
	assert.Equal(t, 2, rep.Total())
	assert.Zero(t, rep.Failed())
}

type failingStore struct{ *memstore.Store }

func (failingStore) RecordRun(context.Context, store.Run) error {
	return errors.New("disk full")
}

func TestRunStoreErrorsAreNotFatal(t *testing.T) {
	e := newExtractor(t)
	pairs := writePairs(t, 2, -1)

	var logs bytes.Buffer
	d := &Driver{Processor: e, Store: failingStore{memstore.New()}, Logger: hilevel.NewJSONLogger(&logs, 0)}
	rep, err := d.Run(context.Background(), pairs)
	require.NoError(t, err)
	assert.Zero(t, rep.Failed())
	assert.Equal(t, 2, strings.Count(logs.String(), "cannot record run"))
}

// poolProcessor returns a large pool for every file.
type poolProcessor struct{}

func (poolProcessor) Process(_ context.Context, input, output string) extractor.Result {
	p := pool.New()
	_ = p.Set("lowlevel.frames", pool.Reals(make([]float64, 1<<16)...))
	return extractor.Result{Input: input, Output: output, State: extractor.Serialized, Pool: p}
}

func TestRunReleasesPools(t *testing.T) {
	pairs := make([]Pair, 100)
	for i := range pairs {
		pairs[i] = Pair{Input: fmt.Sprintf("in%d.json", i), Output: fmt.Sprintf("out%d.json", i)}
	}

	for _, jobs := range []int{1, 4} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			d := &Driver{
				Processor: poolProcessor{},
				Fork:      func() (Processor, error) { return poolProcessor{}, nil },
				Store:     memstore.New(),
				Jobs:      jobs,
			}
			rep, err := d.Run(context.Background(), pairs)
			require.NoError(t, err)
			require.Equal(t, len(pairs), rep.Total())
			for _, res := range rep.Results {
				assert.Nil(t, res.Pool, "%s: pool kept after the batch", res.Input)
			}
		})
	}
}
