package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/store"
	"github.com/cognicore/hilevel/pkg/hilevel/store/memstore"
	"github.com/cognicore/hilevel/pkg/hilevel/store/sqlite"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	runs := []store.Run{
		{ID: "01", BatchID: "old", Input: "x.json", Output: "x.out", Status: store.StatusOK, Stage: "serialized", ProcessedAt: t0},
		{
			ID: "02", BatchID: "new", Input: "a.json", Output: "a.out", Status: store.StatusOK, Stage: "serialized",
			Annotations:   map[string]string{"genre": "rock", "mood_happy": "happy"},
			Probabilities: map[string]float64{"genre": 0.8, "mood_happy": 0.9},
			ProcessedAt:   t0.Add(time.Minute),
		},
		{
			ID: "03", BatchID: "new", Input: "b.json", Output: "b.out", Status: store.StatusOK, Stage: "serialized",
			Annotations:   map[string]string{"genre": "jazz", "mood_happy": "happy"},
			Probabilities: map[string]float64{"genre": 0.6, "mood_happy": 0.7},
			ProcessedAt:   t0.Add(2 * time.Minute),
		},
		{
			ID: "04", BatchID: "new", Input: "c.json", Output: "c.out", Status: store.StatusFailed, Stage: "loaded",
			Error: "load error: bad json", ProcessedAt: t0.Add(3 * time.Minute),
		},
	}
	for _, r := range runs {
		require.NoError(t, st.RecordRun(ctx, r))
	}
}

func TestBuildReport(t *testing.T) {
	st := memstore.New()
	seed(t, st)
	reg, err := hilevel.Init()
	require.NoError(t, err)
	defer reg.Shutdown()

	rep, err := buildReport(context.Background(), st, reg, "")
	require.NoError(t, err)
	assert.Equal(t, "new", rep.BatchID)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "c.json", rep.Failures[0].Input)

	require.Len(t, rep.Models, 2)
	assert.Equal(t, "genre", rep.Models[0].Model)
	assert.Equal(t, map[string]int{"rock": 1, "jazz": 1}, rep.Models[0].Labels)
	assert.InDelta(t, 0.7, rep.Models[0].MeanProbability, 1e-12)
	assert.Equal(t, map[string]int{"happy": 2}, rep.Models[1].Labels)
	assert.InDelta(t, 0.8, rep.Models[1].MeanProbability, 1e-12)

	old, err := buildReport(context.Background(), st, reg, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, old.Total)
	assert.Empty(t, old.Models)

	_, err = buildReport(context.Background(), st, reg, "missing")
	assert.Error(t, err)

	_, err = buildReport(context.Background(), memstore.New(), reg, "")
	assert.ErrorIs(t, err, errNoBatches)
}

func TestReportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := sqlite.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	seed(t, st)
	require.NoError(t, st.Close())

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--db", dbPath, "--batch", "new"})
	require.NoError(t, cmd.Execute())

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "new", rep.BatchID)
	assert.Equal(t, 1, rep.Failed)
	assert.Len(t, rep.Models, 2)

	cmd = newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute(), "--db is required")
}
