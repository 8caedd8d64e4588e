// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/cognicore/hilevel/pkg/hilevel/store"
)

// Run exercises a fresh Store returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("RecordAndGet", func(t *testing.T) { testRecordAndGet(t, open(t)) })
	t.Run("ReplaceRun", func(t *testing.T) { testReplaceRun(t, open(t)) })
	t.Run("BatchOrder", func(t *testing.T) { testBatchOrder(t, open(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func run(id, batch, input string, failed bool, at int) store.Run {
	r := store.Run{
		ID:          id,
		BatchID:     batch,
		Input:       input,
		Output:      input + ".out",
		Status:      store.StatusOK,
		Stage:       "serialized",
		ProcessedAt: base.Add(time.Duration(at) * time.Second),
	}
	if failed {
		r.Status = store.StatusFailed
		r.Stage = "loaded"
		r.Error = "load error: no such file"
	} else {
		r.Annotations = map[string]string{"genre": "rock", "mood_happy": "happy"}
		r.Probabilities = map[string]float64{"genre": 0.75, "mood_happy": 0.5}
	}
	return r
}

func testRecordAndGet(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	want := run("01A", "B1", "a.json", false, 0)
	if err := st.RecordRun(ctx, want); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, found, err := st.GetRun(ctx, "01A")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !found {
		t.Fatal("run should be found")
	}
	if got.Input != want.Input || got.Output != want.Output || got.Status != want.Status {
		t.Errorf("run mismatch: got %+v, want %+v", got, want)
	}
	if !got.ProcessedAt.Equal(want.ProcessedAt) {
		t.Errorf("ProcessedAt: got %v, want %v", got.ProcessedAt, want.ProcessedAt)
	}
	if got.Annotations["genre"] != "rock" || got.Probabilities["genre"] != 0.75 {
		t.Errorf("annotations not stored: %+v %+v", got.Annotations, got.Probabilities)
	}

	// Mutating the returned maps must not reach the store.
	got.Annotations["genre"] = "jazz"
	again, _, _ := st.GetRun(ctx, "01A")
	if again.Annotations["genre"] != "rock" {
		t.Error("store returned shared annotation map")
	}

	if _, found, err := st.GetRun(ctx, "missing"); err != nil || found {
		t.Errorf("GetRun(missing) = found %v, err %v", found, err)
	}
	if err := st.RecordRun(ctx, store.Run{}); err == nil {
		t.Error("RecordRun with empty id should fail")
	}
}

func testReplaceRun(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	if err := st.RecordRun(ctx, run("01A", "B1", "a.json", false, 0)); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordRun(ctx, run("01A", "B1", "a.json", true, 1)); err != nil {
		t.Fatal(err)
	}

	got, _, err := st.GetRun(ctx, "01A")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Failed() {
		t.Errorf("status = %q, want %q", got.Status, store.StatusFailed)
	}
	if len(got.Annotations) != 0 {
		t.Errorf("annotations should be replaced, got %v", got.Annotations)
	}

	runs, err := st.RunsByBatch(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run after replace, got %d", len(runs))
	}
}

func testBatchOrder(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	records := []store.Run{
		run("01A", "B1", "a.json", false, 0),
		run("01B", "B1", "b.json", true, 1),
		run("01C", "B1", "c.json", false, 2),
		run("01D", "B2", "d.json", true, 3),
	}
	for _, r := range records {
		if err := st.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun %s: %v", r.ID, err)
		}
	}

	runs, err := st.RunsByBatch(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[0].Input != "a.json" || runs[2].Input != "c.json" {
		t.Errorf("RunsByBatch order wrong: %+v", runs)
	}

	failures, err := st.Failures(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Input != "b.json" || failures[0].Error == "" {
		t.Errorf("Failures = %+v", failures)
	}

	batches, err := st.Batches(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].ID != "B2" {
		t.Errorf("newest batch first: got %s", batches[0].ID)
	}
	b1 := batches[1]
	if b1.Total != 3 || b1.Failed != 1 {
		t.Errorf("B1 summary = %+v", b1)
	}
	if !b1.StartedAt.Equal(base) || !b1.FinishedAt.Equal(base.Add(2*time.Second)) {
		t.Errorf("B1 span = %v..%v", b1.StartedAt, b1.FinishedAt)
	}

	limited, err := st.Batches(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d batches", len(limited))
	}
}
