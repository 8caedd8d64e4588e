package store

import (
	"context"
	"time"
)

// Store persists the outcome of every processed file so batches can be
// audited and reported on after the fact.
type Store interface {
	Close() error

	// RecordRun inserts or replaces a run, keyed by ID.
	RecordRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)

	// RunsByBatch returns the runs of a batch in the order they were recorded.
	RunsByBatch(ctx context.Context, batchID string) ([]Run, error)
	// Failures returns the failed runs of a batch in recorded order.
	Failures(ctx context.Context, batchID string) ([]Run, error)
	// Batches returns batch summaries, newest first. limit <= 0 means all.
	Batches(ctx context.Context, limit int) ([]Batch, error)
}

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is the recorded outcome of one input file
type Run struct {
	ID      string
	BatchID string
	Input   string
	Output  string
	Status  string // StatusOK or StatusFailed
	Stage   string // last state reached, or the step that failed
	Error   string

	// Annotations maps model name to the predicted label and Probabilities
	// maps it to the label's probability.
	Annotations   map[string]string
	Probabilities map[string]float64

	ProcessedAt time.Time
}

// Failed reports whether the run ended in failure.
func (r Run) Failed() bool { return r.Status == StatusFailed }

// Batch summarizes the runs sharing a batch ID
type Batch struct {
	ID         string
	Total      int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}
