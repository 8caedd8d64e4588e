// Package batch runs the extractor over a list of input/output pairs,
// isolating per-file failures and recording every outcome.
package batch

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/extractor"
	"github.com/cognicore/hilevel/pkg/hilevel/store"
	"github.com/cognicore/hilevel/pkg/hilevel/svm"
)

// Processor turns one input file into one output file.
type Processor interface {
	Process(ctx context.Context, input, output string) extractor.Result
}

// Driver processes a batch with one shared Processor.
type Driver struct {
	Processor Processor

	// Fork returns an independent Processor for a worker goroutine. Without
	// it, or when it fails, the batch runs sequentially.
	Fork func() (Processor, error)

	// Store records every outcome when set.
	Store store.Store

	Logger *hilevel.Logger

	// Jobs is the number of files processed at once. Values below 2 mean
	// sequential.
	Jobs int

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// Failure is a file that was not written.
type Failure struct {
	Input  string
	Output string
	Stage  string
	Err    error
}

// Report summarizes a batch. Results and Failures follow input order.
// Results carry no pools; the annotations of written files are in the Store.
type Report struct {
	BatchID  string
	Results  []extractor.Result
	Failures []Failure
	Started  time.Time
	Finished time.Time
}

// Total is the number of files that were attempted.
func (r Report) Total() int { return len(r.Results) }

// Failed is the number of files that were not written.
func (r Report) Failed() int { return len(r.Failures) }

// ids hands out monotonic ULIDs to concurrent callers.
type ids struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDs() *ids {
	return &ids{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ids) next(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}

// Run processes pairs. A failing file is logged once, reported as a Failure
// and does not stop the batch. The only error returned is ctx's, in which case
// the Report covers the files attempted before cancellation.
func (d *Driver) Run(ctx context.Context, pairs []Pair) (Report, error) {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = hilevel.NoopLogger()
	}

	gen := newIDs()
	rep := Report{Started: now()}
	rep.BatchID = gen.next(rep.Started)
	logger = logger.WithBatch(rep.BatchID)

	r := &runner{driver: d, logger: logger, ids: gen, now: now, batchID: rep.BatchID}
	results := make([]extractor.Result, len(pairs))
	done := make([]bool, len(pairs))

	var err error
	if procs := r.workers(ctx, len(pairs)); len(procs) > 1 {
		err = r.parallel(ctx, procs, pairs, results, done)
	} else {
		err = r.sequential(ctx, pairs, results, done)
	}

	for i, res := range results {
		if !done[i] {
			continue
		}
		rep.Results = append(rep.Results, res)
		if !res.OK() {
			rep.Failures = append(rep.Failures, Failure{
				Input:  res.Input,
				Output: res.Output,
				Stage:  res.Stage(),
				Err:    res.Err,
			})
		}
	}
	rep.Finished = now()
	logger.LogBatch(ctx, rep.Total(), rep.Failed())
	return rep, err
}

type runner struct {
	driver  *Driver
	logger  *hilevel.Logger
	ids     *ids
	now     func() time.Time
	batchID string
}

// workers returns one Processor per job, or nil when the batch should run
// sequentially.
func (r *runner) workers(ctx context.Context, files int) []Processor {
	jobs := min(r.driver.Jobs, files)
	if jobs < 2 {
		return nil
	}
	if r.driver.Fork == nil {
		r.logger.WarnContext(ctx, "processor cannot be forked, running sequentially", "jobs", r.driver.Jobs)
		return nil
	}
	procs := make([]Processor, 0, jobs)
	for range jobs {
		p, err := r.driver.Fork()
		if err != nil {
			r.logger.WarnContext(ctx, "processor cannot be forked, running sequentially",
				"jobs", r.driver.Jobs,
				"error", err,
			)
			return nil
		}
		procs = append(procs, p)
	}
	return procs
}

func (r *runner) sequential(ctx context.Context, pairs []Pair, results []extractor.Result, done []bool) error {
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		results[i] = r.process(ctx, r.driver.Processor, pair)
		done[i] = true
	}
	return nil
}

// parallel feeds pair indices to one goroutine per Processor. Each index is
// written by exactly one goroutine.
func (r *runner) parallel(ctx context.Context, procs []Processor, pairs []Pair, results []extractor.Result, done []bool) error {
	g, gctx := errgroup.WithContext(ctx)

	next := make(chan int)
	g.Go(func() error {
		defer close(next)
		for i := range pairs {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, proc := range procs {
		g.Go(func() error {
			for i := range next {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = r.process(gctx, proc, pairs[i])
				done[i] = true
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// process runs one file, logs the outcome and records it. The file's pool
// is released before returning so a batch holds one pool per worker at most.
func (r *runner) process(ctx context.Context, proc Processor, pair Pair) extractor.Result {
	res := proc.Process(ctx, pair.Input, pair.Output)
	r.logger.LogFile(ctx, res.Input, res.Output, res.Stage(), res.Err)
	if r.driver.Store != nil {
		r.record(ctx, res)
	}
	res.Pool = nil
	return res
}

func (r *runner) record(ctx context.Context, res extractor.Result) {
	at := r.now()
	run := store.Run{
		ID:          r.ids.next(at),
		BatchID:     r.batchID,
		Input:       res.Input,
		Output:      res.Output,
		Status:      store.StatusOK,
		Stage:       res.Stage(),
		ProcessedAt: at,
	}
	if res.OK() {
		run.Annotations, run.Probabilities = svm.Annotations(res.Pool)
	} else {
		run.Status = store.StatusFailed
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
	}
	// A cancelled batch still records the files it finished.
	if err := r.driver.Store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.WarnContext(ctx, "cannot record run",
			"input", res.Input,
			"error", err,
		)
	}
}
