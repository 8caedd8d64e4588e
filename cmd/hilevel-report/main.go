package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
	"github.com/cognicore/hilevel/pkg/hilevel/stats"
	"github.com/cognicore/hilevel/pkg/hilevel/store"
	"github.com/cognicore/hilevel/pkg/hilevel/store/sqlite"
)

var errNoBatches = errors.New("no batches recorded")

type report struct {
	BatchID    string        `json:"batch_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Total      int           `json:"total"`
	Failed     int           `json:"failed"`
	Failures   []failureJSON `json:"failures"`
	Models     []modelJSON   `json:"models"`
}

type failureJSON struct {
	Input string `json:"input"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type modelJSON struct {
	Model           string         `json:"model"`
	Labels          map[string]int `json:"labels"`
	MeanProbability float64        `json:"mean_probability"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var dbPath, batchID string
	cmd := &cobra.Command{
		Use:          "hilevel-report --db path [--batch id]",
		Short:        "Summarize a recorded extractor batch as JSON",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := sqlite.OpenSQLite(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			reg, err := hilevel.Init()
			if err != nil {
				return err
			}
			defer reg.Shutdown()

			rep, err := buildReport(ctx, st, reg, batchID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			fmt.Fprintln(stdout, string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by hilevel-extractor --db (required)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id; defaults to the most recent batch")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

// buildReport summarizes batchID, or the newest batch when batchID is empty.
func buildReport(ctx context.Context, st store.Store, reg *algorithm.Registry, batchID string) (report, error) {
	batches, err := st.Batches(ctx, 0)
	if err != nil {
		return report{}, err
	}
	if len(batches) == 0 {
		return report{}, errNoBatches
	}
	summary := batches[0]
	if batchID != "" {
		found := false
		for _, b := range batches {
			if b.ID == batchID {
				summary, found = b, true
				break
			}
		}
		if !found {
			return report{}, fmt.Errorf("batch %s not found", batchID)
		}
	}

	rep := report{
		BatchID:    summary.ID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Total:      summary.Total,
		Failed:     summary.Failed,
		Failures:   []failureJSON{},
		Models:     []modelJSON{},
	}

	failures, err := st.Failures(ctx, summary.ID)
	if err != nil {
		return report{}, err
	}
	for _, f := range failures {
		rep.Failures = append(rep.Failures, failureJSON{Input: f.Input, Stage: f.Stage, Error: f.Error})
	}

	runs, err := st.RunsByBatch(ctx, summary.ID)
	if err != nil {
		return report{}, err
	}
	labels := make(map[string]map[string]int)
	probs := make(map[string][]float64)
	for _, r := range runs {
		for model, label := range r.Annotations {
			if labels[model] == nil {
				labels[model] = make(map[string]int)
			}
			labels[model][label]++
			if p, ok := r.Probabilities[model]; ok {
				probs[model] = append(probs[model], p)
			}
		}
	}

	models := make([]string, 0, len(labels))
	for m := range labels {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		entry := modelJSON{Model: m, Labels: labels[m]}
		if len(probs[m]) > 0 {
			entry.MeanProbability, err = meanProbability(reg, probs[m])
			if err != nil {
				return report{}, fmt.Errorf("model %s: %w", m, err)
			}
		}
		rep.Models = append(rep.Models, entry)
	}
	return rep, nil
}

func meanProbability(reg *algorithm.Registry, xs []float64) (float64, error) {
	alg, err := reg.Create(stats.MeanInfo.Name, nil)
	if err != nil {
		return 0, err
	}
	var mean float64
	if err := algorithm.Bind(alg, map[string]any{"array": xs}, map[string]any{"mean": &mean}); err != nil {
		return 0, err
	}
	if err := alg.Compute(); err != nil {
		return 0, err
	}
	return mean, nil
}
