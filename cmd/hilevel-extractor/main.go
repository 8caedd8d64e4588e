package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/hilevel/internal/manifest"
	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/batch"
	"github.com/cognicore/hilevel/pkg/hilevel/config"
	"github.com/cognicore/hilevel/pkg/hilevel/extractor"
	"github.com/cognicore/hilevel/pkg/hilevel/store"
	"github.com/cognicore/hilevel/pkg/hilevel/store/sqlite"
	"github.com/cognicore/hilevel/pkg/hilevel/svm"
)

type options struct {
	dbPath    string
	jobs      int
	manifest  string
	logLevel  string
	logFormat string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "hilevel-extractor input output [input output ...] [profile]",
		Short: "Annotate low-level descriptor files with high-level classifier results",
		Long: `hilevel-extractor reads low-level descriptor files, applies the trained
classifiers named in the profile, drops the low-level namespaces and writes
the high-level descriptor file for every input/output pair.

A file that cannot be processed is logged and skipped; it does not change the
exit status.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database recording every run")
	flags.IntVar(&opts.jobs, "jobs", 1, "Files processed at once")
	flags.StringVar(&opts.manifest, "manifest", "", `JSONL file of {"input","output"} pairs`)
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newVersionCmd(stdout))
	return cmd
}

// pairsFromArgs returns the files to process and the optional profile. With
// a manifest the only positional argument allowed is the profile.
func pairsFromArgs(args []string, manifestPath string) ([]batch.Pair, string, error) {
	if manifestPath == "" {
		return batch.ParseArgs(args)
	}
	if len(args) > 1 {
		return nil, "", fmt.Errorf("--manifest accepts at most a profile argument, got %d arguments", len(args))
	}
	pairs, err := manifest.LoadFromJSONL(manifestPath)
	if err != nil {
		return nil, "", err
	}
	var profile string
	if len(args) == 1 {
		profile = args[0]
	}
	return pairs, profile, nil
}

func newLogger(w io.Writer, level, format string) (*hilevel.Logger, error) {
	l, err := hilevel.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch format {
	case "text":
		return hilevel.NewTextLogger(w, l), nil
	case "json":
		return hilevel.NewJSONLogger(w, l), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func run(ctx context.Context, opts options, args []string, stderr io.Writer) (err error) {
	pairs, profile, err := pairsFromArgs(args, opts.manifest)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}

	reg, err := hilevel.Init()
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := reg.Shutdown(); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", shutdownErr))
		}
	}()

	runOpts, err := config.LoadProfile(profile)
	if err != nil {
		return err
	}
	ex, err := extractor.New(extractor.Config{Registry: reg, Options: runOpts, Logger: logger})
	if err != nil {
		return err
	}

	var st store.Store
	if opts.dbPath != "" {
		st, err = sqlite.OpenSQLite(ctx, opts.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	driver := &batch.Driver{
		Processor: ex,
		Fork:      func() (batch.Processor, error) { return ex.Fork() },
		Store:     st,
		Logger:    logger,
		Jobs:      opts.jobs,
	}
	if _, err := driver.Run(ctx, pairs); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show extractor and classifier versions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(stdout, "Extractor:  %s %s\n", hilevel.ExtractorName, hilevel.Version)
			fmt.Fprintf(stdout, "Commit:     %s\n", hilevel.GitSHA)
			fmt.Fprintf(stdout, "SVM:        %s (%s)\n", svm.Version, svm.GitSHA)
			fmt.Fprintf(stdout, "Go Version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
