// Package extractor drives one descriptor file through the high-level
// pipeline: load, classify, drop low-level namespaces, rewrite version
// metadata, merge run-wide values and serialize.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
	"github.com/cognicore/hilevel/pkg/hilevel/config"
	"github.com/cognicore/hilevel/pkg/hilevel/descfile"
	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
	"github.com/cognicore/hilevel/pkg/hilevel/svm"
)

// ErrNotReentrant is returned by Fork when the classifier cannot be cloned.
var ErrNotReentrant = errors.New("classifier is not reentrant")

// LowLevelNamespaces are removed after classification.
var LowLevelNamespaces = []string{"lowlevel", "rhythm", "tonal"}

// VersionNamespace holds producer versions.
const VersionNamespace = "metadata.version"

// Config configures an Extractor.
type Config struct {
	// Registry creates the loader, the writer and, unless Classifier is
	// set, the classifier. Required.
	Registry *algorithm.Registry

	// Options are the run-wide options; nil means config.DefaultOptions.
	Options *pool.Pool

	// Classifier overrides the MusicExtractorSVM built from
	// highlevel.svm_models. It must have a Pool input and output named
	// "pool".
	Classifier algorithm.Algorithm

	Logger *hilevel.Logger
}

// Extractor processes files one at a time. It is not safe for concurrent
// use; Fork one per goroutine.
type Extractor struct {
	reg        *algorithm.Registry
	classifier algorithm.Algorithm
	logger     *hilevel.Logger

	inputFormat  descfile.Format
	outputFormat descfile.Format
	mergeValues  *pool.Pool
	mergeMode    pool.MergeMode
	prefixLen    int
}

// New validates the options and builds the classifier once for the whole
// batch. Every error it returns wraps internalerr.ErrConfiguration.
func New(cfg Config) (*Extractor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: no algorithm registry", internalerr.ErrConfiguration)
	}
	opts := cfg.Options
	if opts == nil {
		opts = config.DefaultOptions()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hilevel.NoopLogger()
	}

	e := &Extractor{reg: cfg.Registry, logger: logger}
	var err error
	if e.inputFormat, err = config.InputFormat(opts); err != nil {
		return nil, err
	}
	if e.outputFormat, err = config.OutputFormat(opts); err != nil {
		return nil, err
	}
	if e.mergeValues, err = config.MergeValues(opts); err != nil {
		return nil, err
	}
	if e.mergeMode, err = config.MergeMode(opts); err != nil {
		return nil, err
	}
	if e.prefixLen, err = config.VersionPrefixLen(opts); err != nil {
		return nil, err
	}

	e.classifier = cfg.Classifier
	if e.classifier == nil {
		models, err := config.SVMModels(opts)
		if err != nil {
			return nil, err
		}
		e.classifier, err = cfg.Registry.Create(svm.Info.Name, algorithm.Params{"svms": models})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
		}
	}
	if _, err := e.classifier.Input("pool"); err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
	}
	if _, err := e.classifier.Output("pool"); err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
	}
	return e, nil
}

// Fork returns an Extractor sharing everything but the classifier, which is
// cloned. It fails with ErrNotReentrant unless the classifier implements
// algorithm.Cloner.
func (e *Extractor) Fork() (*Extractor, error) {
	c, ok := e.classifier.(algorithm.Cloner)
	if !ok {
		return nil, fmt.Errorf("%s: %w", e.classifier.Info().Name, ErrNotReentrant)
	}
	f := *e
	f.classifier = c.Clone()
	return &f, nil
}

// Process runs the pipeline for one input/output pair. It never panics on
// bad input; every failure is reported in the Result.
func (e *Extractor) Process(ctx context.Context, input, output string) Result {
	res := Result{Input: input, Output: output, State: Pending}
	fail := func(at State, category, err error) Result {
		if !errors.Is(err, category) {
			err = fmt.Errorf("%w: %w", category, err)
		}
		res.State, res.FailedAt, res.Err = Failed, at, err
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(Loaded, internalerr.ErrLoad, err)
	}

	p, err := e.load(input)
	if err != nil {
		return fail(Loaded, internalerr.ErrLoad, err)
	}
	res.Pool, res.State = p, Loaded

	if err := e.classify(p); err != nil {
		return fail(Classified, internalerr.ErrClassification, err)
	}
	res.State = Classified

	Clean(p)
	res.State = Cleaned

	// Pool errors past classification are reported as classification
	// failures.
	if err := RewriteVersions(p, e.prefixLen); err != nil {
		return fail(Versioned, internalerr.ErrClassification, err)
	}
	if err := SetVersions(p); err != nil {
		return fail(Versioned, internalerr.ErrClassification, err)
	}
	res.State = Versioned

	conflicts, err := MergeOptions(p, e.mergeValues, e.mergeMode)
	if err != nil {
		return fail(Merged, internalerr.ErrClassification, err)
	}
	res.Conflicts = conflicts
	e.logger.LogMergeConflict(ctx, input, conflicts)
	res.State = Merged

	if err := e.write(p, output); err != nil {
		return fail(Serialized, internalerr.ErrWrite, err)
	}
	res.State = Serialized
	return res
}

func (e *Extractor) load(path string) (*pool.Pool, error) {
	loader, err := e.reg.Create(descfile.InputInfo.Name, algorithm.Params{
		"filename": path,
		"format":   string(e.inputFormat),
	})
	if err != nil {
		return nil, err
	}
	p := pool.New()
	if err := algorithm.Bind(loader, nil, map[string]any{"pool": p}); err != nil {
		return nil, err
	}
	if err := loader.Compute(); err != nil {
		return nil, err
	}
	return p, nil
}

// classify binds p as both input and output of the classifier, so
// annotations are added in place.
func (e *Extractor) classify(p *pool.Pool) error {
	if err := algorithm.Bind(e.classifier,
		map[string]any{"pool": p},
		map[string]any{"pool": p},
	); err != nil {
		return err
	}
	return e.classifier.Compute()
}

func (e *Extractor) write(p *pool.Pool, path string) error {
	writer, err := e.reg.Create(descfile.OutputInfo.Name, algorithm.Params{
		"filename": path,
		"format":   string(e.outputFormat),
	})
	if err != nil {
		return err
	}
	if err := algorithm.Bind(writer, map[string]any{"pool": p}, nil); err != nil {
		return err
	}
	return writer.Compute()
}
