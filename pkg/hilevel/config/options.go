// Package config holds the run-wide options shared by every file of a batch.
// Options are an ordinary pool: defaults from DefaultOptions, overridden by
// an optional YAML profile.
package config

import (
	"fmt"
	"math"

	"github.com/cognicore/hilevel/pkg/hilevel/descfile"
	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// Option keys.
const (
	KeyInputFormat      = "highlevel.inputFormat"
	KeySVMModels        = "highlevel.svm_models"
	KeyMergeOverwrite   = "highlevel.mergeOverwrite"
	KeyVersionPrefixLen = "highlevel.versionPrefixLength"
	KeyOutputFormat     = "outputFormat"
	MergeValuesPrefix   = "mergeValues"
)

// DefaultVersionPrefixLen is len("metadata.version."): version keys written
// by the low-level extractor are cut after this many bytes.
const DefaultVersionPrefixLen = 17

// DefaultOptions returns the options used when no profile is given.
func DefaultOptions() *pool.Pool {
	opts := pool.New()
	mustSet(opts, KeyInputFormat, pool.String(string(descfile.JSON)))
	mustSet(opts, KeySVMModels, pool.Strings())
	mustSet(opts, KeyOutputFormat, pool.String(string(descfile.JSON)))
	mustSet(opts, KeyMergeOverwrite, pool.Real(0))
	mustSet(opts, KeyVersionPrefixLen, pool.Real(DefaultVersionPrefixLen))
	return opts
}

func mustSet(p *pool.Pool, key string, v pool.Value) {
	if err := p.Set(key, v); err != nil {
		panic(err)
	}
}

// InputFormat returns the descriptor format of input files.
func InputFormat(opts *pool.Pool) (descfile.Format, error) {
	return formatOption(opts, KeyInputFormat)
}

// OutputFormat returns the descriptor format of output files.
func OutputFormat(opts *pool.Pool) (descfile.Format, error) {
	return formatOption(opts, KeyOutputFormat)
}

func formatOption(opts *pool.Pool, key string) (descfile.Format, error) {
	s, err := opts.GetString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, key, err)
	}
	f, err := descfile.ParseFormat(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// SVMModels returns the classifier model files in application order. A
// single string is a one-model list; an empty list is valid.
func SVMModels(opts *pool.Pool) ([]string, error) {
	v, err := opts.Value(KeySVMModels)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, KeySVMModels, err)
	}
	switch v.Kind() {
	case pool.KindStrings:
		ss, _ := v.AsStrings()
		return ss, nil
	case pool.KindString:
		s, _ := v.AsString()
		return []string{s}, nil
	case pool.KindReals:
		// An empty YAML list loads as empty reals.
		if rs, _ := v.AsReals(); len(rs) == 0 {
			return []string{}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be a list of paths, got %s", internalerr.ErrConfiguration, KeySVMModels, v.Kind())
}

// MergeMode returns how mergeValues entries treat keys already in a file's
// pool: overwrite when highlevel.mergeOverwrite is 1, keep otherwise.
func MergeMode(opts *pool.Pool) (pool.MergeMode, error) {
	if !opts.Has(KeyMergeOverwrite) {
		return pool.MergeKeep, nil
	}
	f, err := opts.GetReal(KeyMergeOverwrite)
	if err != nil {
		return pool.MergeKeep, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, KeyMergeOverwrite, err)
	}
	if f == 1 {
		return pool.MergeOverwrite, nil
	}
	return pool.MergeKeep, nil
}

// VersionPrefixLen returns the cut length applied to metadata.version keys.
func VersionPrefixLen(opts *pool.Pool) (int, error) {
	if !opts.Has(KeyVersionPrefixLen) {
		return DefaultVersionPrefixLen, nil
	}
	f, err := opts.GetReal(KeyVersionPrefixLen)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, KeyVersionPrefixLen, err)
	}
	if f < 1 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", internalerr.ErrConfiguration, KeyVersionPrefixLen, f)
	}
	return int(f), nil
}

// MergeValues returns the mergeValues subtree with the prefix stripped, in
// option order: mergeValues.metadata.tags.label becomes
// metadata.tags.label.
func MergeValues(opts *pool.Pool) (*pool.Pool, error) {
	out := pool.New()
	cut := len(MergeValuesPrefix) + len(pool.Separator)
	for _, key := range opts.DescriptorNames(MergeValuesPrefix) {
		if key == MergeValuesPrefix {
			return nil, fmt.Errorf("%w: %s must be a mapping", internalerr.ErrConfiguration, MergeValuesPrefix)
		}
		v, err := opts.Value(key)
		if err != nil {
			return nil, err
		}
		if err := out.Set(key[cut:], v); err != nil {
			return nil, fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
		}
	}
	return out, nil
}
