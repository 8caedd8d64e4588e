package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cognicore/hilevel/pkg/hilevel/descfile"
	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// LoadProfile returns DefaultOptions overridden by the profile at path. An
// empty path returns the defaults.
func LoadProfile(path string) (*pool.Pool, error) {
	opts := DefaultOptions()
	if err := ApplyProfile(path, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// ApplyProfile sets every descriptor of the YAML profile at path over opts.
// Relative model paths in highlevel.svm_models are resolved against the
// profile's directory. An empty path is a no-op.
//
// Example profile:
//
//	outputFormat: yaml
//	highlevel:
//	  svm_models: [models/genre_rosamerica.yaml, models/mood_happy.yaml]
//	mergeValues:
//	  metadata:
//	    tags:
//	      dataset: acousticbrainz
func ApplyProfile(path string, opts *pool.Pool) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: cannot read profile %s: %w", internalerr.ErrConfiguration, path, err)
	}
	defer f.Close()

	profile := pool.New()
	if err := descfile.Decode(f, descfile.YAML, profile); err != nil {
		return fmt.Errorf("%w: invalid profile %s: %w", internalerr.ErrConfiguration, path, err)
	}

	for _, key := range profile.DescriptorNames("") {
		v, err := profile.Value(key)
		if err != nil {
			return err
		}
		if key == KeySVMModels {
			v, err = resolveModels(v, filepath.Dir(path))
			if err != nil {
				return err
			}
		}
		if err := opts.Set(key, v); err != nil {
			return fmt.Errorf("%w: profile %s: %w", internalerr.ErrConfiguration, path, err)
		}
	}
	return nil
}

func resolveModels(v pool.Value, dir string) (pool.Value, error) {
	tmp := pool.New()
	if err := tmp.Set(KeySVMModels, v); err != nil {
		return pool.Value{}, err
	}
	paths, err := SVMModels(tmp)
	if err != nil {
		return pool.Value{}, err
	}
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			paths[i] = filepath.Join(dir, p)
		}
	}
	return pool.Strings(paths...), nil
}
