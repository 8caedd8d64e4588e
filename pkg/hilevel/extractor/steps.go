package extractor

import (
	"fmt"

	"github.com/cognicore/hilevel/pkg/hilevel"
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
	"github.com/cognicore/hilevel/pkg/hilevel/svm"
)

// Clean removes the low-level namespaces and returns how many descriptors
// were dropped.
func Clean(p *pool.Pool) int {
	n := 0
	for _, ns := range LowLevelNamespaces {
		n += p.RemoveNamespace(ns)
	}
	return n
}

// RewriteVersions moves every key under metadata.version to
// metadata.version.lowlevel.<suffix>, where suffix is the key with its
// first prefixLen bytes cut. All moves are planned before the pool is
// touched: every source is removed, then every destination is set. Two keys
// that would land on the same destination fail the rewrite and leave p
// unchanged.
func RewriteVersions(p *pool.Pool, prefixLen int) error {
	type move struct {
		src, dst string
		value    pool.Value
	}

	keys := p.DescriptorNames(VersionNamespace)
	moves := make([]move, 0, len(keys))
	targets := make(map[string]string, len(keys))
	for _, key := range keys {
		if len(key) <= prefixLen {
			return fmt.Errorf("version key %q is not longer than the %d byte prefix", key, prefixLen)
		}
		v, err := p.Value(key)
		if err != nil {
			return err
		}
		dst := pool.Join(VersionNamespace, "lowlevel", key[prefixLen:])
		if prev, dup := targets[dst]; dup {
			return fmt.Errorf("version keys %q and %q both relocate to %q", prev, key, dst)
		}
		targets[dst] = key
		moves = append(moves, move{src: key, dst: dst, value: v})
	}

	for _, m := range moves {
		if err := p.Remove(m.src); err != nil {
			return err
		}
	}
	for _, m := range moves {
		if p.Has(m.dst) {
			return fmt.Errorf("version key %q: %q is already set", m.src, m.dst)
		}
		if err := p.Set(m.dst, m.value); err != nil {
			return err
		}
	}
	return nil
}

// SetVersions records the versions of this extractor and its classifier
// under metadata.version.highlevel.
func SetVersions(p *pool.Pool) error {
	prefix := pool.Join(VersionNamespace, "highlevel")
	for _, kv := range []struct{ name, value string }{
		{"hilevel", hilevel.Version},
		{"hilevel_git_sha", hilevel.GitSHA},
		{"extractor", hilevel.ExtractorName},
		{"svm", svm.Version},
		{"svm_git_sha", svm.GitSHA},
	} {
		if err := p.Set(pool.Join(prefix, kv.name), pool.String(kv.value)); err != nil {
			return err
		}
	}
	return nil
}

// MergeOptions merges values into p with mode and returns the keys that
// kept p's value.
func MergeOptions(p, values *pool.Pool, mode pool.MergeMode) ([]string, error) {
	if values == nil || values.Len() == 0 {
		return nil, nil
	}
	return p.Merge(values, mode)
}
