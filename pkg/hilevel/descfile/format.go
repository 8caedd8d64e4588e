// Package descfile reads and writes descriptor files (JSON or YAML trees of
// descriptors) as pools. Nested mappings become dot-delimited keys and key
// order follows the document. Paths ending in ".gz" are gzip compressed.
//
// A pool holds descriptors, not mappings: an empty mapping such as
// "tags": {} has no descriptor under it, so it is dropped on load and absent
// from any file written afterwards. Empty lists are kept as empty Reals.
package descfile

import (
	"fmt"
	"strings"

	"github.com/cognicore/hilevel/pkg/hilevel/internalerr"
)

// Format is a descriptor file syntax.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts "json" or "yaml" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case JSON:
		return JSON, nil
	case YAML:
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q (want json or yaml)", internalerr.ErrConfiguration, s)
	}
}

func (f Format) String() string { return string(f) }

func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}
