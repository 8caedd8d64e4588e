package extractor

import (
	"github.com/cognicore/hilevel/pkg/hilevel/pool"
)

// State is a step of the per-file pipeline. A file moves forward through
// Loaded, Classified, Cleaned, Versioned, Merged and Serialized; Failed is
// absorbing.
type State int

const (
	Pending State = iota
	Loaded
	Classified
	Cleaned
	Versioned
	Merged
	Serialized
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Classified:
		return "classified"
	case Cleaned:
		return "cleaned"
	case Versioned:
		return "versioned"
	case Merged:
		return "merged"
	case Serialized:
		return "serialized"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one file.
//
// On success State is Serialized and Err is nil. On failure State is Failed,
// FailedAt is the state the file was moving to and Err wraps one of the
// internalerr categories.
type Result struct {
	Input    string
	Output   string
	State    State
	FailedAt State
	Err      error

	// Pool is the final pool, or the pool as it was when the step failed.
	// It is nil when loading failed.
	Pool *pool.Pool

	// Conflicts lists merge keys that kept the file's value.
	Conflicts []string
}

// OK reports whether the file was written.
func (r Result) OK() bool { return r.Err == nil && r.State == Serialized }

// Stage names the state the result ended in, or the step that failed.
func (r Result) Stage() string {
	if r.State == Failed {
		return r.FailedAt.String()
	}
	return r.State.String()
}
