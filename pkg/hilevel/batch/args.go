package batch

import (
	"errors"
)

// ErrUsage is returned by ParseArgs when there is not at least one
// input/output pair.
var ErrUsage = errors.New("expected input output [input output ...] [profile]")

// Pair is one file to process.
type Pair struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ParseArgs splits positional arguments into pairs and an optional profile.
// With an odd number of arguments the last one is the profile:
//
//	in.json out.json                    -> 1 pair, no profile
//	in.json out.json profile.yaml       -> 1 pair, profile.yaml
//	a.json a.out b.json b.out           -> 2 pairs, no profile
func ParseArgs(args []string) ([]Pair, string, error) {
	if len(args) < 2 {
		return nil, "", ErrUsage
	}
	var profile string
	if len(args)%2 == 1 {
		profile = args[len(args)-1]
		args = args[:len(args)-1]
	}
	pairs := make([]Pair, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, Pair{Input: args[i], Output: args[i+1]})
	}
	return pairs, profile, nil
}
