// Package manifest reads batch manifests: JSONL files with one
// {"input": ..., "output": ...} object per line.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cognicore/hilevel/pkg/hilevel/batch"
)

// LoadFromJSONL loads the pairs of a manifest in file order. Blank lines are
// ignored. A malformed line fails the whole manifest so no file is silently
// dropped from the batch.
func LoadFromJSONL(path string) ([]batch.Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var pairs []batch.Pair
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var pair batch.Pair
		if err := json.Unmarshal([]byte(line), &pair); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		if pair.Input == "" || pair.Output == "" {
			return nil, fmt.Errorf("%s:%d: both input and output are required", path, i+1)
		}
		pairs = append(pairs, pair)
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs found in %s", path)
	}

	return pairs, nil
}
