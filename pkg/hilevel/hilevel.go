// Package hilevel wires the high-level descriptor extractor together: the
// algorithm registry with every built-in algorithm, build identity and the
// structured logger shared by the extractor and the batch driver.
package hilevel

import (
	"github.com/cognicore/hilevel/pkg/hilevel/algorithm"
	"github.com/cognicore/hilevel/pkg/hilevel/descfile"
	"github.com/cognicore/hilevel/pkg/hilevel/stats"
	"github.com/cognicore/hilevel/pkg/hilevel/svm"
)

// Build identity, set with -ldflags "-X github.com/cognicore/hilevel/pkg/hilevel.Version=...".
var (
	Version = "0.3.0"
	GitSHA  = "unknown"
)

// ExtractorName is written as the extractor version descriptor together
// with Version.
const ExtractorName = "music 2.0"

// Init returns a frozen registry holding Mean, YamlInput, YamlOutput and
// MusicExtractorSVM. Call Shutdown on it once the batch is done.
func Init() (*algorithm.Registry, error) {
	r := algorithm.NewRegistry()
	for _, reg := range []algorithm.Registration{
		{Info: stats.MeanInfo, Factory: stats.NewMeanFactory},
		{Info: descfile.InputInfo, Factory: descfile.NewInput},
		{Info: descfile.OutputInfo, Factory: descfile.NewOutput},
		{Info: svm.Info, Factory: svm.NewFactory},
	} {
		if err := r.Register(reg); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
