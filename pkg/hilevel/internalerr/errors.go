// Package internalerr holds the error categories shared across the
// extractor. Stage failures wrap one of these together with their cause:
//
//	fmt.Errorf("%w: %w", internalerr.ErrLoad, err)
package internalerr

import "errors"

// Sentinel errors for the failure categories of a batch
var (
	// ErrConfiguration is fatal: bad profile, unresolvable classifier bundle,
	// unsupported global format. Nothing is processed.
	ErrConfiguration = errors.New("configuration error")

	// Per-file categories. The batch reports the file and moves on.
	ErrLoad           = errors.New("load error")
	ErrClassification = errors.New("classification error")
	ErrWrite          = errors.New("write error")
)

