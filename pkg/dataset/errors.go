// Package dataset defines dataset configurations, normalized records and
// persisted dataset metadata, and converts SPARQL results into records.
package dataset

import "errors"

var (
	// ErrEmptyResult indicates a query succeeded but produced no usable records
	ErrEmptyResult = errors.New("dataset: no items found")

	// ErrInvalidConfig indicates a dataset configuration failed validation
	ErrInvalidConfig = errors.New("dataset: invalid config")
)
