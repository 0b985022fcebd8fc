// Package store persists dataset metadata as a single JSON document with one
// sibling data file per dataset.
package store

import "errors"

var (
	// ErrNotFound indicates no dataset has the requested id
	ErrNotFound = errors.New("store: dataset not found")

	// ErrNoStore indicates no store document has been written yet
	ErrNoStore = errors.New("store: no datasets stored")
)
