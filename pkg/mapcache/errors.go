// Package mapcache is a write-once local cache of externally hosted map shape
// files, keyed by a hash of the source URL.
package mapcache

import "errors"

var (
	// ErrFetchFailed indicates the shape could not be fetched; nothing is cached
	ErrFetchFailed = errors.New("mapcache: fetch failed")

	// ErrURLNotAllowed indicates the URL failed validation
	ErrURLNotAllowed = errors.New("mapcache: url not allowed")
)
