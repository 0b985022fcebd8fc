// Package wikidata talks to the Wikidata entity search API and SPARQL query service
package wikidata

import "errors"

var (
	// ErrQueryFailed indicates the SPARQL endpoint could not produce a result
	// (transport error, non-2xx status or malformed body). Callers treat it as
	// "no data available", never as an empty dataset.
	ErrQueryFailed = errors.New("wikidata: query failed")

	// ErrSearchFailed indicates an entity search transport or parse failure
	ErrSearchFailed = errors.New("wikidata: search failed")
)
