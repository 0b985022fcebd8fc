// ABOUTME: Converts raw SPARQL bindings into typed dataset records
// ABOUTME: Row-level best effort: malformed rows are skipped, never abort the batch

package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nainya/pinpoint/pkg/wikidata"
)

// Result variable names shared with the query builder
const (
	VarItem        = "item"
	VarItemLabel   = "itemLabel"
	VarCoord       = "coord"
	VarGeoShapeURL = "geoShapeUrl"
	VarSitelinks   = "sitelinks"
)

// Normalize converts bindings into records of type t, preserving row order.
// Rows missing a required field or failing to parse are dropped.
func Normalize(raw *wikidata.QueryResult, t Type) []Record {
	records := []Record{}
	if raw == nil {
		return records
	}
	for _, row := range raw.Results.Bindings {
		rec, ok := normalizeRow(row, t)
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

func normalizeRow(row wikidata.Binding, t Type) (Record, bool) {
	label, ok := row.Value(VarItemLabel)
	if !ok {
		return Record{}, false
	}
	uri, ok := row.Value(VarItem)
	if !ok {
		return Record{}, false
	}
	id := lastPathSegment(uri)
	if id == "" {
		return Record{}, false
	}

	switch t {
	case Point:
		wkt, ok := row.Value(VarCoord)
		if !ok {
			return Record{}, false
		}
		lng, lat, err := ParsePoint(wkt)
		if err != nil {
			return Record{}, false
		}
		return NewPointRecord(label, id, lat, lng), true
	case Polygon:
		shape, ok := row.Value(VarGeoShapeURL)
		if !ok || shape == "" {
			return Record{}, false
		}
		return NewPolygonRecord(label, id, shape), true
	default:
		return Record{}, false
	}
}

func lastPathSegment(uri string) string {
	return uri[strings.LastIndex(uri, "/")+1:]
}

// ParsePoint parses a WKT literal "Point(<lon> <lat>)". The source order is
// longitude first; the return order matches it.
func ParsePoint(wkt string) (lng, lat float64, err error) {
	s := strings.TrimSpace(wkt)
	s, ok := strings.CutPrefix(s, "Point(")
	if !ok {
		return 0, 0, fmt.Errorf("not a WKT point: %q", wkt)
	}
	s, ok = strings.CutSuffix(s, ")")
	if !ok {
		return 0, 0, fmt.Errorf("unterminated WKT point: %q", wkt)
	}
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("WKT point needs two coordinates: %q", wkt)
	}
	if lng, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	if lat, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	if !isFinite(lng) || !isFinite(lat) {
		return 0, 0, fmt.Errorf("WKT point has non-finite coordinates: %q", wkt)
	}
	return lng, lat, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
