// ABOUTME: Prompt templates shown to players, e.g. "Where is {label}?"
// ABOUTME: Placeholders name record fields; unknown placeholders are left verbatim

package prompt

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/nainya/pinpoint/pkg/dataset"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct field names referenced by tmpl, in order
// of first appearance
func Placeholders(tmpl string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes {field} placeholders with values from fields
func Render(tmpl string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := fields[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Fields exposes a record's JSON fields for rendering
func Fields(r dataset.Record) map[string]string {
	fields := map[string]string{
		"label": r.Label,
		"id":    r.ID,
	}
	if r.Coordinates != nil {
		fields["lat"] = strconv.FormatFloat(r.Lat, 'f', -1, 64)
		fields["lng"] = strconv.FormatFloat(r.Lng, 'f', -1, 64)
	}
	if r.Shape != nil {
		fields["geoShapeUrl"] = r.GeoShapeURL
	}
	return fields
}

// RenderRecord renders tmpl for one record
func RenderRecord(tmpl string, r dataset.Record) string {
	return Render(tmpl, Fields(r))
}

// Unknown returns placeholders in tmpl that are neither the record id nor
// one of dataKeys
func Unknown(tmpl string, dataKeys map[string]string) []string {
	var unknown []string
	for _, name := range Placeholders(tmpl) {
		if name == "id" {
			continue
		}
		if _, ok := dataKeys[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Describe joins names for log and error messages
func Describe(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "{" + n + "}"
	}
	return strings.Join(quoted, ", ")
}
