// ABOUTME: Normalized dataset records and persisted dataset metadata
// ABOUTME: Record is a tagged variant: coordinates for points, a shape URL for polygons

package dataset

import (
	"encoding/json"
	"slices"
)

// Coordinates locate a point record
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Shape references the boundary of a polygon record
type Shape struct {
	GeoShapeURL string `json:"geoShapeUrl"`
}

// Record is one normalized item. Exactly one of Coordinates or Shape is set,
// matching the dataset type; the embedded pointer's fields are flattened in
// JSON so a point reads {label,id,lat,lng} and a polygon {label,id,geoShapeUrl}.
type Record struct {
	Label string `json:"label"`
	ID    string `json:"id"`
	*Coordinates
	*Shape
}

// NewPointRecord creates a point record
func NewPointRecord(label, id string, lat, lng float64) Record {
	return Record{Label: label, ID: id, Coordinates: &Coordinates{Lat: lat, Lng: lng}}
}

// NewPolygonRecord creates a polygon record
func NewPolygonRecord(label, id, geoShapeURL string) Record {
	return Record{Label: label, ID: id, Shape: &Shape{GeoShapeURL: geoShapeURL}}
}

// Type reports which variant the record holds, or "" if neither
func (r Record) Type() Type {
	switch {
	case r.Coordinates != nil && r.Shape == nil:
		return Point
	case r.Shape != nil && r.Coordinates == nil:
		return Polygon
	default:
		return ""
	}
}

// Entry is the persisted metadata of one saved dataset.
//
// An entry decoded from JSON keeps its source document and encodes back to
// it unchanged, including fields this type does not model. Build a new
// Entry to change one.
type Entry struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	Type              Type              `json:"type"`
	Filename          string            `json:"filename"`
	PromptTemplate    string            `json:"prompt_template"`
	SubPromptTemplate string            `json:"sub_prompt_template"`
	Config            *Config           `json:"config,omitempty"` // absent on entries created before configs were stored
	DataKeys          map[string]string `json:"data_keys"`

	raw json.RawMessage
}

type entryFields Entry

// UnmarshalJSON decodes the typed view and retains data. A config that does
// not fit Config leaves Config nil instead of failing the entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var aux struct {
		entryFields
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux.entryFields)
	e.Config = nil
	if len(aux.Config) > 0 && string(aux.Config) != "null" {
		var cfg Config
		if err := json.Unmarshal(aux.Config, &cfg); err == nil {
			e.Config = &cfg
		}
	}
	e.raw = slices.Clone(data)
	return nil
}

// MarshalJSON re-emits the source document of a decoded entry
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return json.Marshal(entryFields(e))
}

// Raw returns the JSON the entry was decoded from, or nil for a new entry
func (e Entry) Raw() json.RawMessage {
	return e.raw
}

// DefaultPromptTemplate is used when a dataset is saved without one
const DefaultPromptTemplate = "Where is {label}?"

// DataKeys maps the record fields a client should read for the dataset type
func DataKeys(t Type) map[string]string {
	keys := map[string]string{"label": "label"}
	switch t {
	case Point:
		keys["lat"] = "lat"
		keys["lng"] = "lng"
	case Polygon:
		keys["geoShapeUrl"] = "geoShapeUrl"
	}
	return keys
}
