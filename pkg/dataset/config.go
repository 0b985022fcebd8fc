// ABOUTME: Dataset generation config and its boundary parsing
// ABOUTME: Constraint negation is parsed once from the wire form into a bool

package dataset

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Type discriminates point and polygon datasets
type Type string

const (
	Point   Type = "point"
	Polygon Type = "polygon"
)

// ParseType parses a dataset type name
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Point, Polygon:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown dataset type %q", ErrInvalidConfig, s)
	}
}

// Valid reports whether t is a known dataset type
func (t Type) Valid() bool {
	return t == Point || t == Polygon
}

// Defaults applied when a config omits the field
const (
	DefaultLimit             = 100
	DefaultExcludeHistorical = true
)

// negationMarker prefixes a property on the wire to negate the constraint
const negationMarker = "-"

var (
	entityIDPattern   = regexp.MustCompile(`^Q[1-9][0-9]*$`)
	propertyIDPattern = regexp.MustCompile(`^P[1-9][0-9]*$`)
)

// Constraint restricts results to items whose Property has Value,
// or, when Negate is set, to items that do not.
type Constraint struct {
	Property string
	Value    string
	Negate   bool
}

// ParseConstraint builds a Constraint from the wire form, where a leading
// "-" on the property negates it (e.g. "-P17").
func ParseConstraint(property, value string) Constraint {
	property = strings.ToUpper(strings.TrimSpace(property))
	c := Constraint{Value: strings.ToUpper(strings.TrimSpace(value))}
	if rest, ok := strings.CutPrefix(property, negationMarker); ok {
		c.Negate = true
		property = rest
	}
	c.Property = property
	return c
}

// String returns the command-line form, e.g. "-P17=Q183"
func (c Constraint) String() string {
	if c.Negate {
		return negationMarker + c.Property + "=" + c.Value
	}
	return c.Property + "=" + c.Value
}

type constraintWire struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// MarshalJSON emits the wire form so stored configs round-trip
func (c Constraint) MarshalJSON() ([]byte, error) {
	prop := c.Property
	if c.Negate {
		prop = negationMarker + prop
	}
	return json.Marshal(constraintWire{Property: prop, Value: c.Value})
}

// UnmarshalJSON parses the wire form
func (c *Constraint) UnmarshalJSON(data []byte) error {
	var w constraintWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = ParseConstraint(w.Property, w.Value)
	return nil
}

// Config fully determines the compiled query for a dataset.
// MinPopulation <= 0 disables the population filter.
type Config struct {
	ItemType          string       `json:"item_type"`
	Constraints       []Constraint `json:"constraints"`
	DatasetType       Type         `json:"dataset_type"`
	MinPopulation     int64        `json:"min_pop"`
	ExcludeHistorical bool         `json:"exclude_dissolved"`
	Limit             int          `json:"limit"`
}

// NewConfig returns a config with defaults applied
func NewConfig(itemType string, datasetType Type) Config {
	return Config{
		ItemType:          itemType,
		Constraints:       []Constraint{},
		DatasetType:       datasetType,
		ExcludeHistorical: DefaultExcludeHistorical,
		Limit:             DefaultLimit,
	}
}

// UnmarshalJSON applies defaults for omitted exclude_dissolved and limit
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	p := plain{
		ExcludeHistorical: DefaultExcludeHistorical,
		Limit:             DefaultLimit,
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Config(p)
	c.ItemType = strings.ToUpper(strings.TrimSpace(c.ItemType))
	if c.Constraints == nil {
		c.Constraints = []Constraint{}
	}
	return nil
}

// Validate checks identifiers and bounds. Identifiers are interpolated into
// the compiled query, so anything that is not a plain Q/P id is rejected.
func (c Config) Validate() error {
	if !entityIDPattern.MatchString(c.ItemType) {
		return fmt.Errorf("%w: item_type %q is not an entity id", ErrInvalidConfig, c.ItemType)
	}
	if !c.DatasetType.Valid() {
		return fmt.Errorf("%w: unknown dataset type %q", ErrInvalidConfig, c.DatasetType)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}
	for i, cons := range c.Constraints {
		if !propertyIDPattern.MatchString(cons.Property) {
			return fmt.Errorf("%w: constraint %d: property %q is not a property id", ErrInvalidConfig, i, cons.Property)
		}
		if !entityIDPattern.MatchString(cons.Value) {
			return fmt.Errorf("%w: constraint %d: value %q is not an entity id", ErrInvalidConfig, i, cons.Value)
		}
	}
	return nil
}

// IsEntityID reports whether s looks like a Wikidata item id (e.g. Q183)
func IsEntityID(s string) bool {
	return entityIDPattern.MatchString(s)
}
