package dataset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/pinpoint/pkg/wikidata"
)

func uriTerm(v string) wikidata.Term { return wikidata.Term{Type: "uri", Value: v} }
func litTerm(v string) wikidata.Term { return wikidata.Term{Type: "literal", Value: v} }

func result(rows ...wikidata.Binding) *wikidata.QueryResult {
	r := &wikidata.QueryResult{}
	r.Results.Bindings = rows
	return r
}

func TestParsePointKeepsLonLatOrder(t *testing.T) {
	lng, lat, err := ParsePoint("Point(2.3522 48.8566)")
	require.NoError(t, err)
	assert.Equal(t, 2.3522, lng)
	assert.Equal(t, 48.8566, lat)
}

func TestParsePointRejectsMalformed(t *testing.T) {
	for _, wkt := range []string{
		"",
		"Point(2.35)",
		"Point(2.35 48.85 10)",
		"Point(east north)",
		"POLYGON((0 0, 1 1))",
		"<http://www.wikidata.org/entity/Q405> Point(10 20)",
		"Point(1 2",
		"Point(NaN 52.52)",
		"Point(13.38 Inf)",
		"Point(-Inf +Inf)",
	} {
		t.Run(wkt, func(t *testing.T) {
			_, _, err := ParsePoint(wkt)
			assert.Error(t, err)
		})
	}
}

func TestNormalizePoint(t *testing.T) {
	raw := result(wikidata.Binding{
		"item":      uriTerm("http://www.wikidata.org/entity/Q90"),
		"itemLabel": litTerm("Paris"),
		"coord":     litTerm("Point(2.3522 48.8566)"),
	})

	got := Normalize(raw, Point)
	require.Len(t, got, 1)
	assert.Equal(t, "Paris", got[0].Label)
	assert.Equal(t, "Q90", got[0].ID)
	assert.Equal(t, 48.8566, got[0].Lat)
	assert.Equal(t, 2.3522, got[0].Lng)
	assert.Nil(t, got[0].Shape)
	assert.Equal(t, Point, got[0].Type())
}

func TestNormalizeDropsRowMissingCoordKeepsOrder(t *testing.T) {
	raw := result(
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q64"),
			"itemLabel": litTerm("Berlin"),
			"coord":     litTerm("Point(13.38 52.52)"),
		},
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q1055"),
			"itemLabel": litTerm("Hamburg"),
		},
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q1726"),
			"itemLabel": litTerm("Munich"),
			"coord":     litTerm("Point(11.57 48.13)"),
		},
	)

	got := Normalize(raw, Point)
	require.Len(t, got, 2)
	assert.Equal(t, "Q64", got[0].ID)
	assert.Equal(t, "Q1726", got[1].ID)
}

func TestNormalizeSkipsUnparseableRows(t *testing.T) {
	raw := result(
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q1"),
			"itemLabel": litTerm("Bad"),
			"coord":     litTerm("Point(abc 1)"),
		},
		wikidata.Binding{
			"itemLabel": litTerm("No item"),
			"coord":     litTerm("Point(1 2)"),
		},
		wikidata.Binding{
			"item":  uriTerm("http://www.wikidata.org/entity/Q2"),
			"coord": litTerm("Point(1 2)"),
		},
	)
	assert.Empty(t, Normalize(raw, Point))
}

func TestNormalizePolygon(t *testing.T) {
	shape := "http://commons.wikimedia.org/data/main/Data:Germany.map"
	raw := result(
		wikidata.Binding{
			"item":        uriTerm("http://www.wikidata.org/entity/Q183"),
			"itemLabel":   litTerm("Germany"),
			"geoShapeUrl": uriTerm(shape),
		},
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q142"),
			"itemLabel": litTerm("France"),
			"coord":     litTerm("Point(2 46)"),
		},
	)

	got := Normalize(raw, Polygon)
	require.Len(t, got, 1)
	assert.Equal(t, shape, got[0].GeoShapeURL)
	assert.Nil(t, got[0].Coordinates)
	assert.Equal(t, Polygon, got[0].Type())
}

func TestNormalizeNilResult(t *testing.T) {
	got := Normalize(nil, Point)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRecordJSONShape(t *testing.T) {
	pt, err := json.Marshal(NewPointRecord("Paris", "Q90", 48.8566, 2.3522))
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"Paris","id":"Q90","lat":48.8566,"lng":2.3522}`, string(pt))

	pg, err := json.Marshal(NewPolygonRecord("Germany", "Q183", "http://x/Data:Germany.map"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"Germany","id":"Q183","geoShapeUrl":"http://x/Data:Germany.map"}`, string(pg))

	var back Record
	require.NoError(t, json.Unmarshal(pt, &back))
	assert.Equal(t, Point, back.Type())
	assert.Equal(t, 2.3522, back.Lng)
}

func TestParseConstraintNegation(t *testing.T) {
	c := ParseConstraint("-P17", "Q183")
	assert.Equal(t, Constraint{Property: "P17", Value: "Q183", Negate: true}, c)

	c = ParseConstraint(" p30 ", "q46")
	assert.Equal(t, Constraint{Property: "P30", Value: "Q46"}, c)
}

func TestConstraintJSONRoundTrip(t *testing.T) {
	var c Constraint
	require.NoError(t, json.Unmarshal([]byte(`{"property":"-P17","value":"Q183"}`), &c))
	assert.True(t, c.Negate)
	assert.Equal(t, "P17", c.Property)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"property":"-P17","value":"Q183"}`, string(out))
}

func TestConfigUnmarshalDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"item_type":"q515","dataset_type":"point"}`), &cfg))

	assert.Equal(t, "Q515", cfg.ItemType)
	assert.True(t, cfg.ExcludeHistorical)
	assert.Equal(t, DefaultLimit, cfg.Limit)
	assert.NotNil(t, cfg.Constraints)

	require.NoError(t, json.Unmarshal([]byte(`{"item_type":"Q515","dataset_type":"point","exclude_dissolved":false,"limit":7,"min_pop":5000}`), &cfg))
	assert.False(t, cfg.ExcludeHistorical)
	assert.Equal(t, 7, cfg.Limit)
	assert.Equal(t, int64(5000), cfg.MinPopulation)

	// Negative values decode; min_pop <= 0 means no filter and only Validate
	// judges the limit
	require.NoError(t, json.Unmarshal([]byte(`{"item_type":"Q515","dataset_type":"point","min_pop":-1,"limit":-5}`), &cfg))
	assert.Equal(t, int64(-1), cfg.MinPopulation)
	assert.Equal(t, -5, cfg.Limit)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	valid := NewConfig("Q515", Point)
	valid.Constraints = []Constraint{ParseConstraint("P17", "Q183")}
	require.NoError(t, valid.Validate())

	noFilter := valid
	noFilter.MinPopulation = -1
	require.NoError(t, noFilter.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad item type", func(c *Config) { c.ItemType = "Q515. } DROP" }},
		{"empty item type", func(c *Config) { c.ItemType = "" }},
		{"unknown dataset type", func(c *Config) { c.DatasetType = "line" }},
		{"zero limit", func(c *Config) { c.Limit = 0 }},
		{"negative limit", func(c *Config) { c.Limit = -1 }},
		{"bad property", func(c *Config) { c.Constraints = []Constraint{{Property: "wdt:P17", Value: "Q183"}} }},
		{"bad value", func(c *Config) { c.Constraints = []Constraint{{Property: "P17", Value: "?x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			c.Constraints = append([]Constraint(nil), valid.Constraints...)
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType("Polygon")
	require.NoError(t, err)
	assert.Equal(t, Polygon, got)

	_, err = ParseType("line")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDataKeys(t *testing.T) {
	assert.Equal(t, map[string]string{"label": "label", "lat": "lat", "lng": "lng"}, DataKeys(Point))
	assert.Equal(t, map[string]string{"label": "label", "geoShapeUrl": "geoShapeUrl"}, DataKeys(Polygon))
}

func TestNormalizeDropsNonFiniteCoordinates(t *testing.T) {
	raw := result(
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q64"),
			"itemLabel": litTerm("Berlin"),
			"coord":     litTerm("Point(13.38 52.52)"),
		},
		wikidata.Binding{
			"item":      uriTerm("http://www.wikidata.org/entity/Q1"),
			"itemLabel": litTerm("Nowhere"),
			"coord":     litTerm("Point(NaN Inf)"),
		},
	)

	got := Normalize(raw, Point)
	require.Len(t, got, 1)
	assert.Equal(t, "Q64", got[0].ID)

	// The batch stays encodable
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestEntryKeepsSourceDocument(t *testing.T) {
	src := `{"id":"capitals","name":"Capitals","type":"point","filename":"capitals.json",` +
		`"sub_prompt_template":null,"config":{"item_type":"q5119","dataset_type":"point"},"icon":"city.svg"}`

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(src), &e))
	assert.Equal(t, "capitals", e.ID)
	require.NotNil(t, e.Config)
	assert.Equal(t, "Q5119", e.Config.ItemType)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))

	// A config that does not fit leaves the entry usable
	require.NoError(t, json.Unmarshal([]byte(`{"id":"odd","config":{"limit":"many"}}`), &e))
	assert.Equal(t, "odd", e.ID)
	assert.Nil(t, e.Config)

	fresh := Entry{ID: "custom_1", Type: Point, DataKeys: DataKeys(Point)}
	out, err = json.Marshal(fresh)
	require.NoError(t, err)
	assert.Nil(t, fresh.Raw())
	assert.JSONEq(t, `{"id":"custom_1","name":"","description":"","type":"point","filename":"",
		"prompt_template":"","sub_prompt_template":"","data_keys":{"label":"label","lat":"lat","lng":"lng"}}`, string(out))
}
