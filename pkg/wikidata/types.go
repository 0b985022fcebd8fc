// ABOUTME: Wikidata wire types for entity search and SPARQL results
// ABOUTME: Mirrors the JSON shapes returned by wbsearchentities and the query service

package wikidata

// EntityRef is one candidate returned by entity search
type EntityRef struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// SearchKind filters search results by entity kind
type SearchKind string

const (
	KindItem     SearchKind = "item"
	KindProperty SearchKind = "property"
)

// Term is a single bound value in a SPARQL result row
type Term struct {
	Type     string `json:"type"`               // uri, literal, bnode
	Value    string `json:"value"`              // lexical form
	Datatype string `json:"datatype,omitempty"` // e.g. geo:wktLiteral
	Lang     string `json:"xml:lang,omitempty"` // language tag of labels
}

// Binding is one result row, keyed by variable name
type Binding map[string]Term

// Value returns the lexical value bound to name and whether it was bound
func (b Binding) Value(name string) (string, bool) {
	t, ok := b[name]
	if !ok {
		return "", false
	}
	return t.Value, true
}

// QueryResult is the SPARQL 1.1 JSON results document
type QueryResult struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

type searchResponse struct {
	Search []EntityRef `json:"search"`
}
