// ABOUTME: Compiles a dataset config into a Wikidata SPARQL query
// ABOUTME: Property codes and clause order follow the Wikidata query service schema

package sparql

import (
	"github.com/nainya/pinpoint/pkg/dataset"
)

// Wikidata properties and vocabulary used by compiled queries
const (
	PropInstanceOf   PName = "wdt:P31"
	PropSubclassOf   PName = "wdt:P279"
	PropCoordinate   PName = "wdt:P625"
	PropGeoShape     PName = "wdt:P3896"
	PropPopulation   PName = "wdt:P1082"
	PropDissolvedOn  PName = "wdt:P576"
	PredSitelinks    PName = "wikibase:sitelinks"
	ServiceLabel     PName = "wikibase:label"
	LabelLanguageArg PName = "bd:serviceParam"
	LabelLanguage    PName = "wikibase:language"

	// LabelLanguages resolves labels in the requester's language, then English
	LabelLanguages Literal = "[AUTO_LANGUAGE],en"
)

const (
	varItem      = Var(dataset.VarItem)
	varItemLabel = Var(dataset.VarItemLabel)
	varCoord     = Var(dataset.VarCoord)
	varShape     = Var(dataset.VarGeoShapeURL)
	varSitelinks = Var(dataset.VarSitelinks)
	varPop       = Var("pop")
	varEnd       = Var("end")
)

func wd(id string) PName  { return PName("wd:" + id) }
func wdt(id string) PName { return PName("wdt:" + id) }

// Build compiles cfg into a query tree. It performs no validation; callers
// validate cfg first (see dataset.Config.Validate).
func Build(cfg dataset.Config) *Query {
	q := &Query{
		Distinct: true,
		Select:   []Var{varItem, varItemLabel},
		Limit:    cfg.Limit,
	}

	switch cfg.DatasetType {
	case dataset.Point:
		q.Select = append(q.Select, varCoord)
	case dataset.Polygon:
		q.Select = append(q.Select, varShape)
	}
	q.Select = append(q.Select, varSitelinks)

	// Instances of the item type, transitively through subclasses
	q.Where = append(q.Where, Triple{
		Subject:   varItem,
		Predicate: Path{{Predicate: PropInstanceOf}, {Predicate: PropSubclassOf, ZeroOrMore: true}},
		Object:    wd(cfg.ItemType),
	})

	for _, c := range cfg.Constraints {
		pattern := Triple{Subject: varItem, Predicate: wdt(c.Property), Object: wd(c.Value)}
		if c.Negate {
			q.Where = append(q.Where, NotExists{Patterns: []Clause{pattern}})
		} else {
			q.Where = append(q.Where, pattern)
		}
	}

	if cfg.MinPopulation > 0 {
		q.Where = append(q.Where,
			Triple{Subject: varItem, Predicate: PropPopulation, Object: varPop},
			Filter{Expr: Compare{Left: varPop, Op: ">=", Right: Integer(cfg.MinPopulation)}},
		)
	}

	if cfg.ExcludeHistorical {
		q.Where = append(q.Where, NotExists{Patterns: []Clause{
			Triple{Subject: varItem, Predicate: PropDissolvedOn, Object: varEnd},
		}})
	}

	switch cfg.DatasetType {
	case dataset.Point:
		q.Where = append(q.Where, Triple{Subject: varItem, Predicate: PropCoordinate, Object: varCoord})
	case dataset.Polygon:
		q.Where = append(q.Where, Triple{Subject: varItem, Predicate: PropGeoShape, Object: varShape})
	}

	q.Where = append(q.Where,
		Triple{Subject: varItem, Predicate: PredSitelinks, Object: varSitelinks},
		Service{Name: ServiceLabel, Patterns: []Clause{
			Triple{Subject: LabelLanguageArg, Predicate: LabelLanguage, Object: LabelLanguages},
		}},
	)

	q.OrderBy = []OrderKey{{Var: varSitelinks, Descending: true}}
	return q
}

// Compile renders the query for cfg
func Compile(cfg dataset.Config) string {
	return Build(cfg).String()
}
