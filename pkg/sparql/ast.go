// Package sparql represents SELECT queries as a small clause tree and renders
// them with a single deterministic serializer.
package sparql

import (
	"strconv"
	"strings"
)

// Term is anything that can stand in a triple position or an expression
type Term interface {
	writeTerm(b *strings.Builder)
}

// Var is a query variable, rendered as ?name
type Var string

func (v Var) writeTerm(b *strings.Builder) {
	b.WriteByte('?')
	b.WriteString(string(v))
}

// PName is a prefixed name such as wdt:P31
type PName string

func (p PName) writeTerm(b *strings.Builder) {
	b.WriteString(string(p))
}

// Literal is a plain string literal, rendered double-quoted
type Literal string

func (l Literal) writeTerm(b *strings.Builder) {
	b.WriteString(strconv.Quote(string(l)))
}

// Integer is an unsigned numeric literal
type Integer uint64

func (n Integer) writeTerm(b *strings.Builder) {
	b.WriteString(strconv.FormatUint(uint64(n), 10))
}

// PathStep is one predicate in a property path, optionally repeated
type PathStep struct {
	Predicate  PName
	ZeroOrMore bool
}

// Path is a sequence property path, e.g. wdt:P31/wdt:P279*
type Path []PathStep

func (p Path) writeTerm(b *strings.Builder) {
	for i, step := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(string(step.Predicate))
		if step.ZeroOrMore {
			b.WriteByte('*')
		}
	}
}

// Clause is one element of a group graph pattern
type Clause interface {
	writeClause(b *strings.Builder)
}

// Triple is a basic triple pattern
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func (t Triple) writeClause(b *strings.Builder) {
	t.Subject.writeTerm(b)
	b.WriteByte(' ')
	t.Predicate.writeTerm(b)
	b.WriteByte(' ')
	t.Object.writeTerm(b)
	b.WriteByte('.')
}

// Compare is a binary comparison expression
type Compare struct {
	Left  Term
	Op    string // one of = != < <= > >=
	Right Term
}

// Filter restricts solutions to those where Expr holds
type Filter struct {
	Expr Compare
}

func (f Filter) writeClause(b *strings.Builder) {
	b.WriteString("FILTER(")
	f.Expr.Left.writeTerm(b)
	b.WriteByte(' ')
	b.WriteString(f.Expr.Op)
	b.WriteByte(' ')
	f.Expr.Right.writeTerm(b)
	b.WriteByte(')')
}

// NotExists removes solutions for which the inner patterns match
type NotExists struct {
	Patterns []Clause
}

func (n NotExists) writeClause(b *strings.Builder) {
	b.WriteString("FILTER NOT EXISTS ")
	writeInlineGroup(b, n.Patterns)
}

// Service delegates the inner patterns to a named service
type Service struct {
	Name     PName
	Patterns []Clause
}

func (s Service) writeClause(b *strings.Builder) {
	b.WriteString("SERVICE ")
	b.WriteString(string(s.Name))
	b.WriteByte(' ')
	writeInlineGroup(b, s.Patterns)
}

func writeInlineGroup(b *strings.Builder, patterns []Clause) {
	b.WriteString("{ ")
	for _, p := range patterns {
		p.writeClause(b)
		b.WriteByte(' ')
	}
	b.WriteByte('}')
}

// OrderKey sorts solutions by a variable
type OrderKey struct {
	Var        Var
	Descending bool
}

// Query is a SELECT query
type Query struct {
	Distinct bool
	Select   []Var
	Where    []Clause
	OrderBy  []OrderKey
	Limit    int // <= 0 = no limit
}

// String renders the query. Identical trees always render identically.
func (q *Query) String() string {
	var b strings.Builder

	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	for _, v := range q.Select {
		v.writeTerm(&b)
		b.WriteByte(' ')
	}

	b.WriteString("WHERE {\n")
	for _, c := range q.Where {
		b.WriteString("  ")
		c.writeClause(&b)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")

	if len(q.OrderBy) > 0 {
		b.WriteString("ORDER BY")
		for _, k := range q.OrderBy {
			b.WriteByte(' ')
			if k.Descending {
				b.WriteString("DESC(")
				k.Var.writeTerm(&b)
				b.WriteByte(')')
			} else {
				k.Var.writeTerm(&b)
			}
		}
		b.WriteByte('\n')
	}

	if q.Limit > 0 {
		b.WriteString("LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}

	return b.String()
}
