package search

import (
	"fmt"
	"strings"
)

// ClauseOp is the closed set of operations a filter clause may use.
type ClauseOp int

const (
	// OpIn matches a scalar field against a value list.
	OpIn ClauseOp = iota
	// OpAnyIn matches any element of a collection field against a value list.
	OpAnyIn
	// OpRange matches a field inside an inclusive [min, max] range; Values
	// holds exactly two RFC 3339 timestamps or numeric literals.
	OpRange
)

// Clause is one entity predicate inside a filter.
type Clause struct {
	Field  string
	Op     ClauseOp
	Values []string
}

// Filter is the structured search restriction. The scope clause is fixed at
// construction and is always rendered first, ANDed with every entity clause.
// Filters are value types; And returns an extended copy.
type Filter struct {
	scopeField string
	scopeCodes []string
	clauses    []Clause
}

// NewFilter builds a filter anchored on the mandatory scope predicate over a
// collection field. An empty code set is allowed but renders as a match-
// nothing expression, so a missing scope fails closed at the backend too.
func NewFilter(scopeField string, scopeCodes []string) Filter {
	codes := make([]string, len(scopeCodes))
	copy(codes, scopeCodes)
	return Filter{scopeField: scopeField, scopeCodes: codes}
}

// And returns a copy of the filter with one more entity clause. Clauses with
// no values are elided since they cannot restrict anything.
func (f Filter) And(c Clause) Filter {
	if len(c.Values) == 0 {
		return f
	}
	clauses := make([]Clause, len(f.clauses), len(f.clauses)+1)
	copy(clauses, f.clauses)
	f.clauses = append(clauses, c)
	return f
}

// ScopeCodes returns a copy of the scope code list.
func (f Filter) ScopeCodes() []string {
	out := make([]string, len(f.scopeCodes))
	copy(out, f.scopeCodes)
	return out
}

// Clauses returns a copy of the entity clauses.
func (f Filter) Clauses() []Clause {
	out := make([]Clause, len(f.clauses))
	copy(out, f.clauses)
	return out
}

// Expr renders the filter in the index filter syntax. The scope predicate is
// always first and ANDed at the top level; an empty scope renders the literal
// false expression.
func (f Filter) Expr() string {
	parts := []string{f.scopeExpr()}
	for _, c := range f.clauses {
		parts = append(parts, clauseExpr(c))
	}
	return strings.Join(parts, " and ")
}

func (f Filter) scopeExpr() string {
	if len(f.scopeCodes) == 0 {
		return "false"
	}
	joined := strings.Join(f.scopeCodes, ",")
	return fmt.Sprintf("%s/any(c: search.in(c, '%s', ','))", f.scopeField, escape(joined))
}

func clauseExpr(c Clause) string {
	switch c.Op {
	case OpAnyIn:
		joined := strings.Join(c.Values, ",")
		return fmt.Sprintf("%s/any(x: search.in(x, '%s', ','))", c.Field, escape(joined))
	case OpRange:
		return fmt.Sprintf("(%s ge %s and %s le %s)", c.Field, c.Values[0], c.Field, c.Values[1])
	default:
		joined := strings.Join(c.Values, ",")
		return fmt.Sprintf("search.in(%s, '%s', ',')", c.Field, escape(joined))
	}
}

// escape doubles single quotes so identifier values cannot break out of the
// quoted list literal.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
