package analytics

import (
	"fmt"
	"strings"
)

// PredOp is the closed predicate vocabulary.
type PredOp int

const (
	PredEq PredOp = iota
	PredNeq
	PredGt
	PredGte
	PredLt
	PredLte
	PredIn
	PredContains
	PredBetween
)

func (p PredOp) String() string {
	switch p {
	case PredEq:
		return "eq"
	case PredNeq:
		return "neq"
	case PredGt:
		return "gt"
	case PredGte:
		return "gte"
	case PredLt:
		return "lt"
	case PredLte:
		return "lte"
	case PredIn:
		return "in"
	case PredContains:
		return "contains"
	case PredBetween:
		return "between"
	default:
		return "unknown"
	}
}

// Predicate is one declarative filter condition. Values are untyped strings;
// the executor parses them according to the column's declared type.
type Predicate struct {
	Column string
	Op     PredOp
	Values []string
}

// AggOp is the closed aggregation vocabulary.
type AggOp int

const (
	AggNone AggOp = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (a AggOp) String() string {
	switch a {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	default:
		return "none"
	}
}

// Plan is the declarative description of one analytics computation. It
// references catalog columns only; validation rejects anything else before
// compilation.
type Plan struct {
	Predicates []Predicate
	GroupBy    []string
	Agg        AggOp
	AggColumn  string
	Select     []string
	SortBy     string
	SortDesc   bool
	Limit      int
	// ResultName is the single name the computed value binds to.
	ResultName string
	// Subject is a short human description of what was filtered, used in the
	// zero-result grounding message.
	Subject string
}

// SchemaViolationError reports a plan referencing a column or operation the
// catalog does not declare. Fatal for the analytics attempt; surfaced to the
// user as "that metric isn't available".
type SchemaViolationError struct {
	Column string
	Detail string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation on column %q: %s", e.Column, e.Detail)
}

// ExecutionError reports a failure while running a compiled plan. The caller
// may regenerate the plan exactly once before treating it as terminal.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("analytics execution failed at %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// EmptyResultError reports that the scoped, filtered dataset had no rows.
// Non-fatal: it grounds a zero-result answer.
type EmptyResultError struct {
	Subject string
}

func (e *EmptyResultError) Error() string {
	if e.Subject == "" {
		return "no rows matched the analytics filters"
	}
	return fmt.Sprintf("no rows matched %q", e.Subject)
}

// Validate checks every column reference in the plan against the catalog:
// existence, type compatibility of each predicate, aggregation allowance,
// and that group-by and projection columns are not internal. It fails closed
// with SchemaViolationError on the first violation.
func (c Catalog) Validate(p Plan) error {
	for _, pred := range p.Predicates {
		col, ok := c[pred.Column]
		if !ok {
			return &SchemaViolationError{Column: pred.Column, Detail: "not in catalog"}
		}
		if err := predCompatible(col, pred); err != nil {
			return err
		}
	}

	for _, g := range p.GroupBy {
		col, ok := c[g]
		if !ok {
			return &SchemaViolationError{Column: g, Detail: "not in catalog"}
		}
		if col.Internal {
			return &SchemaViolationError{Column: g, Detail: "internal column cannot be grouped"}
		}
	}

	if p.Agg != AggNone && p.Agg != AggCount {
		if p.AggColumn == "" {
			return &SchemaViolationError{Column: "", Detail: fmt.Sprintf("%s requires a column", p.Agg)}
		}
		col, ok := c[p.AggColumn]
		if !ok {
			return &SchemaViolationError{Column: p.AggColumn, Detail: "not in catalog"}
		}
		if !c.aggAllowed(p.AggColumn, p.Agg) {
			return &SchemaViolationError{
				Column: p.AggColumn,
				Detail: fmt.Sprintf("aggregation %s not allowed on %s", p.Agg, col.describe()),
			}
		}
	}

	for _, s := range p.Select {
		col, ok := c[s]
		if !ok {
			return &SchemaViolationError{Column: s, Detail: "not in catalog"}
		}
		if col.Internal {
			return &SchemaViolationError{Column: s, Detail: "internal column cannot be projected"}
		}
	}

	if p.SortBy != "" && !c.Has(p.SortBy) {
		return &SchemaViolationError{Column: p.SortBy, Detail: "not in catalog"}
	}

	return nil
}

// predCompatible checks a predicate against the column's declared type.
func predCompatible(col Column, pred Predicate) error {
	switch pred.Op {
	case PredGt, PredGte, PredLt, PredLte, PredBetween:
		if col.Type == TypeCategorical {
			return &SchemaViolationError{
				Column: col.Name,
				Detail: fmt.Sprintf("%s not supported on %s", pred.Op, col.describe()),
			}
		}
	case PredContains:
		if col.Type != TypeCategorical {
			return &SchemaViolationError{
				Column: col.Name,
				Detail: fmt.Sprintf("contains only supported on categorical columns, got %s", col.Type),
			}
		}
	}

	if pred.Op == PredBetween && len(pred.Values) != 2 {
		return &SchemaViolationError{
			Column: col.Name,
			Detail: fmt.Sprintf("between needs exactly 2 values, got %d", len(pred.Values)),
		}
	}
	if len(pred.Values) == 0 {
		return &SchemaViolationError{Column: col.Name, Detail: "predicate has no values"}
	}
	return nil
}

// resultName derives the single binding name for a plan's outcome.
func resultName(p Plan) string {
	if p.ResultName != "" {
		return p.ResultName
	}
	if p.Agg == AggNone {
		return "rows"
	}
	if p.AggColumn == "" {
		return p.Agg.String()
	}
	return p.Agg.String() + "_" + strings.ReplaceAll(p.AggColumn, " ", "_")
}
