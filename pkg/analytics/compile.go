package analytics

// stepKind enumerates the fixed pipeline stages a compiled plan may contain.
type stepKind int

const (
	stepFilter stepKind = iota
	stepGroup
	stepAggregate
	stepProject
	stepSort
	stepLimit
)

// step is one operation of a compiled plan. Steps are plain data; the
// executor interprets them against the dataset.
type step struct {
	kind       stepKind
	predicates []Predicate
	groupBy    []string
	agg        AggOp
	aggColumn  string
	columns    []string
	sortBy     string
	sortDesc   bool
	limit      int
}

// CompiledPlan is the executable form of a validated plan: an ordered list of
// steps restricted to the fixed operation vocabulary, with the scope
// predicates pinned ahead of every user predicate.
type CompiledPlan struct {
	scope      []Predicate
	steps      []step
	resultName string
	subject    string
}

// ResultName returns the name the computed value binds to.
func (cp CompiledPlan) ResultName() string {
	return cp.resultName
}

// ScopePredicates returns a copy of the access-scope predicates.
func (cp CompiledPlan) ScopePredicates() []Predicate {
	out := make([]Predicate, len(cp.scope))
	copy(out, cp.scope)
	return out
}

// Compile validates the plan against the catalog and lowers it to the fixed
// filter -> group -> aggregate -> project -> sort -> limit pipeline. The
// scope predicates are supplied separately by the caller and are always
// applied before any user predicate; they may reference internal columns but
// must still name catalog columns. Compilation fails closed on any schema
// violation.
func Compile(cat Catalog, scopePreds []Predicate, p Plan) (CompiledPlan, error) {
	for _, pred := range scopePreds {
		if !cat.Has(pred.Column) {
			return CompiledPlan{}, &SchemaViolationError{Column: pred.Column, Detail: "scope predicate not in catalog"}
		}
	}
	if err := cat.Validate(p); err != nil {
		return CompiledPlan{}, err
	}

	cp := CompiledPlan{
		scope:      append([]Predicate(nil), scopePreds...),
		resultName: resultName(p),
		subject:    p.Subject,
	}

	if len(p.Predicates) > 0 {
		cp.steps = append(cp.steps, step{kind: stepFilter, predicates: append([]Predicate(nil), p.Predicates...)})
	}

	if len(p.GroupBy) > 0 {
		cp.steps = append(cp.steps, step{kind: stepGroup, groupBy: append([]string(nil), p.GroupBy...)})
	}

	if p.Agg != AggNone {
		cp.steps = append(cp.steps, step{kind: stepAggregate, agg: p.Agg, aggColumn: p.AggColumn})
	} else {
		columns := p.Select
		if len(columns) == 0 {
			columns = cat.ProjectableColumns()
		}
		cp.steps = append(cp.steps, step{kind: stepProject, columns: append([]string(nil), columns...)})
	}

	if p.SortBy != "" {
		cp.steps = append(cp.steps, step{kind: stepSort, sortBy: p.SortBy, sortDesc: p.SortDesc})
	}

	if p.Limit > 0 {
		cp.steps = append(cp.steps, step{kind: stepLimit, limit: p.Limit})
	}

	return cp, nil
}
