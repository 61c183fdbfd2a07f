// Package retrieval plans the search request and interprets the returned
// hits through deterministic handlers. Handlers are pure functions over
// (hits, entities, time window); they never call backends.
package retrieval

import (
	"github.com/freightwise/shipmentqa/pkg/filterexpr"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/search"
	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// Default ranking parameters of the hybrid search.
const (
	DefaultTopK    = 8
	DefaultVectorK = 30
)

// Plan is the composed retrieval request: the scope-anchored filter plus
// ranking parameters. The planner issues exactly one retrieval call; retry
// policy belongs to the backend.
type Plan struct {
	QueryText string
	Filter    search.Filter
	Params    search.Params
}

// BuildPlan composes the retrieval plan for a question. The filter always
// embeds the scope predicate; entity predicates narrow it further.
func BuildPlan(question string, s scope.Set, ents textproc.Entities) (Plan, error) {
	filter, err := filterexpr.SearchFilter(s, ents)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		QueryText: question,
		Filter:    filter,
		Params: search.Params{
			TopK:    DefaultTopK,
			VectorK: DefaultVectorK,
		},
	}, nil
}
