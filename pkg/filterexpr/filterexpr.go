// Package filterexpr builds backend-native filter expressions from a
// resolved scope and extracted entities. The scope predicate is mandatory on
// every backend and is always combined with AND; no caller can obtain a
// filter without it.
package filterexpr

import (
	"fmt"
	"time"

	"github.com/freightwise/shipmentqa/pkg/analytics"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/search"
	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// UnsupportedPredicateError reports an entity type that has no native
// representation on the target backend. Fatal for the filter; the request
// falls back to the unsupported-path answer.
type UnsupportedPredicateError struct {
	Backend string
	Kind    string
}

func (e *UnsupportedPredicateError) Error() string {
	return fmt.Sprintf("entity kind %q has no %s backend representation", e.Kind, e.Backend)
}

// SearchFilter builds the search backend filter: the scope predicate over the
// consignee collection field, ANDed with one clause per extracted entity
// group. Identifier values are deduplicated by the extractor already, so the
// clauses stay minimal; an empty entity set still yields a valid scope-only
// filter.
func SearchFilter(s scope.Set, ents textproc.Entities) (search.Filter, error) {
	f := search.NewFilter(search.FieldConsignee, s.Codes())

	byKind := map[textproc.IdentifierKind][]string{}
	for _, id := range ents.Identifiers {
		switch id.Kind {
		case textproc.KindContainer, textproc.KindPurchaseOrder, textproc.KindBillOfLading, textproc.KindBooking:
			byKind[id.Kind] = append(byKind[id.Kind], id.Value)
		default:
			return search.Filter{}, &UnsupportedPredicateError{Backend: "search", Kind: id.Kind.String()}
		}
	}

	if values := byKind[textproc.KindContainer]; len(values) > 0 {
		f = f.And(search.Clause{Field: search.FieldContainer, Op: search.OpIn, Values: values})
	}
	if values := byKind[textproc.KindPurchaseOrder]; len(values) > 0 {
		f = f.And(search.Clause{Field: search.FieldPO, Op: search.OpAnyIn, Values: values})
	}
	if values := byKind[textproc.KindBillOfLading]; len(values) > 0 {
		f = f.And(search.Clause{Field: search.FieldOBL, Op: search.OpAnyIn, Values: values})
	}
	if values := byKind[textproc.KindBooking]; len(values) > 0 {
		f = f.And(search.Clause{Field: search.FieldBooking, Op: search.OpAnyIn, Values: values})
	}

	if ents.Window != nil {
		f = f.And(search.Clause{
			Field: search.FieldETADP,
			Op:    search.OpRange,
			Values: []string{
				ents.Window.Start.UTC().Format(time.RFC3339),
				ents.Window.End.UTC().Format(time.RFC3339),
			},
		})
	}

	return f, nil
}

// TabularScope builds the mandatory scope predicate for the tabular backend.
// The compiler pins it ahead of every user predicate, so the same logical
// scope restricts both backends equivalently.
func TabularScope(s scope.Set) analytics.Predicate {
	return analytics.Predicate{
		Column: analytics.ColConsigneeCode,
		Op:     analytics.PredIn,
		Values: s.Codes(),
	}
}
