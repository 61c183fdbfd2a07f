// Package search defines the retrieval backend capability: a ranked hybrid
// search over shipment documents, always restricted by a scope filter.
package search

import (
	"context"
)

// Index field names shared by every Searcher implementation.
const (
	FieldDocID     = "doc_id"
	FieldConsignee = "consignee_codes"
	FieldContainer = "container_number"
	FieldPO        = "po_numbers"
	FieldOBL       = "obl_nos"
	FieldBooking   = "booking_nos"
	FieldETADP     = "eta_dp_date"
	FieldContent   = "content"
)

// Hit is one ranked search result. Fields carries the flat document metadata
// the deterministic handlers read (shipment_status, current_location, delay
// durations, ports). Hits are immutable once returned.
type Hit struct {
	DocID           string
	ContainerNumber string
	Content         string
	Score           float64
	RerankerScore   float64
	Fields          map[string]string
}

// Field returns a metadata field value or "" when absent.
func (h Hit) Field(name string) string {
	if h.Fields == nil {
		return ""
	}
	return h.Fields[name]
}

// Params are the ranking parameters of one search call.
type Params struct {
	TopK    int
	VectorK int
	Vector  []float32
}

// Searcher is the retrieval backend capability. The filter always embeds the
// scope predicate; implementations must apply it at the backend, not after
// loading. Implementations honor ctx cancellation and deadlines.
type Searcher interface {
	Search(ctx context.Context, filter Filter, queryText string, params Params) ([]Hit, error)
}
