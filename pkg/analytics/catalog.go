// Package analytics turns an analytics question into a declarative plan,
// validates it against a metadata catalog, compiles it to a fixed pipeline of
// tabular operations, and executes it in a read-only context. The compiled
// form is data, never source text.
package analytics

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type of a catalog column.
type ColumnType int

const (
	TypeCategorical ColumnType = iota
	TypeNumeric
	TypeDatetime
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeDatetime:
		return "datetime"
	default:
		return "categorical"
	}
}

// Column describes one catalog entry: its type, a human description, and the
// aggregations allowed on it.
type Column struct {
	Name        string
	Type        ColumnType
	Description string
	AllowedAggs []AggOp
	// Internal columns exist for scoping only and are never projected into
	// results.
	Internal bool
}

// Catalog maps column names to their metadata. It is loaded once at process
// start and read-only afterwards; every plan is validated against it before
// compilation.
type Catalog map[string]Column

// Column names of the shipment dataset. The delay duration defaults are
// named here once; nothing else hard-codes the field choice.
const (
	ColConsigneeCode = "consignee_code"
	ColContainer     = "container_number"
	ColPONumbers     = "po_numbers"
	ColOBLNumbers    = "obl_nos"
	ColBookingNos    = "booking_nos"
	ColLoadPort      = "load_port"
	ColDischargePort = "discharge_port"
	ColFinalDest     = "final_destination"
	ColStatus        = "shipment_status"
	ColCarrier       = "final_carrier_name"
	ColVessel        = "final_vessel_name"
	ColTransportMode = "transport_mode"
	ColETDLoadPort   = "etd_lp_date"
	ColETADischarge  = "eta_dp_date"
	ColETAFinalDest  = "eta_fd_date"
	ColCargoWeight   = "cargo_weight_kg"
	ColCargoCount    = "cargo_count"
	ColHotFlag       = "hot_container_flag"

	// DefaultDelayColumn is the discharge-port delay duration used for every
	// delay computation unless the question explicitly asks about the final
	// destination leg.
	DefaultDelayColumn = "dp_delayed_dur"
	// FinalDestinationDelayColumn replaces the default when the question
	// names the final destination ("final destination", "fd", "in-dc").
	FinalDestinationDelayColumn = "fd_delayed_dur"
)

// Phrases that switch delay computations to the final destination leg.
var finalDestinationCues = []string{"final destination", " fd ", " fd?", "in-dc", "in dc"}

// DelayColumnFor picks the delay duration column for a question. The
// discharge-port duration is the default; the final-destination duration is
// used only on an explicit cue.
func DelayColumnFor(question string) string {
	q := " " + strings.ToLower(question) + " "
	for _, cue := range finalDestinationCues {
		if strings.Contains(q, cue) {
			return FinalDestinationDelayColumn
		}
	}
	return DefaultDelayColumn
}

var numericAggs = []AggOp{AggCount, AggSum, AggAvg, AggMin, AggMax}
var countOnly = []AggOp{AggCount}

// DefaultCatalog returns the static shipment analytics catalog.
func DefaultCatalog() Catalog {
	cols := []Column{
		{Name: ColConsigneeCode, Type: TypeCategorical, Description: "Owning consignee code.", AllowedAggs: countOnly, Internal: true},
		{Name: ColContainer, Type: TypeCategorical, Description: "The unique 11-character container identifier.", AllowedAggs: countOnly},
		{Name: ColPONumbers, Type: TypeCategorical, Description: "Customer Purchase Order numbers.", AllowedAggs: countOnly},
		{Name: ColOBLNumbers, Type: TypeCategorical, Description: "Original Bill of Lading numbers (OBL).", AllowedAggs: countOnly},
		{Name: ColBookingNos, Type: TypeCategorical, Description: "Carrier booking numbers.", AllowedAggs: countOnly},
		{Name: ColLoadPort, Type: TypeCategorical, Description: "The port where the cargo was initially loaded.", AllowedAggs: countOnly},
		{Name: ColDischargePort, Type: TypeCategorical, Description: "The port where the cargo is unloaded from the final vessel.", AllowedAggs: countOnly},
		{Name: ColFinalDest, Type: TypeCategorical, Description: "The final point of delivery.", AllowedAggs: countOnly},
		{Name: ColStatus, Type: TypeCategorical, Description: "Current shipment lifecycle status.", AllowedAggs: countOnly},
		{Name: ColCarrier, Type: TypeCategorical, Description: "The carrier handling the final leg.", AllowedAggs: countOnly},
		{Name: ColVessel, Type: TypeCategorical, Description: "The vessel for the final ocean leg.", AllowedAggs: countOnly},
		{Name: ColTransportMode, Type: TypeCategorical, Description: "Ocean, air, or rail.", AllowedAggs: countOnly},
		{Name: ColETDLoadPort, Type: TypeDatetime, Description: "Estimated departure from load port.", AllowedAggs: countOnly},
		{Name: ColETADischarge, Type: TypeDatetime, Description: "Estimated arrival at discharge port.", AllowedAggs: countOnly},
		{Name: ColETAFinalDest, Type: TypeDatetime, Description: "Estimated arrival at final destination.", AllowedAggs: countOnly},
		{Name: DefaultDelayColumn, Type: TypeNumeric, Description: "Delay at discharge port, in days.", AllowedAggs: numericAggs},
		{Name: FinalDestinationDelayColumn, Type: TypeNumeric, Description: "Delay at final destination, in days.", AllowedAggs: numericAggs},
		{Name: ColCargoWeight, Type: TypeNumeric, Description: "Total cargo weight in kilograms.", AllowedAggs: numericAggs},
		{Name: ColCargoCount, Type: TypeNumeric, Description: "Number of cargo pieces.", AllowedAggs: numericAggs},
		{Name: ColHotFlag, Type: TypeCategorical, Description: "Flag for hot (expedited) containers.", AllowedAggs: countOnly},
	}

	catalog := make(Catalog, len(cols))
	for _, c := range cols {
		catalog[c.Name] = c
	}
	return catalog
}

// Has reports whether the column exists in the catalog.
func (c Catalog) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// aggAllowed reports whether the aggregation is declared for the column.
func (c Catalog) aggAllowed(name string, op AggOp) bool {
	col, ok := c[name]
	if !ok {
		return false
	}
	for _, allowed := range col.AllowedAggs {
		if allowed == op {
			return true
		}
	}
	return false
}

// ProjectableColumns returns the catalog columns that may appear in results,
// in a stable order.
func (c Catalog) ProjectableColumns() []string {
	order := []string{
		ColContainer, ColPONumbers, ColOBLNumbers, ColBookingNos, ColStatus, ColLoadPort,
		ColDischargePort, ColFinalDest, ColCarrier, ColVessel, ColTransportMode,
		ColETDLoadPort, ColETADischarge, ColETAFinalDest,
		DefaultDelayColumn, FinalDestinationDelayColumn,
		ColCargoWeight, ColCargoCount, ColHotFlag,
	}
	var out []string
	for _, name := range order {
		if col, ok := c[name]; ok && !col.Internal {
			out = append(out, name)
		}
	}
	return out
}

// describe is used in validation errors so operators can see the declared
// shape without exposing backend detail to end users.
func (col Column) describe() string {
	return fmt.Sprintf("%s (%s)", col.Name, col.Type)
}
