package analytics

import (
	"regexp"
	"strings"
	"time"

	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// Aggregation keyword mapping, checked in order so "how many" wins over a
// later "total" mention.
var aggCues = []struct {
	terms []string
	op    AggOp
}{
	{[]string{"how many", "count", "number of"}, AggCount},
	{[]string{"average", "avg", "mean"}, AggAvg},
	{[]string{"total", "sum"}, AggSum},
	{[]string{"maximum", "max", "highest", "longest", "most delayed"}, AggMax},
	{[]string{"minimum", "min", "lowest", "shortest"}, AggMin},
}

// Metric synonyms resolve question vocabulary to catalog columns. Delay is
// resolved separately because the column depends on the leg the question
// names.
var metricCues = []struct {
	terms  []string
	column string
}{
	{[]string{"weight", "kg", "kilogram", "tonnage"}, ColCargoWeight},
	{[]string{"pieces", "cartons", "cargo count"}, ColCargoCount},
}

// Group-by dimension synonyms.
var dimensionCues = []struct {
	terms  []string
	column string
}{
	{[]string{"port", "discharge port"}, ColDischargePort},
	{[]string{"carrier", "shipping line"}, ColCarrier},
	{[]string{"destination"}, ColFinalDest},
	{[]string{"mode", "transport mode"}, ColTransportMode},
	{[]string{"status"}, ColStatus},
	{[]string{"vessel"}, ColVessel},
	{[]string{"load port", "origin"}, ColLoadPort},
}

var statusCues = []struct {
	terms []string
	value string
}{
	{[]string{"delivered"}, "DELIVERED"},
	{[]string{"in transit", "on the water", "sailing"}, "IN_TRANSIT"},
	{[]string{"arrived"}, "ARRIVED"},
	{[]string{"booked"}, "BOOKED"},
}

// Location phrases: "at savannah", "in rotterdam", "from shanghai". The
// captured tokens become a contains-predicate on the matching port column.
var locationRe = regexp.MustCompile(`(?i)\b(at|in|to|from|via)\s+([a-z][a-z .\-]{2,}?)(?:$|[,?.]|\s+(?:by|per|for|over|during|between|since|last|next|this)\b)`)

var locationStop = map[string]struct{}{
	"transit": {}, "total": {}, "general": {}, "days": {}, "the last": {},
	"my shipments": {}, "detail": {}, "summary": {},
}

// Draft builds a declarative analytics plan from the normalized question.
// It is deterministic: the same question, entities, and reference time
// always produce the same plan. Draft never touches the catalog; Compile
// validates the draft against it and fails closed on anything invalid.
func Draft(question string, ents textproc.Entities, now time.Time) Plan {
	q := strings.ToLower(question)
	plan := Plan{Agg: AggCount}

	for _, cue := range aggCues {
		if matched := matchAny(q, cue.terms); matched {
			plan.Agg = cue.op
			break
		}
	}

	if plan.Agg != AggCount {
		if strings.Contains(q, "delay") || strings.Contains(q, "late") {
			plan.AggColumn = DelayColumnFor(question)
		} else {
			for _, cue := range metricCues {
				if matchAny(q, cue.terms) {
					plan.AggColumn = cue.column
					break
				}
			}
		}
		// A non-count aggregation without a recognizable metric falls back
		// to counting so the plan still validates.
		if plan.AggColumn == "" {
			plan.Agg = AggCount
		}
	}

	if strings.Contains(q, " per ") || strings.Contains(q, " by ") ||
		strings.Contains(q, "breakdown") || strings.Contains(q, "distribution") {
		for _, cue := range dimensionCues {
			if matchAny(q, cue.terms) {
				plan.GroupBy = []string{cue.column}
				break
			}
		}
	}

	var subjects []string

	for _, cue := range statusCues {
		if matchAny(q, cue.terms) {
			plan.Predicates = append(plan.Predicates, Predicate{
				Column: ColStatus, Op: PredEq, Values: []string{cue.value},
			})
			subjects = append(subjects, strings.ToLower(cue.value))
			break
		}
	}

	if strings.Contains(q, "hot container") || strings.Contains(q, "hot shipment") {
		plan.Predicates = append(plan.Predicates, Predicate{
			Column: ColHotFlag, Op: PredEq, Values: []string{"true"},
		})
		subjects = append(subjects, "hot containers")
	}

	if loc, portColumn := extractLocation(q); loc != "" {
		plan.Predicates = append(plan.Predicates, Predicate{
			Column: portColumn, Op: PredContains, Values: []string{loc},
		})
		subjects = append(subjects, strings.ToUpper(loc))
	}

	for _, id := range ents.Identifiers {
		switch id.Kind {
		case textproc.KindContainer:
			plan.Predicates = append(plan.Predicates, Predicate{
				Column: ColContainer, Op: PredIn, Values: []string{id.Value},
			})
		case textproc.KindPurchaseOrder:
			plan.Predicates = append(plan.Predicates, Predicate{
				Column: ColPONumbers, Op: PredIn, Values: []string{id.Value},
			})
		case textproc.KindBillOfLading:
			plan.Predicates = append(plan.Predicates, Predicate{
				Column: ColOBLNumbers, Op: PredIn, Values: []string{id.Value},
			})
		case textproc.KindBooking:
			plan.Predicates = append(plan.Predicates, Predicate{
				Column: ColBookingNos, Op: PredIn, Values: []string{id.Value},
			})
		}
		subjects = append(subjects, id.Value)
	}

	if ents.Window != nil {
		plan.Predicates = append(plan.Predicates, Predicate{
			Column: windowColumn(question),
			Op:     PredBetween,
			Values: []string{
				ents.Window.Start.Format(time.RFC3339),
				ents.Window.End.Format(time.RFC3339),
			},
		})
	}

	plan.Subject = strings.Join(subjects, ", ")
	if plan.Subject == "" {
		plan.Subject = "your request"
	}
	plan.ResultName = resultName(plan)
	return plan
}

// Redraft produces a simplified plan after a failed execution: one
// regeneration attempt, informed by the error, before the failure becomes
// terminal. The simplification drops sorting and grouping first, then falls
// back to a bare scoped count. Returns false when nothing simpler is left.
func Redraft(p Plan, execErr error) (Plan, bool) {
	if p.SortBy != "" || len(p.GroupBy) > 0 {
		p.SortBy = ""
		p.SortDesc = false
		p.GroupBy = nil
		p.ResultName = resultName(p)
		return p, true
	}
	if p.Agg != AggCount || len(p.Predicates) > 0 {
		p.Agg = AggCount
		p.AggColumn = ""
		p.Predicates = nil
		p.Subject = "your request"
		p.ResultName = resultName(p)
		return p, true
	}
	return Plan{}, false
}

func matchAny(q string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// extractLocation finds a port/place phrase. "from X" maps to the load port,
// everything else to the discharge port. Locations matching a group-by
// dimension word are ignored ("by port" is not a place).
func extractLocation(q string) (string, string) {
	m := locationRe.FindStringSubmatch(q)
	if m == nil {
		return "", ""
	}
	loc := strings.TrimSpace(m[2])
	if _, stop := locationStop[loc]; stop || loc == "" {
		return "", ""
	}
	for _, cue := range dimensionCues {
		for _, term := range cue.terms {
			if loc == term {
				return "", ""
			}
		}
	}
	if strings.EqualFold(m[1], "from") {
		return loc, ColLoadPort
	}
	return loc, ColDischargePort
}

// windowColumn picks the datetime column a time window applies to: departure
// questions use the load-port ETD, final-destination questions the FD ETA,
// everything else the discharge-port ETA.
func windowColumn(question string) string {
	q := strings.ToLower(question)
	if strings.Contains(q, "depart") || strings.Contains(q, "etd") || strings.Contains(q, "leaving") {
		return ColETDLoadPort
	}
	if DelayColumnFor(question) == FinalDestinationDelayColumn {
		return ColETAFinalDest
	}
	return ColETADischarge
}
