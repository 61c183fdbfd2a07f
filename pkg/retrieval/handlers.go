package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/freightwise/shipmentqa/pkg/analytics"
	"github.com/freightwise/shipmentqa/pkg/answer"
	"github.com/freightwise/shipmentqa/pkg/search"
	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// Document metadata fields the handlers read, beyond the shared catalog
// column names.
const (
	FieldStatus      = "shipment_status"
	FieldLocation    = "current_location"
	FieldDelayReason = "delay_reason"
	FieldETADP       = "eta_dp_date"
	FieldETAFD       = "eta_fd_date"
	FieldLoadPort    = "load_port"
	FieldDischarge   = "discharge_port"
	FieldFinalDest   = "final_destination"
	FieldVessel      = "final_vessel_name"
	FieldFirstVessel = "first_vessel_name"
)

// Dates in user-facing answers render as dd-Mon-yyyy.
const dateLayout = "02-Jan-2006"

// Input is everything a handler may look at. Handlers are pure: same input,
// same fragments.
type Input struct {
	Question string
	Hits     []search.Hit
	Entities textproc.Entities
	Now      time.Time
}

// subject names what was asked about, for the zero-hit message.
func (in Input) subject() string {
	if ids := in.Entities.AllValues(); len(ids) > 0 {
		return strings.Join(ids, ", ")
	}
	return ""
}

// noMatches is the canonical zero-hit fragment every handler emits instead
// of an empty or ambiguous answer.
func noMatches(in Input) []answer.Fragment {
	return []answer.Fragment{{Text: answer.NoMatchesFor(in.subject())}}
}

func evidenceFor(hit search.Hit) answer.Evidence {
	snippet := hit.Content
	if len(snippet) > 240 {
		snippet = snippet[:240]
	}
	return answer.Evidence{
		SourceID:        hit.DocID,
		ContainerNumber: hit.ContainerNumber,
		Snippet:         snippet,
	}
}

// Status reports the latest known status and location per hit.
func Status(in Input) []answer.Fragment {
	if len(in.Hits) == 0 {
		return noMatches(in)
	}

	var frags []answer.Fragment
	for _, hit := range in.Hits {
		status := hit.Field(FieldStatus)
		location := hit.Field(FieldLocation)
		if status == "" && location == "" {
			continue
		}

		text := fmt.Sprintf("Container %s is %s", hit.ContainerNumber, humanStatus(status))
		if location != "" {
			text += fmt.Sprintf(", currently at %s", location)
		}
		if eta := formatDate(hit.Field(FieldETADP)); eta != "" {
			text += fmt.Sprintf(" (ETA discharge port %s)", eta)
		}
		text += "."

		frags = append(frags, answer.Fragment{
			Text:     text,
			HasClaim: true,
			Evidence: []answer.Evidence{evidenceFor(hit)},
		})
	}

	if len(frags) == 0 {
		return noMatches(in)
	}
	return frags
}

// ETAWindow reports expected arrivals, restricted to the extracted time
// window when one is present. The discharge-port ETA is the default; the
// final-destination ETA is used on an explicit cue, mirroring the delay
// column choice.
func ETAWindow(in Input) []answer.Fragment {
	if len(in.Hits) == 0 {
		return noMatches(in)
	}

	etaField := FieldETADP
	leg := "the discharge port"
	if analytics.DelayColumnFor(in.Question) == analytics.FinalDestinationDelayColumn {
		etaField = FieldETAFD
		leg = "the final destination"
	}

	var frags []answer.Fragment
	for _, hit := range in.Hits {
		eta, ok := parseHitDate(hit.Field(etaField))
		if !ok {
			continue
		}
		if w := in.Entities.Window; w != nil {
			if eta.Before(w.Start) || eta.After(w.End) {
				continue
			}
		}

		frags = append(frags, answer.Fragment{
			Text: fmt.Sprintf("Container %s is expected at %s (%s) on %s.",
				hit.ContainerNumber, hit.Field(FieldDischarge), leg, eta.Format(dateLayout)),
			HasClaim: true,
			Evidence: []answer.Evidence{evidenceFor(hit)},
		})
	}

	if len(frags) == 0 {
		return noMatches(in)
	}
	return frags
}

// DelayReason reports the delay duration and reason per hit. The duration
// field follows analytics.DelayColumnFor: discharge port by default, final
// destination on an explicit cue.
func DelayReason(in Input) []answer.Fragment {
	if len(in.Hits) == 0 {
		return noMatches(in)
	}

	delayField := analytics.DelayColumnFor(in.Question)
	leg := "the discharge port"
	if delayField == analytics.FinalDestinationDelayColumn {
		leg = "the final destination"
	}

	var frags []answer.Fragment
	for _, hit := range in.Hits {
		duration := strings.TrimSpace(hit.Field(delayField))
		if duration == "" || duration == "0" {
			frags = append(frags, answer.Fragment{
				Text:     fmt.Sprintf("Container %s shows no delay at %s.", hit.ContainerNumber, leg),
				HasClaim: true,
				Evidence: []answer.Evidence{evidenceFor(hit)},
			})
			continue
		}

		text := fmt.Sprintf("Container %s is delayed %s day(s) at %s", hit.ContainerNumber, duration, leg)
		if reason := hit.Field(FieldDelayReason); reason != "" {
			text += fmt.Sprintf(" due to %s", strings.ToLower(reason))
		}
		text += "."

		frags = append(frags, answer.Fragment{
			Text:     text,
			HasClaim: true,
			Evidence: []answer.Evidence{evidenceFor(hit)},
		})
	}
	return frags
}

// Route reports the leg structure of each shipment.
func Route(in Input) []answer.Fragment {
	if len(in.Hits) == 0 {
		return noMatches(in)
	}

	var frags []answer.Fragment
	for _, hit := range in.Hits {
		load := hit.Field(FieldLoadPort)
		discharge := hit.Field(FieldDischarge)
		if load == "" || discharge == "" {
			continue
		}

		text := fmt.Sprintf("Container %s sails from %s to %s", hit.ContainerNumber, load, discharge)
		if vessel := hit.Field(FieldVessel); vessel != "" {
			text += fmt.Sprintf(" on vessel %s", vessel)
		}
		if dest := hit.Field(FieldFinalDest); dest != "" && !strings.EqualFold(dest, discharge) {
			text += fmt.Sprintf(", with final delivery to %s", dest)
		}
		text += "."

		frags = append(frags, answer.Fragment{
			Text:     text,
			HasClaim: true,
			Evidence: []answer.Evidence{evidenceFor(hit)},
		})
	}

	if len(frags) == 0 {
		return noMatches(in)
	}
	return frags
}

func humanStatus(status string) string {
	if status == "" {
		return "in an unknown state"
	}
	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}

var hitDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseHitDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range hitDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatDate(s string) string {
	t, ok := parseHitDate(s)
	if !ok {
		return ""
	}
	return t.Format(dateLayout)
}
