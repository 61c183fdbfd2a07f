package textproc

import (
	"regexp"
	"strings"
	"time"
)

// IdentifierKind is the closed set of shipment identifier types the extractor
// recognizes.
type IdentifierKind int

const (
	KindContainer IdentifierKind = iota
	KindPurchaseOrder
	KindBillOfLading
	KindBooking
)

func (k IdentifierKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindPurchaseOrder:
		return "po"
	case KindBillOfLading:
		return "obl"
	case KindBooking:
		return "booking"
	default:
		return "unknown"
	}
}

// ParseKind maps a stored kind string back to its IdentifierKind. Unknown
// strings fall back to KindContainer, the most common identifier shape.
func ParseKind(s string) IdentifierKind {
	switch s {
	case "po":
		return KindPurchaseOrder
	case "obl":
		return KindBillOfLading
	case "booking":
		return KindBooking
	default:
		return KindContainer
	}
}

// Identifier is a typed shipment identifier found literally in the question.
type Identifier struct {
	Kind       IdentifierKind
	Value      string
	Confidence float64
}

// TimeWindow is an inclusive [Start, End] range resolved against the
// caller-supplied reference time.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Entities holds everything the extractor found in one question.
type Entities struct {
	Identifiers []Identifier
	Window      *TimeWindow
	Notices     []string
}

// Count returns the number of extracted identifiers.
func (e Entities) Count() int {
	return len(e.Identifiers)
}

// Values returns the identifier values of the given kind, in extraction order.
func (e Entities) Values(kind IdentifierKind) []string {
	var out []string
	for _, id := range e.Identifiers {
		if id.Kind == kind {
			out = append(out, id.Value)
		}
	}
	return out
}

// AllValues returns every identifier value regardless of kind.
func (e Entities) AllValues() []string {
	out := make([]string, 0, len(e.Identifiers))
	for _, id := range e.Identifiers {
		out = append(out, id.Value)
	}
	return out
}

// ISO 6346 container shape: four letters then seven digits.
var containerRe = regexp.MustCompile(`\b([A-Za-z]{4}\d{7})\b`)

// Id-ish tokens: alphanumeric with optional hyphen/slash, length >= 6. Used
// as the candidate pool for PO and OBL classification.
var idishRe = regexp.MustCompile(`\b([A-Za-z0-9][A-Za-z0-9\-/]{5,})\b`)

const (
	containerConfidence = 0.95
	poConfidence        = 0.75
	oblConfidence       = 0.75
	bookingConfidence   = 0.70
)

// Extract finds container, purchase order, and bill-of-lading identifiers
// plus an optional time window in the normalized question. The reference time
// now anchors relative windows, keeping extraction deterministic. Identifiers
// are deduplicated preserving order; an empty result is a valid outcome, not
// an error.
func Extract(question string, now time.Time) Entities {
	q := strings.TrimSpace(question)
	var ents Entities

	containers := dedupe(matchGroups(containerRe, q))
	for _, c := range containers {
		ents.Identifiers = append(ents.Identifiers, Identifier{
			Kind:       KindContainer,
			Value:      strings.ToUpper(c),
			Confidence: containerConfidence,
		})
	}

	containerSet := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		containerSet[strings.ToUpper(c)] = struct{}{}
	}

	qLow := strings.ToLower(q)
	hasPOCue := containsWord(qLow, "po") || strings.Contains(qLow, "purchase order")
	hasOBLCue := containsWord(qLow, "obl") || containsWord(qLow, "bl") ||
		strings.Contains(qLow, "bill of lading")
	hasBookingCue := containsWord(qLow, "booking") || containsWord(qLow, "bkg")

	for _, token := range dedupe(matchGroups(idishRe, q)) {
		upper := strings.ToUpper(token)
		if _, ok := containerSet[upper]; ok {
			continue
		}
		if len(token) < 6 {
			continue
		}
		switch {
		case isDigits(token) && hasPOCue:
			ents.Identifiers = append(ents.Identifiers, Identifier{
				Kind: KindPurchaseOrder, Value: upper, Confidence: poConfidence,
			})
		case isDigits(token) && hasOBLCue:
			ents.Identifiers = append(ents.Identifiers, Identifier{
				Kind: KindBillOfLading, Value: upper, Confidence: oblConfidence,
			})
		case hasBookingCue && hasDigit(token):
			ents.Identifiers = append(ents.Identifiers, Identifier{
				Kind: KindBooking, Value: upper, Confidence: bookingConfidence,
			})
		}
	}

	window, notice := parseTimeWindow(q, now)
	ents.Window = window
	if notice != "" {
		ents.Notices = append(ents.Notices, notice)
	}

	return ents
}

func matchGroups(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToUpper(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if '0' <= r && r <= '9' {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if field == word {
			return true
		}
	}
	return false
}
