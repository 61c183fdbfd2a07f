// Package intent assigns each question one of a closed set of intents using
// deterministic rules. The classification is terminal: once assigned it never
// changes for the turn.
package intent

import (
	"strings"

	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// Intent is the top-level routing decision for a question.
type Intent int

const (
	IntentUnsupported Intent = iota
	IntentRetrieval
	IntentAnalytics
)

func (i Intent) String() string {
	switch i {
	case IntentRetrieval:
		return "retrieval"
	case IntentAnalytics:
		return "analytics"
	default:
		return "unsupported"
	}
}

// SubIntent refines retrieval questions into a deterministic handler choice.
type SubIntent int

const (
	SubStatus SubIntent = iota
	SubETAWindow
	SubDelayReason
	SubRoute
)

func (s SubIntent) String() string {
	switch s {
	case SubETAWindow:
		return "eta_window"
	case SubDelayReason:
		return "delay_reason"
	case SubRoute:
		return "route"
	default:
		return "status"
	}
}

// Classification is the classifier output. Fallback marks decisions made by
// the lowest-priority rule so the assembler can keep phrasing cautious.
type Classification struct {
	Intent     Intent
	Sub        SubIntent
	Confidence float64
	Fallback   bool
}

// Narrow lookups cover at most this many identifiers; beyond it the question
// is really asking about a set.
const maxRetrievalIdentifiers = 5

var aggregationTerms = []string{
	"average", "avg", "mean", "total", "sum", "count", "how many",
	"trend", "distribution", "breakdown", "per port", "per carrier",
	"group by", "most", "least", "top ", "chart", "graph", "percentage",
	"maximum", "minimum", "highest", "lowest",
}

// Classify applies the decision policy in strict priority order:
//  1. 1-5 explicit identifiers and no aggregation signal -> retrieval.
//  2. Any aggregation signal -> analytics. Aggregation supersedes a narrow
//     lookup, so a question carrying both signals lands here.
//  3. Neither -> unsupported; the assembler produces the graceful
//     insufficient-information answer.
func Classify(question string, ents textproc.Entities) Classification {
	q := strings.ToLower(question)
	hasAggregation := hasAggregationSignal(q)
	idCount := ents.Count()

	if idCount >= 1 && idCount <= maxRetrievalIdentifiers && !hasAggregation {
		return Classification{
			Intent:     IntentRetrieval,
			Sub:        classifySub(q),
			Confidence: 0.9,
		}
	}

	if hasAggregation || idCount > maxRetrievalIdentifiers {
		return Classification{
			Intent:     IntentAnalytics,
			Confidence: 0.85,
		}
	}

	return Classification{
		Intent:     IntentUnsupported,
		Confidence: 0.3,
		Fallback:   true,
	}
}

var greetingWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "howdy": {}, "greetings": {},
	"good": {}, "morning": {}, "afternoon": {}, "evening": {}, "there": {},
	"thanks": {}, "thank": {}, "you": {},
}

// IsGreeting reports whether the question is a pure social opener with no
// shipment content, so the turn can answer with the capabilities line.
func IsGreeting(question string) bool {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	if len(fields) == 0 || len(fields) > 4 {
		return false
	}
	for _, f := range fields {
		if _, ok := greetingWords[f]; !ok {
			return false
		}
	}
	return true
}

func hasAggregationSignal(q string) bool {
	for _, term := range aggregationTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// classifySub picks the retrieval sub-intent; status is the default when no
// stronger signal matches.
func classifySub(q string) SubIntent {
	switch {
	case strings.Contains(q, "why") && strings.Contains(q, "delay"),
		strings.Contains(q, "delay reason"),
		strings.Contains(q, "delayed"),
		strings.Contains(q, "delay"):
		return SubDelayReason
	case strings.Contains(q, "eta"),
		strings.Contains(q, "arrive"),
		strings.Contains(q, "arriving"),
		strings.Contains(q, "arrival"),
		strings.Contains(q, "when will"):
		return SubETAWindow
	case strings.Contains(q, "route"),
		strings.Contains(q, "vessel"),
		strings.Contains(q, "transship"),
		strings.Contains(q, "via "),
		strings.Contains(q, "port rotation"):
		return SubRoute
	default:
		return SubStatus
	}
}
