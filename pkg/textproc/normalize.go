// Package textproc cleans query text and extracts typed shipment identifiers
// and time windows. Extraction only reports what is literally present in the
// text; it never infers identifiers.
package textproc

import (
	"strings"
)

// Conversational openers stripped from the front of a question. Matching is
// longest-prefix-first so "could you please" wins over "could you".
var fillerPrefixes = []string{
	"could you please tell me",
	"could you please",
	"can you please tell me",
	"can you please",
	"could you tell me",
	"can you tell me",
	"please tell me",
	"could you",
	"can you",
	"please",
	"hi,",
	"hello,",
	"hey,",
}

var fillerSuffixes = []string{
	"please",
	"thanks",
	"thank you",
}

// Normalize lowercases, trims, collapses whitespace, and strips leading and
// trailing conversational filler. It is a pure, total function: any input
// string yields a normalized string, never an error.
func Normalize(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	q = strings.Join(strings.Fields(q), " ")

	for changed := true; changed; {
		changed = false
		for _, prefix := range fillerPrefixes {
			if strings.HasPrefix(q, prefix+" ") {
				q = strings.TrimSpace(strings.TrimPrefix(q, prefix))
				changed = true
			}
		}
	}

	q = strings.TrimRight(q, " ?!.")
	for changed := true; changed; {
		changed = false
		for _, suffix := range fillerSuffixes {
			if strings.HasSuffix(q, " "+suffix) {
				q = strings.TrimSpace(strings.TrimSuffix(q, suffix))
				q = strings.TrimRight(q, " ,?!.")
				changed = true
			}
		}
	}

	return strings.TrimSpace(q)
}
