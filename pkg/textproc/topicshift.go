package textproc

import (
	"strings"
)

// Anaphora and continuation terms; a question using these leans on prior
// context and is never a topic shift.
var continuationTerms = []string{
	"it", "that", "this", "them", "those", "same", "previous", "earlier",
	"again", "also", "above",
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "of": {},
	"for": {}, "to": {}, "in": {}, "on": {}, "at": {}, "my": {}, "me": {},
	"what": {}, "where": {}, "when": {}, "how": {}, "show": {}, "give": {},
	"and": {}, "or": {}, "with": {}, "do": {}, "does": {},
}

// DetectTopicShift reports whether the current turn abruptly abandons the
// prior conversation: new identifiers appear with no overlap against the
// previous turn's identifiers, the question carries no continuation terms,
// and the content words share nothing with the previous question. A prior
// turn without identifiers, such as a fleet-wide analytics question, still
// anchors the comparison through its question text. Session memory consumes
// the signal to clear sticky slots.
func DetectTopicShift(prevIdentifiers []string, prevQuestion string, curr Entities, question string) bool {
	if curr.Count() == 0 {
		return false
	}
	if len(prevIdentifiers) == 0 && strings.TrimSpace(prevQuestion) == "" {
		return false
	}

	prev := make(map[string]struct{}, len(prevIdentifiers))
	for _, id := range prevIdentifiers {
		prev[strings.ToUpper(id)] = struct{}{}
	}
	for _, id := range curr.AllValues() {
		if _, ok := prev[strings.ToUpper(id)]; ok {
			return false
		}
	}

	qLow := strings.ToLower(question)
	for _, term := range continuationTerms {
		if containsWord(qLow, term) {
			return false
		}
	}

	return contentOverlap(qLow, strings.ToLower(prevQuestion)) == 0
}

// contentOverlap counts content words shared by two questions, ignoring
// stopwords and identifier-shaped tokens.
func contentOverlap(a, b string) int {
	wordsA := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		w = strings.Trim(w, "?,.!")
		if _, stop := stopwords[w]; stop || len(w) < 3 || strings.ContainsAny(w, "0123456789") {
			continue
		}
		wordsA[w] = struct{}{}
	}

	overlap := 0
	for _, w := range strings.Fields(b) {
		w = strings.Trim(w, "?,.!")
		if _, ok := wordsA[w]; ok {
			overlap++
		}
	}
	return overlap
}
