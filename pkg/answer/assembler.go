// Package answer assembles the final grounded response. Every numeric or
// factual claim must trace to at least one evidence item; claims that lose
// their evidence are downgraded to the canonical couldn't-find phrasing, never
// silently kept or invented.
package answer

import (
	"fmt"
	"strings"
)

// Canonical user-facing phrasings. Raw backend errors are never shown; the
// pipeline maps its error taxonomy onto these.
const (
	MsgInsufficientIdentifiers = "I need a container, PO, or OBL number to look that up. Could you share one?"
	MsgNoMatches               = "I couldn't find any shipments matching your request within your authorized scope."
	MsgMetricUnavailable       = "That metric isn't available in the shipment data."
	MsgServiceUnavailable      = "The shipment data service is temporarily unavailable. Please try again shortly."
	MsgCouldNotFind            = "I couldn't find that information in the retrieved shipment data."
	MsgNotAuthorized           = "I couldn't verify your shipment access. Please contact your account administrator."
	MsgGreeting                = "Hello! I can look up shipment status, ETAs, delay reasons, and routes, or compute counts and averages across your shipments. Ask me about a container, PO, OBL, or booking number to get started."
)

// NoMatchesFor renders the zero-result grounding message for a subject.
func NoMatchesFor(subject string) string {
	if subject == "" {
		return MsgNoMatches
	}
	return fmt.Sprintf("I couldn't find any shipments matching %s.", subject)
}

// Evidence ties one claim to its source: a document id with snippet for
// retrieval answers, or a computed row reference for analytics answers.
type Evidence struct {
	SourceID        string `json:"source_id"`
	ContainerNumber string `json:"container_number,omitempty"`
	Snippet         string `json:"snippet,omitempty"`
}

// Fragment is one candidate sentence of the final answer together with the
// evidence backing it. HasClaim marks fragments carrying a number or specific
// fact; those must come with evidence or they are downgraded.
type Fragment struct {
	Text     string
	HasClaim bool
	Evidence []Evidence
}

// Table is the uniform row/column shape for multi-row outputs. Rendering is
// left to the presentation layer.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Answer is the assembled response.
type Answer struct {
	Text     string
	Evidence []Evidence
	Table    *Table
	Notices  []string
}

// Assemble merges fragments into the final answer, enforcing grounding: any
// fragment flagged as a claim without at least one evidence item is replaced
// by the canonical couldn't-find phrasing. An all-empty fragment list yields
// the no-matches message so the caller never emits an empty answer.
func Assemble(fragments []Fragment, table *Table, notices []string) Answer {
	var (
		parts    []string
		evidence []Evidence
		degraded bool
	)

	for _, frag := range fragments {
		text := strings.TrimSpace(frag.Text)
		if text == "" {
			continue
		}
		if frag.HasClaim && len(frag.Evidence) == 0 {
			if !degraded {
				parts = append(parts, MsgCouldNotFind)
				degraded = true
			}
			continue
		}
		parts = append(parts, text)
		evidence = append(evidence, frag.Evidence...)
	}

	if len(parts) == 0 {
		parts = append(parts, MsgNoMatches)
	}

	return Answer{
		Text:     strings.Join(parts, " "),
		Evidence: dedupeEvidence(evidence),
		Table:    table,
		Notices:  append([]string(nil), notices...),
	}
}

// HasNumber reports whether the text states a numeric fact. Used by handlers
// to flag fragments as claims.
func HasNumber(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return r >= '0' && r <= '9'
	}) >= 0
}

func dedupeEvidence(items []Evidence) []Evidence {
	seen := make(map[string]struct{}, len(items))
	var out []Evidence
	for _, item := range items {
		key := item.SourceID + "\x1f" + item.Snippet
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
