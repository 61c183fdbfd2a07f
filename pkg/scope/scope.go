// Package scope resolves the consignee codes a principal is authorized to
// see. A resolved Set is built once per request from authenticated input and
// is immutable afterwards; every backend filter is derived from it.
package scope

import (
	"context"
	"fmt"
	"strings"
)

// Hierarchy looks up the consignee tree. Expand returns the given code plus
// all of its descendants. Implementations must treat unknown codes as a
// single-node subtree rather than an error.
type Hierarchy interface {
	Expand(ctx context.Context, code string) ([]string, error)
}

// ResolutionError indicates that a principal could not be mapped to any
// accessible consignee code. This is fatal for the request; there is no
// partial-scope fallback.
type ResolutionError struct {
	Identity string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("scope resolution failed for %q: %s", e.Identity, e.Reason)
}

// Set is the closed set of consignee codes accessible to the current
// principal. It preserves insertion order (parent first) and is never
// mutated after Resolve returns it.
type Set struct {
	codes []string
	index map[string]struct{}
}

// NewSet builds a Set from already-resolved codes, deduplicating while
// preserving order. Used by tests and by Resolve internally.
func NewSet(codes []string) Set {
	index := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := index[c]; ok {
			continue
		}
		index[c] = struct{}{}
		out = append(out, c)
	}
	return Set{codes: out, index: index}
}

// Codes returns a copy of the resolved codes in order.
func (s Set) Codes() []string {
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Contains reports whether the given code is inside the scope.
func (s Set) Contains(code string) bool {
	_, ok := s.index[code]
	return ok
}

// Len returns the number of codes in the scope.
func (s Set) Len() int {
	return len(s.codes)
}

// IsEmpty reports whether the scope grants access to nothing.
func (s Set) IsEmpty() bool {
	return len(s.codes) == 0
}

// Resolve expands the principal's declared consignee codes into the full
// accessible set: each declared code contributes itself plus all descendant
// codes from the hierarchy. Declared codes must come from an authenticated
// source, never from query text. Fails closed with ResolutionError when the
// declared list is empty or expansion yields nothing.
func Resolve(ctx context.Context, h Hierarchy, identity string, declared []string) (Set, error) {
	declared = NormalizeCodes(declared)
	if len(declared) == 0 {
		return Set{}, &ResolutionError{Identity: identity, Reason: "no consignee codes declared"}
	}

	var resolved []string
	for _, code := range declared {
		expanded, err := h.Expand(ctx, code)
		if err != nil {
			return Set{}, fmt.Errorf("expand consignee %q: %w", code, err)
		}
		resolved = append(resolved, code)
		resolved = append(resolved, expanded...)
	}

	set := NewSet(resolved)
	if set.IsEmpty() {
		return Set{}, &ResolutionError{Identity: identity, Reason: "hierarchy expansion yielded no codes"}
	}
	return set, nil
}

// NormalizeCodes flattens declared consignee codes into a clean ordered list.
// Clients send both proper lists and comma-packed strings inside lists, so
// every element is split on commas, trimmed, and deduplicated preserving
// order (parent first).
func NormalizeCodes(raw []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			code := strings.TrimSpace(part)
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}
