package scope

import (
	"context"
	"encoding/json"
	"os"

	"github.com/freightwise/shipmentqa/pkg/logger"
)

// StaticHierarchy is an in-process consignee tree keyed by parent code. It is
// a snapshot: Expand walks the transitive closure of the map without any I/O,
// so resolution stays a pure function over it.
type StaticHierarchy struct {
	children map[string][]string
}

// NewStaticHierarchy builds a hierarchy from a parent -> direct children map.
func NewStaticHierarchy(children map[string][]string) *StaticHierarchy {
	normalized := make(map[string][]string, len(children))
	for parent, kids := range children {
		normalized[parent] = NormalizeCodes(kids)
	}
	return &StaticHierarchy{children: normalized}
}

// LoadStaticHierarchy reads the tree from CONSIGNEE_HIERARCHY_JSON. A missing
// or invalid value yields a flat hierarchy where every code is its own
// subtree.
func LoadStaticHierarchy() *StaticHierarchy {
	raw := os.Getenv("CONSIGNEE_HIERARCHY_JSON")
	if raw == "" {
		return NewStaticHierarchy(nil)
	}
	var parsed map[string][]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Error("Consignee hierarchy is not valid JSON; treating all codes as leaves", "err", err)
		return NewStaticHierarchy(nil)
	}
	return NewStaticHierarchy(parsed)
}

// Expand returns all descendants of code, walking the tree breadth-first.
// The code itself is not included; Resolve adds it. Cycles are tolerated by
// tracking visited codes.
func (h *StaticHierarchy) Expand(ctx context.Context, code string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{code: {}}
	queue := append([]string(nil), h.children[code]...)
	var out []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, h.children[next]...)
	}
	return out, nil
}
