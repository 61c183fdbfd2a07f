// Package pgx provides a Postgres-backed consignee hierarchy for deployments
// where the tree is maintained in the operational database instead of a
// static snapshot.
package pgx

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Hierarchy implements scope.Hierarchy over a consignee_hierarchy table with
// (parent_code, child_code) rows. A recursive CTE walks the subtree so a
// single round trip returns the transitive closure.
type Hierarchy struct {
	conn *pgxpool.Pool
}

// NewHierarchy creates a hierarchy lookup backed by the given pool.
func NewHierarchy(conn *pgxpool.Pool) *Hierarchy {
	return &Hierarchy{conn: conn}
}

// Expand returns all descendant codes of the given consignee code. The code
// itself is excluded; unknown codes return an empty slice, not an error.
func (h *Hierarchy) Expand(ctx context.Context, code string) ([]string, error) {
	rows, err := h.conn.Query(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT child_code
			FROM consignee_hierarchy
			WHERE parent_code = $1
			UNION
			SELECT ch.child_code
			FROM consignee_hierarchy ch
			JOIN subtree s ON ch.parent_code = s.child_code
		)
		SELECT child_code FROM subtree
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, rows.Err()
}
