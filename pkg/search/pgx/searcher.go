// Package pgx implements the document search backend on PostgreSQL with
// pgvector. Filters are translated into parameterized SQL; the access scope
// predicate is always the first conjunct of the WHERE clause.
package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/freightwise/shipmentqa/pkg/search"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// DocSearcher implements search.Searcher against the shipment_docs table.
type DocSearcher struct {
	conn pgxIConn
}

func NewDocSearcher(conn pgxIConn) *DocSearcher {
	return &DocSearcher{conn: conn}
}

// arrayFields maps filter fields stored as text[] columns. Everything else
// lives in the fields jsonb document.
var arrayFields = map[string]string{
	search.FieldConsignee: "consignee_codes",
	search.FieldPO:        "po_numbers",
	search.FieldOBL:       "obl_nos",
	search.FieldBooking:   "booking_nos",
}

// Search runs a scoped hybrid query. With a query vector it orders by cosine
// distance over params.VectorK candidates; without one it falls back to a
// keyword match on the document content. Both paths apply the same filter
// and return at most params.TopK hits.
func (d *DocSearcher) Search(
	ctx context.Context,
	filter search.Filter,
	queryText string,
	params search.Params,
) ([]search.Hit, error) {
	scope := filter.ScopeCodes()
	if len(scope) == 0 {
		return nil, nil
	}

	where, args := buildWhere(filter)

	topK := params.TopK
	if topK <= 0 {
		topK = 8
	}
	vectorK := params.VectorK
	if vectorK <= 0 {
		vectorK = 30
	}

	var sql string
	if len(params.Vector) > 0 {
		args = append(args, pgvector.NewVector(params.Vector))
		vecArg := len(args)
		sql = fmt.Sprintf(`
			SELECT id, container_number, content, fields,
			       1 - (embedding <=> $%d) AS score
			FROM shipment_docs
			WHERE %s
			ORDER BY embedding <=> $%d
			LIMIT %d`,
			vecArg, where, vecArg, vectorK,
		)
	} else {
		args = append(args, "%"+strings.TrimSpace(queryText)+"%")
		sql = fmt.Sprintf(`
			SELECT id, container_number, content, fields,
			       0.0 AS score
			FROM shipment_docs
			WHERE %s AND content ILIKE $%d
			ORDER BY updated_at DESC
			LIMIT %d`,
			where, len(args), vectorK,
		)
	}

	rows, err := d.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("document search: %w", err)
	}
	defer rows.Close()

	hits := make([]search.Hit, 0, topK)
	for rows.Next() {
		var hit search.Hit
		var fields map[string]string
		if err := rows.Scan(&hit.DocID, &hit.ContainerNumber, &hit.Content, &fields, &hit.Score); err != nil {
			return nil, fmt.Errorf("document search scan: %w", err)
		}
		hit.Fields = fields
		hits = append(hits, hit)
		if len(hits) >= topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document search rows: %w", err)
	}
	return hits, nil
}

// buildWhere renders the filter as a SQL conjunction with the scope predicate
// first, returning the clause text and its positional arguments.
func buildWhere(filter search.Filter) (string, []any) {
	args := []any{filter.ScopeCodes()}
	conjuncts := []string{"consignee_codes && $1"}

	for _, clause := range filter.Clauses() {
		if len(clause.Values) == 0 {
			continue
		}
		switch clause.Op {
		case search.OpAnyIn:
			col, ok := arrayFields[clause.Field]
			if !ok {
				col = clause.Field
			}
			args = append(args, clause.Values)
			conjuncts = append(conjuncts, fmt.Sprintf("%s && $%d", col, len(args)))
		case search.OpIn:
			if col, ok := arrayFields[clause.Field]; ok {
				args = append(args, clause.Values)
				conjuncts = append(conjuncts, fmt.Sprintf("%s && $%d", col, len(args)))
				continue
			}
			args = append(args, clause.Values)
			conjuncts = append(conjuncts,
				fmt.Sprintf("(fields->>'%s') = ANY($%d)", clause.Field, len(args)))
		case search.OpRange:
			if len(clause.Values) != 2 {
				continue
			}
			args = append(args, clause.Values[0])
			lo := len(args)
			args = append(args, clause.Values[1])
			hi := len(args)
			conjuncts = append(conjuncts,
				fmt.Sprintf("(fields->>'%s') >= $%d AND (fields->>'%s') <= $%d",
					clause.Field, lo, clause.Field, hi))
		}
	}
	return strings.Join(conjuncts, " AND "), args
}
