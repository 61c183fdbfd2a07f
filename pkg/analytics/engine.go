package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Result is the single named outcome of an executed plan: either a scalar or
// a uniform row/column table, never both.
type Result struct {
	Name     string
	Scalar   *float64
	Table    *Table
	RowCount int
}

// Table is a uniform row/column shape handed to the presentation layer.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Backend is the tabular backend capability: it runs a compiled plan and
// returns the result. Implementations must be read-only over their dataset
// and honor ctx cancellation.
type Backend interface {
	Execute(ctx context.Context, plan CompiledPlan) (Result, error)
}

// Dataset is an immutable in-memory table. Cells are stored as strings and
// parsed on demand according to the catalog's declared types.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewDataset builds a dataset from a header and rows. Rows shorter than the
// header are padded with empty cells.
func NewDataset(columns []string, rows [][]string) *Dataset {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	normalized := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) < len(columns) {
			padded := make([]string, len(columns))
			copy(padded, row)
			row = padded
		}
		normalized[i] = row
	}
	return &Dataset{columns: columns, index: index, rows: normalized}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

func (d *Dataset) cell(row int, column string) (string, bool) {
	idx, ok := d.index[column]
	if !ok {
		return "", false
	}
	return d.rows[row][idx], true
}

// MemoryBackend executes compiled plans against an in-memory dataset. It
// performs no I/O and never mutates the dataset; projections and group
// tables are built from copies.
type MemoryBackend struct {
	catalog Catalog
	dataset *Dataset
}

// NewMemoryBackend creates a backend over the given dataset.
func NewMemoryBackend(catalog Catalog, dataset *Dataset) *MemoryBackend {
	return &MemoryBackend{catalog: catalog, dataset: dataset}
}

// Execute interprets the compiled plan step by step. The scope predicates
// restrict the row set before any user predicate runs; an empty scope
// predicate list is refused outright. Zero surviving rows yield
// EmptyResultError. Identical plans over an unchanged dataset produce
// identical results: grouping output is sorted by group key.
func (b *MemoryBackend) Execute(ctx context.Context, plan CompiledPlan) (Result, error) {
	if len(plan.scope) == 0 {
		return Result{}, &ExecutionError{Stage: "scope", Err: errors.New("compiled plan carries no scope predicates")}
	}

	rows, err := b.filterRows(ctx, allRows(b.dataset.Len()), plan.scope)
	if err != nil {
		return Result{}, &ExecutionError{Stage: "scope-filter", Err: err}
	}

	result := Result{Name: plan.ResultName()}
	var groupBy []string

	for _, s := range plan.steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		switch s.kind {
		case stepFilter:
			rows, err = b.filterRows(ctx, rows, s.predicates)
			if err != nil {
				return Result{}, &ExecutionError{Stage: "filter", Err: err}
			}
		case stepGroup:
			groupBy = s.groupBy
		case stepAggregate:
			if len(rows) == 0 {
				return Result{}, &EmptyResultError{Subject: plan.subject}
			}
			result, err = b.aggregate(rows, groupBy, s.agg, s.aggColumn, plan.ResultName())
			if err != nil {
				return Result{}, &ExecutionError{Stage: "aggregate", Err: err}
			}
		case stepProject:
			if len(rows) == 0 {
				return Result{}, &EmptyResultError{Subject: plan.subject}
			}
			result = b.project(rows, s.columns, plan.ResultName())
		case stepSort:
			if result.Table != nil {
				b.sortTable(result.Table, s.sortBy, s.sortDesc)
			}
		case stepLimit:
			if result.Table != nil && len(result.Table.Rows) > s.limit {
				result.Table.Rows = result.Table.Rows[:s.limit]
				result.RowCount = s.limit
			}
		}
	}

	return result, nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func (b *MemoryBackend) filterRows(ctx context.Context, rows []int, preds []Predicate) ([]int, error) {
	out := rows
	for _, pred := range preds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var kept []int
		for _, row := range out {
			match, err := b.matches(row, pred)
			if err != nil {
				return nil, err
			}
			if match {
				kept = append(kept, row)
			}
		}
		out = kept
	}
	return out, nil
}

func (b *MemoryBackend) matches(row int, pred Predicate) (bool, error) {
	cell, ok := b.dataset.cell(row, pred.Column)
	if !ok {
		return false, fmt.Errorf("dataset has no column %q", pred.Column)
	}

	colType := b.catalog[pred.Column].Type
	switch pred.Op {
	case PredEq:
		return equalsFold(cell, pred.Values[0]), nil
	case PredNeq:
		return !equalsFold(cell, pred.Values[0]), nil
	case PredIn:
		for _, v := range pred.Values {
			if equalsFold(cell, v) || listContains(cell, v) {
				return true, nil
			}
		}
		return false, nil
	case PredContains:
		return strings.Contains(strings.ToLower(cell), strings.ToLower(pred.Values[0])), nil
	case PredGt, PredGte, PredLt, PredLte:
		return compareOrdered(colType, cell, pred.Values[0], pred.Op)
	case PredBetween:
		geq, err := compareOrdered(colType, cell, pred.Values[0], PredGte)
		if err != nil || !geq {
			return false, err
		}
		return compareOrdered(colType, cell, pred.Values[1], PredLte)
	default:
		return false, fmt.Errorf("unsupported predicate op %s", pred.Op)
	}
}

func equalsFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// listContains treats a comma-joined cell (po_numbers, obl_nos) as a list
// and matches any element.
func listContains(cell, value string) bool {
	if !strings.Contains(cell, ",") {
		return false
	}
	for _, part := range strings.Split(cell, ",") {
		if equalsFold(part, value) {
			return true
		}
	}
	return false
}

func compareOrdered(colType ColumnType, cell, value string, op PredOp) (bool, error) {
	if strings.TrimSpace(cell) == "" {
		return false, nil
	}

	var cmp int
	switch colType {
	case TypeNumeric:
		cellNum, err := parseNumeric(cell)
		if err != nil {
			return false, err
		}
		valNum, err := parseNumeric(value)
		if err != nil {
			return false, err
		}
		switch {
		case cellNum < valNum:
			cmp = -1
		case cellNum > valNum:
			cmp = 1
		}
	case TypeDatetime:
		cellTime, err := parseDatetime(cell)
		if err != nil {
			return false, err
		}
		valTime, err := parseDatetime(value)
		if err != nil {
			return false, err
		}
		switch {
		case cellTime.Before(valTime):
			cmp = -1
		case cellTime.After(valTime):
			cmp = 1
		}
	default:
		cmp = strings.Compare(cell, value)
	}

	switch op {
	case PredGt:
		return cmp > 0, nil
	case PredGte:
		return cmp >= 0, nil
	case PredLt:
		return cmp < 0, nil
	default:
		return cmp <= 0, nil
	}
}

func parseNumeric(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return v, nil
}

var datetimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a datetime: %q", s)
}

// aggregate computes the aggregation, grouped when groupBy is set. Group
// tables are sorted by key so reruns are bit-identical.
func (b *MemoryBackend) aggregate(rows []int, groupBy []string, op AggOp, column, name string) (Result, error) {
	if len(groupBy) == 0 {
		value, err := b.aggValue(rows, op, column)
		if err != nil {
			return Result{}, err
		}
		return Result{Name: name, Scalar: &value, RowCount: len(rows)}, nil
	}

	groups := make(map[string][]int)
	var keys []string
	for _, row := range rows {
		var parts []string
		for _, g := range groupBy {
			cell, _ := b.dataset.cell(row, g)
			parts = append(parts, cell)
		}
		key := strings.Join(parts, "\x1f")
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], row)
	}
	sort.Strings(keys)

	table := &Table{Columns: append(append([]string(nil), groupBy...), name)}
	for _, key := range keys {
		value, err := b.aggValue(groups[key], op, column)
		if err != nil {
			return Result{}, err
		}
		row := append(strings.Split(key, "\x1f"), formatNumber(value))
		table.Rows = append(table.Rows, row)
	}

	return Result{Name: name, Table: table, RowCount: len(table.Rows)}, nil
}

func (b *MemoryBackend) aggValue(rows []int, op AggOp, column string) (float64, error) {
	if op == AggCount {
		return float64(len(rows)), nil
	}

	var values []float64
	for _, row := range rows {
		cell, ok := b.dataset.cell(row, column)
		if !ok {
			return 0, fmt.Errorf("dataset has no column %q", column)
		}
		if strings.TrimSpace(cell) == "" {
			continue
		}
		v, err := parseNumeric(cell)
		if err != nil {
			return 0, err
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, nil
	}

	switch op {
	case AggSum, AggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		if op == AggAvg {
			return sum / float64(len(values)), nil
		}
		return sum, nil
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unsupported aggregation %s", op)
	}
}

func (b *MemoryBackend) project(rows []int, columns []string, name string) Result {
	table := &Table{Columns: append([]string(nil), columns...)}
	for _, row := range rows {
		out := make([]string, len(columns))
		for i, c := range columns {
			cell, _ := b.dataset.cell(row, c)
			out[i] = cell
		}
		table.Rows = append(table.Rows, out)
	}
	return Result{Name: name, Table: table, RowCount: len(table.Rows)}
}

func (b *MemoryBackend) sortTable(table *Table, column string, desc bool) {
	idx := -1
	for i, c := range table.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	colType := b.catalog[column].Type
	sort.SliceStable(table.Rows, func(i, j int) bool {
		a, bv := table.Rows[i][idx], table.Rows[j][idx]
		var less bool
		switch colType {
		case TypeNumeric:
			an, errA := parseNumeric(a)
			bn, errB := parseNumeric(bv)
			if errA != nil || errB != nil {
				less = a < bv
			} else {
				less = an < bn
			}
		case TypeDatetime:
			at, errA := parseDatetime(a)
			bt, errB := parseDatetime(bv)
			if errA != nil || errB != nil {
				less = a < bv
			} else {
				less = at.Before(bt)
			}
		default:
			less = a < bv
		}
		if desc {
			return !less
		}
		return less
	})
}

// formatNumber renders an aggregate value: integers without decimals,
// otherwise two decimal places.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
